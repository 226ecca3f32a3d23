package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

// MemoryStore keeps posts in-process. Used when persistence is disabled
// and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	nextID uint64
	posts  map[string][]domain.Post // key: user ID, oldest first
	now    func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[string][]domain.Post),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Append inserts one post.
func (m *MemoryStore) Append(_ context.Context, userID string, post domain.Post) (domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(userID, post)
}

// Trim deletes the oldest posts beyond keep.
func (m *MemoryStore) Trim(_ context.Context, userID string, keep int) ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trimLocked(userID, keep), nil
}

// AppendAndTrim inserts then trims under one lock.
func (m *MemoryStore) AppendAndTrim(_ context.Context, userID string, post domain.Post, keep int) (domain.Post, []domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, err := m.appendLocked(userID, post)
	if err != nil {
		return domain.Post{}, nil, err
	}
	return stored, m.trimLocked(userID, keep), nil
}

func (m *MemoryStore) appendLocked(userID string, post domain.Post) (domain.Post, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Post{}, ErrInvalidPost
	}
	m.nextID++
	post.ID = m.nextID
	post.UserID = userID
	post.CreatedAt = m.now()
	post.Hashtags = copyList(post.Hashtags)
	post.Songs = copyList(post.Songs)
	m.posts[userID] = append(m.posts[userID], post)
	return clonePost(post), nil
}

func (m *MemoryStore) trimLocked(userID string, keep int) []domain.Post {
	posts := m.posts[userID]
	excess := oldestBeyond(posts, keep)
	if len(excess) == 0 {
		return nil
	}
	removed := make([]domain.Post, 0, len(excess))
	for _, p := range excess {
		removed = append(removed, clonePost(p))
	}
	m.posts[userID] = append([]domain.Post(nil), posts[len(excess):]...)
	return removed
}

// List returns the user's posts, most recent first.
func (m *MemoryStore) List(_ context.Context, userID string) ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	posts := m.posts[userID]
	res := make([]domain.Post, 0, len(posts))
	for i := len(posts) - 1; i >= 0; i-- {
		res = append(res, clonePost(posts[i]))
	}
	return res, nil
}

// Delete removes one post owned by userID.
func (m *MemoryStore) Delete(_ context.Context, userID string, id uint64) (domain.Post, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	posts := m.posts[userID]
	for i, p := range posts {
		if p.ID != id {
			continue
		}
		m.posts[userID] = append(posts[:i:i], posts[i+1:]...)
		return clonePost(p), true, nil
	}
	return domain.Post{}, false, nil
}

func clonePost(p domain.Post) domain.Post {
	p.Hashtags = copyList(p.Hashtags)
	p.Songs = copyList(p.Songs)
	return p
}

func copyList(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	return out
}
