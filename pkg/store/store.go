package store

import (
	"context"
	"errors"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

// ErrInvalidPost is returned when a post is missing its owner.
var ErrInvalidPost = errors.New("post owner required")

// Store persists generated posts scoped to their owning user.
// Every method filters by userID; no call reads or mutates another user's rows.
type Store interface {
	// Append inserts one post stamped with userID and returns it with the
	// assigned identifier and creation time.
	Append(ctx context.Context, userID string, post domain.Post) (domain.Post, error)
	// Trim deletes the oldest posts of userID beyond keep and returns the
	// removed rows so callers can release attached objects.
	Trim(ctx context.Context, userID string, keep int) ([]domain.Post, error)
	// AppendAndTrim runs Append then Trim as one unit, serialized per user.
	AppendAndTrim(ctx context.Context, userID string, post domain.Post, keep int) (domain.Post, []domain.Post, error)
	// List returns the posts of userID, most recent first.
	List(ctx context.Context, userID string) ([]domain.Post, error)
	// Delete removes the post with id owned by userID. The bool reports
	// whether a row was removed; a missing or foreign id is not an error.
	Delete(ctx context.Context, userID string, id uint64) (domain.Post, bool, error)
}

// oldestBeyond returns the posts that fall outside the newest keep entries.
// posts must be ordered oldest first.
func oldestBeyond(posts []domain.Post, keep int) []domain.Post {
	if keep < 0 {
		keep = 0
	}
	if len(posts) <= keep {
		return nil
	}
	return posts[:len(posts)-keep]
}
