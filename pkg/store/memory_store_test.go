package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

func TestMemoryStoreAppendListRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Append(ctx, "a@example.com", domain.Post{Caption: "one", Hashtags: []string{"sun"}, Songs: []string{"Song - A"}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := s.Append(ctx, "a@example.com", domain.Post{Caption: "two", Hashtags: []string{"fun", "beach"}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == 0 || second.ID == first.ID {
		t.Fatalf("expected distinct ids, got %d and %d", first.ID, second.ID)
	}
	if first.UserID != "a@example.com" || first.CreatedAt.IsZero() {
		t.Fatalf("post not owner-stamped: %+v", first)
	}

	posts, err := s.List(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != second.ID || posts[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", posts)
	}
	if !reflect.DeepEqual(posts[0].Hashtags, []string{"fun", "beach"}) {
		t.Fatalf("hashtags mismatch: %v", posts[0].Hashtags)
	}
	if posts[0].Songs == nil || len(posts[0].Songs) != 0 {
		t.Fatalf("absent songs must be an empty list, got %#v", posts[0].Songs)
	}
}

func TestMemoryStoreRetentionKeepsNewest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < 7; i++ {
		p, removed, err := s.AppendAndTrim(ctx, "u1", domain.Post{Caption: fmt.Sprintf("post-%d", i)}, 5)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if i < 5 && len(removed) != 0 {
			t.Fatalf("append %d trimmed %d posts early", i, len(removed))
		}
		if i >= 5 && (len(removed) != 1 || removed[0].ID != ids[i-5]) {
			t.Fatalf("append %d trimmed %+v, want id %d", i, removed, ids[i-5])
		}
		ids = append(ids, p.ID)
	}

	posts, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 5 {
		t.Fatalf("expected 5 posts, got %d", len(posts))
	}
	for i, p := range posts {
		want := ids[6-i]
		if p.ID != want {
			t.Fatalf("posts[%d].ID = %d, want %d", i, p.ID, want)
		}
	}
}

func TestMemoryStoreTrimBatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := s.Append(ctx, "u1", domain.Post{Caption: "x"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	removed, err := s.Trim(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("expected 3 removed, got %d", len(removed))
	}
	again, err := s.Trim(ctx, "u1", 1)
	if err != nil || len(again) != 0 {
		t.Fatalf("second trim should be a no-op, got %v %v", again, err)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	bPost, err := s.Append(ctx, "b", domain.Post{Caption: "bob"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Append(ctx, "a", domain.Post{Caption: "alice"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	aPosts, _ := s.List(ctx, "a")
	for _, p := range aPosts {
		if p.UserID != "a" {
			t.Fatalf("user a observed foreign post %+v", p)
		}
	}
	if _, ok, err := s.Delete(ctx, "a", bPost.ID); err != nil || ok {
		t.Fatalf("delete of foreign id should be a no-op, got ok=%v err=%v", ok, err)
	}
	bPosts, _ := s.List(ctx, "b")
	if len(bPosts) != 1 || bPosts[0].ID != bPost.ID {
		t.Fatalf("user b post affected: %+v", bPosts)
	}
	if removed, _ := s.Trim(ctx, "a", 0); len(removed) != 1 || removed[0].UserID != "a" {
		t.Fatalf("trim crossed users: %+v", removed)
	}
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := s.Append(ctx, "u", domain.Post{Caption: "x"})
	_, _ = s.Append(ctx, "u", domain.Post{Caption: "y"})

	if _, ok, err := s.Delete(ctx, "u", p.ID); err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.Delete(ctx, "u", p.ID); err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
	posts, _ := s.List(ctx, "u")
	if len(posts) != 1 {
		t.Fatalf("expected 1 remaining post, got %d", len(posts))
	}
}

func TestMemoryStoreRejectsMissingOwner(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Append(context.Background(), " ", domain.Post{}); !errors.Is(err, ErrInvalidPost) {
		t.Fatalf("expected ErrInvalidPost, got %v", err)
	}
}

func TestMemoryStoreConcurrentAppendRespectsCap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.AppendAndTrim(ctx, "u", domain.Post{Caption: "c"}, 5)
		}()
	}
	wg.Wait()
	posts, _ := s.List(ctx, "u")
	if len(posts) != 5 {
		t.Fatalf("expected 5 posts after concurrent writes, got %d", len(posts))
	}
}
