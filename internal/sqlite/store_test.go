package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/meshsocial/feedserve/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "feedserve.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreatePost(t *testing.T, s *Store, id, author string, createdAtMillis int64) {
	t.Helper()
	err := s.CreatePost(context.Background(), &domain.Post{
		ID:        id,
		AuthorID:  author,
		CreatedAt: time.UnixMilli(createdAtMillis).UTC(),
	})
	if err != nil {
		t.Fatalf("create post %s: %v", id, err)
	}
}

func TestRecentPostsByAuthors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreatePost(t, s, "p1", "alice", 100)
	mustCreatePost(t, s, "p2", "bob", 200)
	mustCreatePost(t, s, "p3", "carol", 300)
	mustCreatePost(t, s, "p4", "alice", 400)

	posts, err := s.RecentPostsByAuthors(ctx, []string{"alice", "bob"}, 10)
	if err != nil {
		t.Fatalf("recent posts: %v", err)
	}

	want := []string{"p4", "p2", "p1"}
	if len(posts) != len(want) {
		t.Fatalf("expected %d posts, got %d", len(want), len(posts))
	}
	for i, id := range want {
		if posts[i].ID != id {
			t.Fatalf("expected order %v, got %s at %d", want, posts[i].ID, i)
		}
	}

	limited, err := s.RecentPostsByAuthors(ctx, []string{"alice", "bob"}, 2)
	if err != nil {
		t.Fatalf("recent posts limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "p4" || limited[1].ID != "p2" {
		t.Fatalf("expected [p4 p2], got %v", limited)
	}

	none, err := s.RecentPostsByAuthors(ctx, nil, 10)
	if err != nil {
		t.Fatalf("recent posts no authors: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no posts for empty author set, got %d", len(none))
	}
}

func TestGetPostsPreservesIDOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreatePost(t, s, "p1", "alice", 100)
	mustCreatePost(t, s, "p2", "bob", 200)
	mustCreatePost(t, s, "p3", "carol", 300)

	posts, err := s.GetPosts(ctx, []string{"p2", "gone", "p3", "p1"})
	if err != nil {
		t.Fatalf("get posts: %v", err)
	}

	want := []string{"p2", "p3", "p1"}
	if len(posts) != len(want) {
		t.Fatalf("expected %d posts, got %d", len(want), len(posts))
	}
	for i, id := range want {
		if posts[i].ID != id {
			t.Fatalf("expected id order %v, got %s at %d", want, posts[i].ID, i)
		}
	}
}

func TestPostExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreatePost(t, s, "p1", "alice", 100)

	ok, err := s.PostExists(ctx, "p1")
	if err != nil {
		t.Fatalf("post exists: %v", err)
	}
	if !ok {
		t.Fatal("expected p1 to exist")
	}

	if err := s.DeletePost(ctx, "p1"); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	ok, err = s.PostExists(ctx, "p1")
	if err != nil {
		t.Fatalf("post exists after delete: %v", err)
	}
	if ok {
		t.Fatal("expected p1 gone after delete")
	}
}

func TestCreatePostDuplicateIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreatePost(t, s, "p1", "alice", 100)
	mustCreatePost(t, s, "p1", "alice", 100)

	posts, err := s.RecentPostsByAuthors(ctx, []string{"alice"}, 10)
	if err != nil {
		t.Fatalf("recent posts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post after duplicate insert, got %d", len(posts))
	}
}

func TestFollowEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddFollow(ctx, "alice", "bob"); err != nil {
		t.Fatalf("add follow: %v", err)
	}
	if err := s.AddFollow(ctx, "alice", "bob"); err != nil {
		t.Fatalf("duplicate follow: %v", err)
	}
	if err := s.AddFollow(ctx, "carol", "bob"); err != nil {
		t.Fatalf("add follow: %v", err)
	}
	if err := s.AddFollow(ctx, "alice", "carol"); err != nil {
		t.Fatalf("add follow: %v", err)
	}

	following, err := s.FollowingIDs(ctx, "alice")
	if err != nil {
		t.Fatalf("following ids: %v", err)
	}
	if len(following) != 2 {
		t.Fatalf("expected alice to follow 2 users, got %v", following)
	}

	followers, err := s.FollowerIDs(ctx, "bob")
	if err != nil {
		t.Fatalf("follower ids: %v", err)
	}
	if len(followers) != 2 {
		t.Fatalf("expected bob to have 2 followers, got %v", followers)
	}

	if err := s.RemoveFollow(ctx, "alice", "bob"); err != nil {
		t.Fatalf("remove follow: %v", err)
	}
	if err := s.RemoveFollow(ctx, "alice", "bob"); err != nil {
		t.Fatalf("remove absent follow: %v", err)
	}

	followers, err = s.FollowerIDs(ctx, "bob")
	if err != nil {
		t.Fatalf("follower ids: %v", err)
	}
	if len(followers) != 1 || followers[0] != "carol" {
		t.Fatalf("expected [carol], got %v", followers)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cursor, err := s.GetCursor(ctx, "lifecycle-stream")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if cursor != 0 {
		t.Fatalf("expected 0 for unsaved cursor, got %d", cursor)
	}

	if err := s.UpdateCursor(ctx, "lifecycle-stream", 42); err != nil {
		t.Fatalf("update cursor: %v", err)
	}
	if err := s.UpdateCursor(ctx, "lifecycle-stream", 99); err != nil {
		t.Fatalf("update cursor again: %v", err)
	}

	cursor, err = s.GetCursor(ctx, "lifecycle-stream")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if cursor != 99 {
		t.Fatalf("expected cursor 99, got %d", cursor)
	}
}
