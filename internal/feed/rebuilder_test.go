package feed

import (
	"context"
	"testing"
)

func TestRebuildPopulatesFromFollowGraph(t *testing.T) {
	env := newTestEnv(t, DistributorOptions{})
	ctx := context.Background()

	env.follow(t, "reader", "alice")
	env.follow(t, "reader", "bob")
	env.createPost(t, "p1", "alice", 100)
	env.createPost(t, "p2", "bob", 200)
	env.createPost(t, "p3", "carol", 300) // not followed
	env.createPost(t, "p4", "reader", 400)

	if err := env.rebuilder.Rebuild(ctx, "reader"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	got := env.feedIDs(t, "reader")
	want := []string{"p4", "p2", "p1"}
	if !sameIDs(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	env := newTestEnv(t, DistributorOptions{})
	ctx := context.Background()

	env.follow(t, "reader", "alice")
	for i := 0; i < 5; i++ {
		env.createPost(t, postID("a", i), "alice", int64(100+i))
	}

	if err := env.rebuilder.Rebuild(ctx, "reader"); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first := env.feedIDs(t, "reader")

	if err := env.rebuilder.Rebuild(ctx, "reader"); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second := env.feedIDs(t, "reader")

	if !sameIDs(first, second) {
		t.Fatalf("rebuild not idempotent: %v then %v", first, second)
	}
}

func TestRebuildBoundsIndexSize(t *testing.T) {
	env := newTestEnv(t, DistributorOptions{MaxFeedSize: 3})
	ctx := context.Background()

	env.follow(t, "reader", "alice")
	for i := 0; i < 10; i++ {
		env.createPost(t, postID("a", i), "alice", int64(100+i))
	}

	if err := env.rebuilder.Rebuild(ctx, "reader"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	got := env.feedIDs(t, "reader")
	if len(got) != 3 {
		t.Fatalf("expected index bounded to 3, got %d entries", len(got))
	}
	want := []string{"a9", "a8", "a7"}
	if !sameIDs(got, want) {
		t.Fatalf("expected most recent %v, got %v", want, got)
	}
}

func TestRebuildClearsStaleEntries(t *testing.T) {
	env := newTestEnv(t, DistributorOptions{})
	ctx := context.Background()

	// A stale entry from an author the user no longer follows.
	if err := env.index.Add(ctx, "reader", "stale", 999); err != nil {
		t.Fatalf("seed stale entry: %v", err)
	}

	env.follow(t, "reader", "alice")
	env.createPost(t, "p1", "alice", 100)

	if err := env.rebuilder.Rebuild(ctx, "reader"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	got := env.feedIDs(t, "reader")
	if !sameIDs(got, []string{"p1"}) {
		t.Fatalf("expected stale entry cleared, got %v", got)
	}
}

func postID(prefix string, i int) string {
	return prefix + string(rune('0'+i))
}
