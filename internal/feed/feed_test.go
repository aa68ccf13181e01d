package feed

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meshsocial/feedserve/internal/domain"
	"github.com/meshsocial/feedserve/internal/redisfeed"
	"github.com/meshsocial/feedserve/internal/sqlite"
)

// testEnv wires the engine against a real miniredis index and a real sqlite
// store, the same shape the service runs in production.
type testEnv struct {
	mr    *miniredis.Miniredis
	index domain.FeedIndex
	store *sqlite.Store

	rebuilder   *Rebuilder
	reader      *Reader
	distributor *Distributor
}

func newTestEnv(t *testing.T, opts DistributorOptions) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "feedserve.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = opts.withDefaults()

	index := redisfeed.NewIndex(rdb, redisfeed.Options{})
	rebuilder := NewRebuilder(index, store, store, opts.MaxFeedSize, logger)
	reader := NewReader(index, store, store, rebuilder, ReaderOptions{
		MaxFeedSize: opts.MaxFeedSize,
	}, logger)
	distributor := NewDistributor(index, store, store, rebuilder, opts, logger)

	return &testEnv{
		mr:          mr,
		index:       index,
		store:       store,
		rebuilder:   rebuilder,
		reader:      reader,
		distributor: distributor,
	}
}

func (e *testEnv) createPost(t *testing.T, id, author string, createdAtMillis int64) *domain.Post {
	t.Helper()
	post := &domain.Post{
		ID:        id,
		AuthorID:  author,
		CreatedAt: time.UnixMilli(createdAtMillis).UTC(),
	}
	if err := e.store.CreatePost(context.Background(), post); err != nil {
		t.Fatalf("create post %s: %v", id, err)
	}
	return post
}

func (e *testEnv) follow(t *testing.T, follower, following string) {
	t.Helper()
	if err := e.store.AddFollow(context.Background(), follower, following); err != nil {
		t.Fatalf("follow %s -> %s: %v", follower, following, err)
	}
}

func (e *testEnv) feedIDs(t *testing.T, userID string) []string {
	t.Helper()
	ids, err := e.index.Range(context.Background(), userID, 1, 1000)
	if err != nil {
		t.Fatalf("range %s: %v", userID, err)
	}
	return ids
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
