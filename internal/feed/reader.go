package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshsocial/feedserve/internal/domain"
)

// ReaderOptions tunes feed reads.
type ReaderOptions struct {
	// MaxFeedSize bounds the direct durable-store read used when the
	// index store is unavailable.
	MaxFeedSize int

	// RebuildBudget time-boxes the synchronous cold-start rebuild. On
	// expiry the read degrades to an empty valid page instead of hanging.
	RebuildBudget time.Duration
}

func (o *ReaderOptions) withDefaults() ReaderOptions {
	out := *o
	if out.MaxFeedSize <= 0 {
		out.MaxFeedSize = 500
	}
	if out.RebuildBudget <= 0 {
		out.RebuildBudget = 5 * time.Second
	}
	return out
}

// Reader serves paginated feed reads, hiding the cache topology from
// callers: warm indices are read directly, cold indices are rebuilt
// synchronously first, and an unreachable index store degrades to reading
// the durable store. Only a durable-store failure surfaces, because past it
// there is no further fallback.
type Reader struct {
	index     domain.FeedIndex
	graph     domain.SocialGraph
	posts     domain.PostStore
	rebuilder *Rebuilder
	logger    *slog.Logger
	opts      ReaderOptions
}

// NewReader wires a Reader.
func NewReader(
	index domain.FeedIndex,
	graph domain.SocialGraph,
	posts domain.PostStore,
	rebuilder *Rebuilder,
	opts ReaderOptions,
	logger *slog.Logger,
) *Reader {
	return &Reader{
		index:     index,
		graph:     graph,
		posts:     posts,
		rebuilder: rebuilder,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// GetFeed returns the 1-indexed page of the user's reverse-chronological
// feed. A user who follows nobody and has no posts gets an empty page, not
// an error.
func (r *Reader) GetFeed(ctx context.Context, userID string, page, limit int) (*domain.FeedPage, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("get feed %s: page and limit must be at least 1, got page=%d limit=%d", userID, page, limit)
	}

	warm, err := r.index.Exists(ctx, userID)
	if err != nil {
		r.logger.Warn("index store unavailable, reading durable store directly", "userId", userID, "error", err)
		return r.readDirect(ctx, userID, page, limit)
	}

	if !warm {
		rctx, cancel := context.WithTimeout(ctx, r.opts.RebuildBudget)
		err := r.rebuilder.Rebuild(rctx, userID)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			r.logger.Warn("cold-start rebuild timed out, returning empty page", "userId", userID)
			return emptyPage(page, limit), nil
		default:
			// The rebuild touches both stores; retry against the durable
			// store alone so an index-side failure stays invisible. A
			// durable-side failure fails here too and is the one error a
			// read is allowed to surface.
			r.logger.Warn("cold-start rebuild failed, reading durable store directly", "userId", userID, "error", err)
			return r.readDirect(ctx, userID, page, limit)
		}
	}

	return r.readWarm(ctx, userID, page, limit)
}

func (r *Reader) readWarm(ctx context.Context, userID string, page, limit int) (*domain.FeedPage, error) {
	ids, err := r.index.Range(ctx, userID, page, limit)
	if err != nil {
		r.logger.Warn("index range failed, reading durable store directly", "userId", userID, "error", err)
		return r.readDirect(ctx, userID, page, limit)
	}

	total, err := r.index.Size(ctx, userID)
	if err != nil {
		r.logger.Warn("index size failed, reading durable store directly", "userId", userID, "error", err)
		return r.readDirect(ctx, userID, page, limit)
	}

	return &domain.FeedPage{
		PostIDs: ids,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: int64(page)*int64(limit) < total,
	}, nil
}

// readDirect serves the page straight from the durable store without
// writing anything back. Used when the index store is unreachable.
func (r *Reader) readDirect(ctx context.Context, userID string, page, limit int) (*domain.FeedPage, error) {
	following, err := r.graph.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get feed %s: following ids: %w", userID, err)
	}
	authors := append(following, userID)

	recent, err := r.posts.RecentPostsByAuthors(ctx, authors, r.opts.MaxFeedSize)
	if err != nil {
		return nil, fmt.Errorf("get feed %s: recent posts: %w", userID, err)
	}

	total := int64(len(recent))
	start := (page - 1) * limit
	end := min(start+limit, len(recent))
	ids := make([]string, 0, limit)
	for i := start; i < end; i++ {
		ids = append(ids, recent[i].ID)
	}

	return &domain.FeedPage{
		PostIDs: ids,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: int64(page)*int64(limit) < total,
	}, nil
}

// Materialize resolves feed entry ids into posts, preserving the index
// order. Ids whose post no longer exists come back as a not-found Lookup so
// callers can filter them or count drift; they are never an error.
func (r *Reader) Materialize(ctx context.Context, ids []string) ([]domain.Lookup, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	fetched, err := r.posts.GetPosts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("materialize %d posts: %w", len(ids), err)
	}

	byID := make(map[string]domain.Post, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lookups := make([]domain.Lookup, len(ids))
	for i, id := range ids {
		lookups[i] = domain.Lookup{ID: id}
		if p, ok := byID[id]; ok {
			lookups[i].Post = &p
		}
	}
	return lookups, nil
}

func emptyPage(page, limit int) *domain.FeedPage {
	return &domain.FeedPage{
		PostIDs: []string{},
		Total:   0,
		Page:    page,
		Limit:   limit,
		HasMore: false,
	}
}
