package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meshsocial/feedserve/internal/domain"
)

// Rebuilder reconstructs one user's bounded feed index from the durable
// store alone. It serves cold-start reads and the explicit rebuild
// operation, and it is the self-healing path for every kind of index drift.
type Rebuilder struct {
	index       domain.FeedIndex
	graph       domain.SocialGraph
	posts       domain.PostStore
	maxFeedSize int
	logger      *slog.Logger
}

// NewRebuilder creates a Rebuilder bounded to maxFeedSize entries per user.
func NewRebuilder(index domain.FeedIndex, graph domain.SocialGraph, posts domain.PostStore, maxFeedSize int, logger *slog.Logger) *Rebuilder {
	return &Rebuilder{
		index:       index,
		graph:       graph,
		posts:       posts,
		maxFeedSize: maxFeedSize,
		logger:      logger,
	}
}

// Rebuild clears any partial state and repopulates the index with the most
// recent posts by the user's followees and the user. Running it twice with
// no intervening writes yields the same index contents. A user who follows
// nobody and has no posts ends with no index at all, which readers report
// as an empty feed.
func (r *Rebuilder) Rebuild(ctx context.Context, userID string) error {
	if err := r.index.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("rebuild %s: %w", userID, err)
	}

	following, err := r.graph.FollowingIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("rebuild %s: following ids: %w", userID, err)
	}
	authors := append(following, userID)

	recent, err := r.posts.RecentPostsByAuthors(ctx, authors, r.maxFeedSize)
	if err != nil {
		return fmt.Errorf("rebuild %s: recent posts: %w", userID, err)
	}

	for _, p := range recent {
		if err := r.index.Add(ctx, userID, p.ID, p.Score()); err != nil {
			return fmt.Errorf("rebuild %s: %w", userID, err)
		}
	}
	if err := r.index.Trim(ctx, userID, r.maxFeedSize); err != nil {
		return fmt.Errorf("rebuild %s: %w", userID, err)
	}

	r.logger.Debug("feed index rebuilt", "userId", userID, "entries", len(recent))
	return nil
}
