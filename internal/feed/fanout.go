package feed

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/meshsocial/feedserve/internal/domain"
)

// FanoutStrategy decides how one post reaches (or leaves) a set of follower
// feeds. The distributor picks a strategy per event from the author's
// follower cardinality, so the threshold and the read-time reconstruction
// path stay independently testable.
type FanoutStrategy interface {
	// Distribute pushes the post into every target's index.
	Distribute(ctx context.Context, post *domain.Post, targets []string) error

	// Withdraw removes the post from every target's index.
	Withdraw(ctx context.Context, post *domain.Post, targets []string) error
}

// trimParallelism bounds concurrent per-user trims after a batched add.
const trimParallelism = 8

// PushFanout materializes the post into follower indices at write time.
type PushFanout struct {
	index       domain.FeedIndex
	maxFeedSize int
	logger      *slog.Logger
}

// NewPushFanout creates the write-time strategy.
func NewPushFanout(index domain.FeedIndex, maxFeedSize int, logger *slog.Logger) *PushFanout {
	return &PushFanout{index: index, maxFeedSize: maxFeedSize, logger: logger}
}

// Distribute adds the post to every target index in pipelined batches, then
// trims each grown index back to the bound. A per-entry failure inside the
// batch does not stop the rest; the batch error is returned so the caller
// can schedule repair for the failed users.
func (p *PushFanout) Distribute(ctx context.Context, post *domain.Post, targets []string) error {
	addErr := p.index.AddBatch(ctx, targets, post.ID, post.Score())

	// Trim even when some adds failed: the successful entries still grew
	// their indices.
	g := new(errgroup.Group)
	g.SetLimit(trimParallelism)
	for _, userID := range targets {
		g.Go(func() error {
			if err := p.index.Trim(ctx, userID, p.maxFeedSize); err != nil {
				p.logger.Warn("post-fanout trim failed", "userId", userID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if addErr != nil {
		return fmt.Errorf("push fanout of post %s to %d users: %w", post.ID, len(targets), addErr)
	}
	return nil
}

// Withdraw removes the post from every target index in pipelined batches.
func (p *PushFanout) Withdraw(ctx context.Context, post *domain.Post, targets []string) error {
	if err := p.index.RemoveBatch(ctx, targets, post.ID); err != nil {
		return fmt.Errorf("withdraw post %s from %d users: %w", post.ID, len(targets), err)
	}
	return nil
}

// PullOnRead defers distribution entirely: posts by authors above the
// fanout limit surface only through read-time index reconstruction.
type PullOnRead struct {
	logger *slog.Logger
}

// NewPullOnRead creates the read-time strategy.
func NewPullOnRead(logger *slog.Logger) *PullOnRead {
	return &PullOnRead{logger: logger}
}

// Distribute is a no-op; followers pick the post up on their next rebuild.
func (p *PullOnRead) Distribute(_ context.Context, post *domain.Post, targets []string) error {
	p.logger.Debug("fanout deferred to read time",
		"postId", post.ID,
		"authorId", post.AuthorID,
		"followers", len(targets),
	)
	return nil
}

// Withdraw is a no-op. Indices that picked the post up through a rebuild
// shed it lazily: dangling ids are filtered at materialization and vanish
// for good on the next rebuild.
func (p *PullOnRead) Withdraw(_ context.Context, post *domain.Post, _ []string) error {
	p.logger.Debug("withdrawal deferred to read time", "postId", post.ID)
	return nil
}
