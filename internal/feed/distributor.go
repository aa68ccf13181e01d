package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshsocial/feedserve/internal/domain"
)

// DistributorOptions tunes event distribution.
type DistributorOptions struct {
	// MaxFeedSize bounds each user's index.
	MaxFeedSize int

	// FanoutLimit is the follower-count threshold for the hybrid policy:
	// at or below it posts are pushed at write time, above it they are
	// recovered only through read-time rebuilds.
	FanoutLimit int

	// BackfillLimit caps how many of a newly-followed author's recent
	// posts are copied into the follower's index.
	BackfillLimit int

	// FanoutBudget time-boxes one distribution pass. Entries that miss
	// the budget are handed to the reconciler instead of blocking.
	FanoutBudget time.Duration

	// ReconcileInterval is the reconciliation job's tick.
	ReconcileInterval time.Duration

	// ReconcileMaxUsers bounds how many users one reconciliation pass
	// repairs; the pending set itself holds at most four times that.
	ReconcileMaxUsers int
}

func (o *DistributorOptions) withDefaults() DistributorOptions {
	out := *o
	if out.MaxFeedSize <= 0 {
		out.MaxFeedSize = 500
	}
	if out.FanoutLimit <= 0 {
		out.FanoutLimit = 10000
	}
	if out.BackfillLimit <= 0 {
		out.BackfillLimit = 50
	}
	if out.FanoutBudget <= 0 {
		out.FanoutBudget = 10 * time.Second
	}
	if out.ReconcileInterval <= 0 {
		out.ReconcileInterval = time.Minute
	}
	if out.ReconcileMaxUsers <= 0 {
		out.ReconcileMaxUsers = 1000
	}
	return out
}

// Distributor translates post and follow lifecycle events into index
// mutations. All four hooks are fire-and-forget relative to the write that
// triggered them: callers run them on a background task and never surface
// their errors to the end user. Failed per-user writes land in a bounded
// pending set that the reconciliation job repairs by rebuilding just those
// users.
type Distributor struct {
	index  domain.FeedIndex
	graph  domain.SocialGraph
	posts  domain.PostStore
	logger *slog.Logger
	opts   DistributorOptions

	push *PushFanout
	pull *PullOnRead

	rebuilder *Rebuilder
	pending   *pendingSet
}

// NewDistributor wires a Distributor. The rebuilder is used by the
// reconciliation job to repair users whose fanout writes failed.
func NewDistributor(
	index domain.FeedIndex,
	graph domain.SocialGraph,
	posts domain.PostStore,
	rebuilder *Rebuilder,
	opts DistributorOptions,
	logger *slog.Logger,
) *Distributor {
	opts = opts.withDefaults()
	return &Distributor{
		index:     index,
		graph:     graph,
		posts:     posts,
		logger:    logger,
		opts:      opts,
		push:      NewPushFanout(index, opts.MaxFeedSize, logger),
		pull:      NewPullOnRead(logger),
		rebuilder: rebuilder,
		pending:   newPendingSet(opts.ReconcileMaxUsers * 4),
	}
}

// strategyFor picks push or pull from the follower cardinality. The author
// counts as one more target, but the policy is defined over followers only.
func (d *Distributor) strategyFor(followerCount int) FanoutStrategy {
	if followerCount <= d.opts.FanoutLimit {
		return d.push
	}
	return d.pull
}

// OnPostCreated pushes a new post into the feeds of the author's followers
// and the author, unless the follower set is over the fanout limit.
func (d *Distributor) OnPostCreated(ctx context.Context, post *domain.Post) error {
	followers, err := d.graph.FollowerIDs(ctx, post.AuthorID)
	if err != nil {
		return fmt.Errorf("post created %s: follower ids: %w", post.ID, err)
	}

	targets := append(followers, post.AuthorID)

	ctx, cancel := context.WithTimeout(ctx, d.opts.FanoutBudget)
	defer cancel()

	if err := d.strategyFor(len(followers)).Distribute(ctx, post, targets); err != nil {
		d.recordFailures(targets, err)
		return fmt.Errorf("post created %s: %w", post.ID, err)
	}
	return nil
}

// OnPostDeleted mirrors OnPostCreated's policy to withdraw a deleted post.
// For over-limit authors the withdrawal is deferred the same way the push
// was: copies picked up by rebuilds are filtered at materialization until
// the next rebuild drops them, so removal is best-effort and self-healing
// rather than guaranteed immediate.
func (d *Distributor) OnPostDeleted(ctx context.Context, postID, authorID string) error {
	followers, err := d.graph.FollowerIDs(ctx, authorID)
	if err != nil {
		return fmt.Errorf("post deleted %s: follower ids: %w", postID, err)
	}

	targets := append(followers, authorID)
	post := &domain.Post{ID: postID, AuthorID: authorID}

	ctx, cancel := context.WithTimeout(ctx, d.opts.FanoutBudget)
	defer cancel()

	if err := d.strategyFor(len(followers)).Withdraw(ctx, post, targets); err != nil {
		d.recordFailures(targets, err)
		return fmt.Errorf("post deleted %s: %w", postID, err)
	}
	return nil
}

// OnFollow backfills the follower's index with the followee's most recent
// posts so a new follow is useful without a full rebuild.
func (d *Distributor) OnFollow(ctx context.Context, followerID, followingID string) error {
	recent, err := d.posts.RecentPostsByAuthors(ctx, []string{followingID}, d.opts.BackfillLimit)
	if err != nil {
		return fmt.Errorf("follow %s -> %s: recent posts: %w", followerID, followingID, err)
	}
	if len(recent) == 0 {
		return nil
	}

	for _, p := range recent {
		if err := d.index.Add(ctx, followerID, p.ID, p.Score()); err != nil {
			d.pending.add(followerID)
			return fmt.Errorf("follow %s -> %s: backfill: %w", followerID, followingID, err)
		}
	}
	if err := d.index.Trim(ctx, followerID, d.opts.MaxFeedSize); err != nil {
		return fmt.Errorf("follow %s -> %s: trim: %w", followerID, followingID, err)
	}
	return nil
}

// OnUnfollow surgically removes the unfollowed author's posts from the
// follower's index, without a full rebuild.
func (d *Distributor) OnUnfollow(ctx context.Context, followerID, unfollowedID string) error {
	ids, err := d.index.Range(ctx, followerID, 1, d.opts.MaxFeedSize)
	if err != nil {
		return fmt.Errorf("unfollow %s -x %s: range: %w", followerID, unfollowedID, err)
	}
	if len(ids) == 0 {
		return nil
	}

	indexed, err := d.posts.GetPosts(ctx, ids)
	if err != nil {
		return fmt.Errorf("unfollow %s -x %s: resolve authors: %w", followerID, unfollowedID, err)
	}

	for _, p := range indexed {
		if p.AuthorID != unfollowedID {
			continue
		}
		if err := d.index.Remove(ctx, followerID, p.ID); err != nil {
			d.pending.add(followerID)
			return fmt.Errorf("unfollow %s -x %s: remove %s: %w", followerID, unfollowedID, p.ID, err)
		}
	}
	return nil
}

// recordFailures extracts the users whose index write failed and schedules
// them for reconciliation. When the error carries no per-entry detail (the
// whole pass failed, e.g. on budget expiry) every target is scheduled.
func (d *Distributor) recordFailures(targets []string, err error) {
	var be *domain.BatchError
	if errors.As(err, &be) {
		targets = be.FailedUserIDs
	}
	for _, userID := range targets {
		if !d.pending.add(userID) {
			d.logger.Warn("reconciliation set full, dropping user", "userId", userID)
		}
	}
}

// StartReconciler runs the bounded periodic reconciliation loop: every
// interval it rebuilds the indices of users with failed fanout writes, up
// to ReconcileMaxUsers per pass. It blocks until ctx is cancelled.
func (d *Distributor) StartReconciler(ctx context.Context) {
	ticker := time.NewTicker(d.opts.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reconcile(ctx)
		}
	}
}

func (d *Distributor) reconcile(ctx context.Context) {
	users := d.pending.take(d.opts.ReconcileMaxUsers)
	if len(users) == 0 {
		return
	}

	repaired := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			// Put the rest back for the next pass.
			for _, u := range users[repaired:] {
				d.pending.add(u)
			}
			return
		}
		if err := d.rebuilder.Rebuild(ctx, userID); err != nil {
			d.logger.Error("reconciliation rebuild failed", "userId", userID, "error", err)
			d.pending.add(userID)
		}
		repaired++
	}
	d.logger.Info("reconciliation pass complete", "users", len(users))
}

// PendingReconciliation returns how many users currently await repair.
func (d *Distributor) PendingReconciliation() int {
	return d.pending.len()
}
