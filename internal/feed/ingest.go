package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meshsocial/feedserve/internal/domain"
	"github.com/meshsocial/feedserve/internal/tasks"
)

// Mirror is the writable side of the durable store: the service's local
// copy of posts and follow edges, kept current from the lifecycle stream.
type Mirror interface {
	CreatePost(ctx context.Context, post *domain.Post) error
	DeletePost(ctx context.Context, id string) error
	AddFollow(ctx context.Context, followerID, followingID string) error
	RemoveFollow(ctx context.Context, followerID, followingID string) error
}

// Ingestor applies lifecycle events: the durable mirror is updated
// synchronously, then index distribution is submitted to the background
// runner. The event source observes only the mirror write; fanout failures
// are logged by the runner and repaired by reconciliation, never surfaced.
type Ingestor struct {
	mirror Mirror
	dist   *Distributor
	runner *tasks.Runner
	logger *slog.Logger
}

// NewIngestor wires an Ingestor.
func NewIngestor(mirror Mirror, dist *Distributor, runner *tasks.Runner, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		mirror: mirror,
		dist:   dist,
		runner: runner,
		logger: logger,
	}
}

// HandlePostCreated persists the post and schedules its fanout.
func (i *Ingestor) HandlePostCreated(ctx context.Context, post *domain.Post) error {
	if err := i.mirror.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("ingest post created: %w", err)
	}
	i.runner.Submit("distribute-post", func(ctx context.Context) error {
		return i.dist.OnPostCreated(ctx, post)
	})
	return nil
}

// HandlePostDeleted removes the post and schedules its withdrawal.
func (i *Ingestor) HandlePostDeleted(ctx context.Context, postID, authorID string) error {
	if err := i.mirror.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("ingest post deleted: %w", err)
	}
	i.runner.Submit("withdraw-post", func(ctx context.Context) error {
		return i.dist.OnPostDeleted(ctx, postID, authorID)
	})
	return nil
}

// HandleFollow records the edge and schedules the backfill.
func (i *Ingestor) HandleFollow(ctx context.Context, followerID, followingID string) error {
	if err := i.mirror.AddFollow(ctx, followerID, followingID); err != nil {
		return fmt.Errorf("ingest follow: %w", err)
	}
	i.runner.Submit("backfill-follow", func(ctx context.Context) error {
		return i.dist.OnFollow(ctx, followerID, followingID)
	})
	return nil
}

// HandleUnfollow removes the edge and schedules the surgical removal.
func (i *Ingestor) HandleUnfollow(ctx context.Context, followerID, followingID string) error {
	if err := i.mirror.RemoveFollow(ctx, followerID, followingID); err != nil {
		return fmt.Errorf("ingest unfollow: %w", err)
	}
	i.runner.Submit("unfollow-removal", func(ctx context.Context) error {
		return i.dist.OnUnfollow(ctx, followerID, followingID)
	})
	return nil
}
