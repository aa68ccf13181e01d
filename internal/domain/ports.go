package domain

import "context"

// FeedIndex is the per-user ordered feed index: a bounded, evictable
// projection over the durable store with sorted-set semantics. All
// operations act on a single user's index; there are no cross-user
// transactions. Every mutating call refreshes the index's idle TTL.
type FeedIndex interface {
	// Add inserts or re-scores a single entry. Idempotent: after the call
	// the entry's score equals the given value, with no duplicates.
	Add(ctx context.Context, userID, postID string, score int64) error

	// AddBatch applies Add for many users in pipelined round trips. A
	// failure for one user must not abort the writes for the others;
	// the returned error reports how many entries failed.
	AddBatch(ctx context.Context, userIDs []string, postID string, score int64) error

	// Remove deletes a single entry. Removing an absent entry is a no-op.
	Remove(ctx context.Context, userID, postID string) error

	// RemoveBatch applies Remove for many users with the same isolation
	// rules as AddBatch.
	RemoveBatch(ctx context.Context, userIDs []string, postID string) error

	// Trim drops the lowest-score entries beyond maxSize.
	Trim(ctx context.Context, userID string, maxSize int) error

	// Range returns postIDs ordered by descending score for the given
	// 1-indexed page. The last page may hold fewer than limit ids.
	Range(ctx context.Context, userID string, page, limit int) ([]string, error)

	// Size returns the number of entries in the user's index.
	Size(ctx context.Context, userID string) (int64, error)

	// Exists reports whether the user's index is warm. A missing index is
	// the cold state, distinct from an empty feed.
	Exists(ctx context.Context, userID string) (bool, error)

	// Invalidate deletes the whole index.
	Invalidate(ctx context.Context, userID string) error
}

// SocialGraph exposes the follow relationships the engine consumes. Owned
// by the social-graph subsystem.
type SocialGraph interface {
	// FollowingIDs returns the ids of users that userID follows.
	FollowingIDs(ctx context.Context, userID string) ([]string, error)

	// FollowerIDs returns the ids of users following userID.
	FollowerIDs(ctx context.Context, userID string) ([]string, error)
}

// PostStore is the authoritative post query surface the engine needs from
// the durable store. It defines no write operations: posts are written by
// the authoring subsystem.
type PostStore interface {
	// RecentPostsByAuthors returns the most recent posts whose author is in
	// authorIDs, ordered by CreatedAt descending, capped at limit.
	RecentPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]Post, error)

	// GetPosts fetches posts by id, preserving the order of ids. Ids whose
	// post no longer exists are simply absent from the result.
	GetPosts(ctx context.Context, ids []string) ([]Post, error)

	// PostExists reports whether a post is still present in the durable
	// store.
	PostExists(ctx context.Context, id string) (bool, error)
}

// CursorStore persists the event-stream resume cursor so the subscriber can
// pick up where it left off after a restart.
type CursorStore interface {
	// GetCursor retrieves the last-processed cursor for the given service
	// name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the cursor for the given service name.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}
