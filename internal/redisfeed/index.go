package redisfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshsocial/feedserve/internal/domain"
)

// Index implements domain.FeedIndex on a Redis sorted set per user. The
// member is the post id, the score its creation time in epoch millis, so a
// descending range is the reverse-chronological feed.
//
// The client is injected; its lifecycle (connect/close) belongs to the
// process bootstrap, not to this type.
type Index struct {
	rdb       *redis.Client
	ttl       time.Duration
	chunkSize int
}

// Options tunes an Index.
type Options struct {
	// TTL is how long an idle index survives. Refreshed by every mutating
	// call.
	TTL time.Duration

	// ChunkSize caps the number of users per pipelined round trip in
	// AddBatch/RemoveBatch. Larger follower sets are split across
	// multiple pipelines rather than sent as one unbounded call.
	ChunkSize int
}

// NewIndex creates an Index on the given Redis client.
func NewIndex(rdb *redis.Client, opts Options) *Index {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 200
	}
	return &Index{
		rdb:       rdb,
		ttl:       opts.TTL,
		chunkSize: opts.ChunkSize,
	}
}

func feedKey(userID string) string {
	return "feed:" + userID
}

// Add inserts or re-scores one entry and refreshes the index TTL.
func (ix *Index) Add(ctx context.Context, userID, postID string, score int64) error {
	key := feedKey(userID)
	_, err := ix.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: postID})
		pipe.Expire(ctx, key, ix.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index add %s: %w", key, err)
	}
	return nil
}

// AddBatch pushes one post into many users' indices. Users are chunked so a
// single call never monopolizes the connection, and each user's write is
// isolated: a failed entry is reported through a domain.BatchError without
// aborting the rest.
func (ix *Index) AddBatch(ctx context.Context, userIDs []string, postID string, score int64) error {
	return ix.batch(ctx, "add", userIDs, func(pipe redis.Pipeliner, key string) *redis.IntCmd {
		return pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: postID})
	})
}

// Remove deletes one entry. Removing an absent entry is a no-op.
func (ix *Index) Remove(ctx context.Context, userID, postID string) error {
	key := feedKey(userID)
	_, err := ix.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, postID)
		pipe.Expire(ctx, key, ix.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index remove %s: %w", key, err)
	}
	return nil
}

// RemoveBatch removes one post from many users' indices with the same
// chunking and isolation rules as AddBatch.
func (ix *Index) RemoveBatch(ctx context.Context, userIDs []string, postID string) error {
	return ix.batch(ctx, "remove", userIDs, func(pipe redis.Pipeliner, key string) *redis.IntCmd {
		return pipe.ZRem(ctx, key, postID)
	})
}

func (ix *Index) batch(ctx context.Context, op string, userIDs []string, cmd func(redis.Pipeliner, string) *redis.IntCmd) error {
	var failed []string
	var first error
	for start := 0; start < len(userIDs); start += ix.chunkSize {
		end := min(start+ix.chunkSize, len(userIDs))
		chunk := userIDs[start:end]

		cmds := make([]*redis.IntCmd, len(chunk))
		_, _ = ix.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, userID := range chunk {
				key := feedKey(userID)
				cmds[i] = cmd(pipe, key)
				pipe.Expire(ctx, key, ix.ttl)
			}
			return nil
		})

		// Exec's return value is just the first failure; the per-command
		// scan below attributes errors to individual entries, and a
		// transport-level failure surfaces on every command in the chunk.
		// Later chunks still run either way.
		for i, c := range cmds {
			if cerr := c.Err(); cerr != nil {
				failed = append(failed, chunk[i])
				if first == nil {
					first = cerr
				}
			}
		}
	}

	if len(failed) > 0 {
		return &domain.BatchError{
			Op:            op,
			FailedUserIDs: failed,
			Attempted:     len(userIDs),
			First:         first,
		}
	}
	return nil
}

// Trim drops the lowest-score entries beyond maxSize, keeping the most
// recent posts.
func (ix *Index) Trim(ctx context.Context, userID string, maxSize int) error {
	key := feedKey(userID)
	// Ranks are ascending by score, so everything below rank -(maxSize+1)
	// is outside the top maxSize.
	err := ix.rdb.ZRemRangeByRank(ctx, key, 0, int64(-maxSize-1)).Err()
	if err != nil {
		return fmt.Errorf("index trim %s: %w", key, err)
	}
	return nil
}

// Range returns postIDs by descending score for the 1-indexed page.
func (ix *Index) Range(ctx context.Context, userID string, page, limit int) ([]string, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("index range: page and limit must be at least 1, got page=%d limit=%d", page, limit)
	}
	start := int64(page-1) * int64(limit)
	stop := start + int64(limit) - 1
	ids, err := ix.rdb.ZRevRange(ctx, feedKey(userID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("index range %s: %w", feedKey(userID), err)
	}
	return ids, nil
}

// Size returns the number of entries in the user's index.
func (ix *Index) Size(ctx context.Context, userID string) (int64, error) {
	n, err := ix.rdb.ZCard(ctx, feedKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("index size %s: %w", feedKey(userID), err)
	}
	return n, nil
}

// Exists reports whether the user's index is warm. An absent key is the
// cold state, distinct from an empty feed.
func (ix *Index) Exists(ctx context.Context, userID string) (bool, error) {
	n, err := ix.rdb.Exists(ctx, feedKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", feedKey(userID), err)
	}
	return n > 0, nil
}

// Invalidate deletes the whole index.
func (ix *Index) Invalidate(ctx context.Context, userID string) error {
	if err := ix.rdb.Del(ctx, feedKey(userID)).Err(); err != nil {
		return fmt.Errorf("index invalidate %s: %w", feedKey(userID), err)
	}
	return nil
}
