package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the service.
type Config struct {
	// Port is the HTTP server port.
	Port int `env:"PORT" envDefault:"3000"`

	// DatabasePath is the sqlite database file for the durable store.
	DatabasePath string `env:"FEED_DATABASE_PATH" envDefault:"feedserve.db"`

	// RedisAddr is the host:port of the ordered-index store.
	RedisAddr string `env:"FEED_REDIS_ADDR" envDefault:"localhost:6379"`

	// RedisPassword is the index store password, empty for none.
	RedisPassword string `env:"FEED_REDIS_PASSWORD"`

	// EventStreamURL is the websocket endpoint publishing post and follow
	// lifecycle events. Empty disables the subscriber (reads and explicit
	// rebuilds still work).
	EventStreamURL string `env:"FEED_EVENT_STREAM_URL"`

	// MaxFeedSize bounds each user's feed index.
	MaxFeedSize int `env:"FEED_MAX_SIZE" envDefault:"500"`

	// FanoutLimit is the follower-count threshold above which posts are not
	// pushed at write time and are recovered through read-time rebuilds.
	FanoutLimit int `env:"FEED_FANOUT_LIMIT" envDefault:"10000"`

	// BackfillLimit caps how many of a newly-followed author's recent posts
	// are copied into the follower's index.
	BackfillLimit int `env:"FEED_BACKFILL_LIMIT" envDefault:"50"`

	// BatchChunkSize caps users per pipelined index round trip.
	BatchChunkSize int `env:"FEED_BATCH_CHUNK_SIZE" envDefault:"200"`

	// FeedTTL is how long an idle index survives before expiring.
	FeedTTL time.Duration `env:"FEED_TTL" envDefault:"24h"`

	// FanoutBudget time-boxes a single distribution pass; chunks left over
	// are handed to the reconciler instead of blocking.
	FanoutBudget time.Duration `env:"FEED_FANOUT_BUDGET" envDefault:"10s"`

	// ReconcileInterval is how often the reconciliation job re-checks users
	// with failed fanout writes.
	ReconcileInterval time.Duration `env:"FEED_RECONCILE_INTERVAL" envDefault:"1m"`

	// ReconcileMaxUsers bounds how many users one reconciliation pass
	// repairs.
	ReconcileMaxUsers int `env:"FEED_RECONCILE_MAX_USERS" envDefault:"1000"`

	// TaskWorkers is the size of the background distribution worker pool.
	TaskWorkers int `env:"FEED_TASK_WORKERS" envDefault:"8"`

	// TaskQueueSize bounds the pending background task queue.
	TaskQueueSize int `env:"FEED_TASK_QUEUE_SIZE" envDefault:"1024"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.MaxFeedSize < 1 {
		return nil, fmt.Errorf("FEED_MAX_SIZE must be at least 1, got %d", cfg.MaxFeedSize)
	}
	if cfg.FanoutLimit < 0 {
		return nil, fmt.Errorf("FEED_FANOUT_LIMIT must not be negative, got %d", cfg.FanoutLimit)
	}
	if cfg.BatchChunkSize < 1 {
		return nil, fmt.Errorf("FEED_BATCH_CHUNK_SIZE must be at least 1, got %d", cfg.BatchChunkSize)
	}
	if cfg.BackfillLimit < 1 {
		return nil, fmt.Errorf("FEED_BACKFILL_LIMIT must be at least 1, got %d", cfg.BackfillLimit)
	}

	return &cfg, nil
}
