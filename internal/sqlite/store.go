package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meshsocial/feedserve/internal/domain"
)

// Store implements domain.PostStore, domain.SocialGraph and
// domain.CursorStore on sqlite. It is the service's authoritative mirror of
// posts and follow edges, kept current by the event-stream subscriber.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the sqlite database at path, verifies the
// connection and ensures the schema exists. The caller should call Close
// when the store is no longer needed.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id         TEXT PRIMARY KEY,
	author_id  TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_author_created ON posts (author_id, created_at DESC);

CREATE TABLE IF NOT EXISTS follows (
	follower_id  TEXT NOT NULL,
	following_id TEXT NOT NULL,
	PRIMARY KEY (follower_id, following_id)
);
CREATE INDEX IF NOT EXISTS idx_follows_following ON follows (following_id);

CREATE TABLE IF NOT EXISTS cursors (
	service      TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);`

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePost inserts a post. Re-inserting an existing id is a no-op.
func (s *Store) CreatePost(ctx context.Context, post *domain.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		post.ID, post.AuthorID, post.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert post %s: %w", post.ID, err)
	}
	return nil
}

// DeletePost removes a post by id. Deleting an absent post is a no-op.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return nil
}

// AddFollow records a follow edge. Duplicate edges are ignored.
func (s *Store) AddFollow(ctx context.Context, followerID, followingID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follows (follower_id, following_id)
		VALUES (?, ?)
		ON CONFLICT (follower_id, following_id) DO NOTHING`,
		followerID, followingID,
	)
	if err != nil {
		return fmt.Errorf("insert follow %s -> %s: %w", followerID, followingID, err)
	}
	return nil
}

// RemoveFollow deletes a follow edge. Removing an absent edge is a no-op.
func (s *Store) RemoveFollow(ctx context.Context, followerID, followingID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND following_id = ?`,
		followerID, followingID,
	)
	if err != nil {
		return fmt.Errorf("delete follow %s -> %s: %w", followerID, followingID, err)
	}
	return nil
}

// RecentPostsByAuthors returns the most recent posts authored by any of
// authorIDs, newest first, capped at limit.
func (s *Store) RecentPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]domain.Post, error) {
	if len(authorIDs) == 0 || limit < 1 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, author_id, created_at
		FROM posts
		WHERE author_id IN (%s)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		placeholders(len(authorIDs)),
	)

	args := make([]any, 0, len(authorIDs)+1)
	for _, id := range authorIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent posts (%d authors, limit=%d): %w", len(authorIDs), limit, err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// GetPosts fetches posts by id, preserving the order of ids. Ids whose post
// no longer exists are absent from the result.
func (s *Store) GetPosts(ctx context.Context, ids []string) ([]domain.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, author_id, created_at
		FROM posts
		WHERE id IN (%s)`,
		placeholders(len(ids)),
	)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts by id (%d ids): %w", len(ids), err)
	}
	defer rows.Close()

	fetched, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Post, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// The SQL result order is arbitrary; the caller's id order is the feed
	// order and must survive.
	ordered := make([]domain.Post, 0, len(fetched))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// PostExists reports whether a post is still present.
func (s *Store) PostExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query post exists %s: %w", id, err)
	}
	return true, nil
}

// FollowingIDs returns the ids of users that userID follows.
func (s *Store) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT following_id FROM follows WHERE follower_id = ?`, userID)
}

// FollowerIDs returns the ids of users following userID.
func (s *Store) FollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT follower_id FROM follows WHERE following_id = ?`, userID)
}

// GetCursor retrieves the saved event-stream cursor for a service.
func (s *Store) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query cursor %s: %w", service, err)
	}
	return cursor, nil
}

// UpdateCursor upserts the event-stream cursor for a service.
func (s *Store) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		service, cursor, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert cursor %s: %w", service, err)
	}
	return nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

func scanPosts(rows *sql.Rows) ([]domain.Post, error) {
	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.AuthorID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.CreatedAt = time.UnixMilli(createdAt).UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
