package domain

import "time"

// Post is the minimal projection of an authored post that the feed engine
// needs. Posts are owned by the authoring subsystem and are immutable here
// except for deletion.
type Post struct {
	// ID is the post's unique identifier.
	ID string

	// AuthorID identifies the user who authored the post.
	AuthorID string

	// CreatedAt is when the post was created. It doubles as the feed
	// ordering key.
	CreatedAt time.Time
}

// Score returns the post's ordering key inside a feed index: creation time
// in epoch milliseconds, a monotonic proxy for recency.
func (p *Post) Score() int64 {
	return p.CreatedAt.UnixMilli()
}

// FollowEdge is a directed edge in the social graph: Follower follows
// Following. Edges are created and destroyed by the social-graph subsystem;
// the feed engine only reads them.
type FollowEdge struct {
	FollowerID  string
	FollowingID string
}
