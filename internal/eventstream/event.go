package eventstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meshsocial/feedserve/internal/domain"
)

// Event kinds published on the platform lifecycle stream.
const (
	KindPostCreated = "post_created"
	KindPostDeleted = "post_deleted"
	KindFollow      = "follow"
	KindUnfollow    = "unfollow"
)

// streamEvent is the raw JSON structure on the wire.
type streamEvent struct {
	Kind   string       `json:"kind"`
	TimeUS int64        `json:"time_us"`
	Post   *postEvent   `json:"post,omitempty"`
	Follow *followEvent `json:"follow,omitempty"`
}

// postEvent carries a post lifecycle payload.
type postEvent struct {
	ID          string `json:"id"`
	AuthorID    string `json:"author_id"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// followEvent carries a follow lifecycle payload.
type followEvent struct {
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
}

func parseEvent(data []byte) (*streamEvent, error) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	switch ev.Kind {
	case KindPostCreated, KindPostDeleted:
		if ev.Post == nil {
			return nil, fmt.Errorf("%s event missing post payload", ev.Kind)
		}
	case KindFollow, KindUnfollow:
		if ev.Follow == nil {
			return nil, fmt.Errorf("%s event missing follow payload", ev.Kind)
		}
	}
	return &ev, nil
}

func (e *postEvent) toPost() *domain.Post {
	return &domain.Post{
		ID:        e.ID,
		AuthorID:  e.AuthorID,
		CreatedAt: time.UnixMilli(e.CreatedAtMS).UTC(),
	}
}
