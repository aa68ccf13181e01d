package eventstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshsocial/feedserve/internal/domain"
)

const (
	cursorServiceName  = "lifecycle-stream"
	cursorSaveInterval = 5 * time.Second
	reconnectDelay     = 5 * time.Second
	statsLogInterval   = 30 * time.Second
)

// Handler receives decoded lifecycle events. Implementations persist the
// durable mirror synchronously and hand distribution to background tasks,
// so a slow fanout never stalls the stream.
type Handler interface {
	HandlePostCreated(ctx context.Context, post *domain.Post) error
	HandlePostDeleted(ctx context.Context, postID, authorID string) error
	HandleFollow(ctx context.Context, followerID, followingID string) error
	HandleUnfollow(ctx context.Context, followerID, followingID string) error
}

// Subscriber connects to the platform's lifecycle event stream and feeds
// events to the handler, resuming from the last persisted cursor.
type Subscriber struct {
	url     string
	handler Handler
	cursors domain.CursorStore
	logger  *slog.Logger
}

// NewSubscriber creates a stream subscriber.
func NewSubscriber(streamURL string, handler Handler, cursors domain.CursorStore, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:     streamURL,
		handler: handler,
		cursors: cursors,
		logger:  logger,
	}
}

// Start connects to the stream and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("event stream connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) string {
	u, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	q := u.Query()
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.cursors.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL := s.buildURL(cursor)
	s.logger.Info("connecting to event stream", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to event stream")

	lastCursorSave := time.Now()
	var latestCursor int64
	var eventsReceived, eventsHandled int64
	lastStatsLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		latestCursor = event.TimeUS

		if err := s.dispatch(ctx, event); err != nil {
			s.logger.Error("failed to handle event", "kind", event.Kind, "error", err)
		} else {
			eventsHandled++
		}

		if time.Since(lastStatsLog) >= statsLogInterval {
			s.logger.Info("event stream stats",
				"events_received", eventsReceived,
				"events_handled", eventsHandled,
			)
			lastStatsLog = time.Now()
		}

		// Periodically save cursor
		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if err := s.cursors.UpdateCursor(ctx, cursorServiceName, latestCursor); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			} else {
				lastCursorSave = time.Now()
			}
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, event *streamEvent) error {
	switch event.Kind {
	case KindPostCreated:
		return s.handler.HandlePostCreated(ctx, event.Post.toPost())
	case KindPostDeleted:
		return s.handler.HandlePostDeleted(ctx, event.Post.ID, event.Post.AuthorID)
	case KindFollow:
		return s.handler.HandleFollow(ctx, event.Follow.FollowerID, event.Follow.FollowingID)
	case KindUnfollow:
		return s.handler.HandleUnfollow(ctx, event.Follow.FollowerID, event.Follow.FollowingID)
	default:
		// Unknown kinds are skipped so the stream can grow without breaking
		// older consumers.
		return nil
	}
}
