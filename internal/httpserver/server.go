package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/meshsocial/feedserve/internal/domain"
)

const (
	defaultLimit = 20
	maxLimit     = 50
)

// FeedReader serves paginated reads and materializes ids into posts.
type FeedReader interface {
	GetFeed(ctx context.Context, userID string, page, limit int) (*domain.FeedPage, error)
	Materialize(ctx context.Context, ids []string) ([]domain.Lookup, error)
}

// FeedRebuilder forces a resync of one user's index.
type FeedRebuilder interface {
	Rebuild(ctx context.Context, userID string) error
}

// Server is the HTTP server exposing the feed API.
type Server struct {
	reader     FeedReader
	rebuilder  FeedRebuilder
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server on the given port.
func NewServer(port int, reader FeedReader, rebuilder FeedRebuilder, logger *slog.Logger) *Server {
	s := &Server{
		reader:    reader,
		rebuilder: rebuilder,
		logger:    logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withLogging(logger, s.Routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Routes returns the service mux. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/feed", s.handleGetFeed)
	mux.HandleFunc("POST /v1/feed/rebuild", s.handleRebuildFeed)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type postResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

type feedResponse struct {
	PostIDs []string       `json:"postIds"`
	Posts   []postResponse `json:"posts"`
	Total   int64          `json:"total"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	HasMore bool           `json:"hasMore"`
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "userId parameter is required")
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "page must be a positive integer")
			return
		}
		page = parsed
	}

	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxLimit {
			writeError(w, http.StatusBadRequest, "InvalidRequest",
				fmt.Sprintf("limit must be between 1 and %d", maxLimit))
			return
		}
		limit = parsed
	}

	feedPage, err := s.reader.GetFeed(r.Context(), userID, page, limit)
	if err != nil {
		s.logger.Error("failed to get feed", "userId", userID, "page", page, "limit", limit, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get feed")
		return
	}

	lookups, err := s.reader.Materialize(r.Context(), feedPage.PostIDs)
	if err != nil {
		s.logger.Error("failed to materialize feed", "userId", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get feed")
		return
	}

	// Dangling ids are dropped silently; the totals stay approximate
	// rather than recomputed against the filtered view.
	resp := feedResponse{
		PostIDs: make([]string, 0, len(lookups)),
		Posts:   make([]postResponse, 0, len(lookups)),
		Total:   feedPage.Total,
		Page:    feedPage.Page,
		Limit:   feedPage.Limit,
		HasMore: feedPage.HasMore,
	}
	dangling := 0
	for _, l := range lookups {
		if !l.Found() {
			dangling++
			continue
		}
		resp.PostIDs = append(resp.PostIDs, l.ID)
		resp.Posts = append(resp.Posts, postResponse{
			ID:        l.Post.ID,
			AuthorID:  l.Post.AuthorID,
			CreatedAt: l.Post.CreatedAt,
		})
	}
	if dangling > 0 {
		s.logger.Warn("dropped dangling feed entries", "userId", userID, "count", dangling)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuildFeed(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "userId parameter is required")
		return
	}

	if err := s.rebuilder.Rebuild(r.Context(), userID); err != nil {
		s.logger.Error("failed to rebuild feed", "userId", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to rebuild feed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
