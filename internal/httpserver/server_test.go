package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meshsocial/feedserve/internal/domain"
)

type fakeService struct {
	page       *domain.FeedPage
	lookups    []domain.Lookup
	getErr     error
	rebuildErr error

	rebuiltUser string
}

func (f *fakeService) GetFeed(_ context.Context, _ string, page, limit int) (*domain.FeedPage, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := *f.page
	out.Page = page
	out.Limit = limit
	return &out, nil
}

func (f *fakeService) Materialize(_ context.Context, _ []string) ([]domain.Lookup, error) {
	return f.lookups, nil
}

func (f *fakeService) Rebuild(_ context.Context, userID string) error {
	f.rebuiltUser = userID
	return f.rebuildErr
}

func newTestServer(svc *fakeService) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(0, svc, svc, logger)
	return httptest.NewServer(s.Routes())
}

func post(t *testing.T, p *domain.Post) domain.Lookup {
	t.Helper()
	return domain.Lookup{ID: p.ID, Post: p}
}

func TestGetFeedHappyPath(t *testing.T) {
	p1 := &domain.Post{ID: "p1", AuthorID: "alice", CreatedAt: time.UnixMilli(200).UTC()}
	p2 := &domain.Post{ID: "p2", AuthorID: "bob", CreatedAt: time.UnixMilli(100).UTC()}
	svc := &fakeService{
		page: &domain.FeedPage{
			PostIDs: []string{"p1", "p2"},
			Total:   2,
		},
		lookups: []domain.Lookup{post(t, p1), post(t, p2)},
	}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/feed?userId=u1&page=1&limit=10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.PostIDs) != 2 || body.PostIDs[0] != "p1" || body.PostIDs[1] != "p2" {
		t.Fatalf("expected [p1 p2], got %v", body.PostIDs)
	}
	if len(body.Posts) != 2 || body.Posts[0].AuthorID != "alice" {
		t.Fatalf("expected hydrated posts, got %v", body.Posts)
	}
	if body.Total != 2 || body.HasMore {
		t.Fatalf("expected total=2 hasMore=false, got total=%d hasMore=%v", body.Total, body.HasMore)
	}
	if body.Page != 1 || body.Limit != 10 {
		t.Fatalf("expected page=1 limit=10 echoed back, got page=%d limit=%d", body.Page, body.Limit)
	}
}

func TestGetFeedFiltersDanglingIDs(t *testing.T) {
	p1 := &domain.Post{ID: "p1", AuthorID: "alice", CreatedAt: time.UnixMilli(200).UTC()}
	svc := &fakeService{
		page: &domain.FeedPage{
			PostIDs: []string{"p1", "ghost"},
			Total:   2,
		},
		lookups: []domain.Lookup{post(t, p1), {ID: "ghost"}},
	}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/feed?userId=u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.PostIDs) != 1 || body.PostIDs[0] != "p1" {
		t.Fatalf("expected dangling id filtered, got %v", body.PostIDs)
	}
	// Totals stay approximate rather than recomputed.
	if body.Total != 2 {
		t.Fatalf("expected total untouched at 2, got %d", body.Total)
	}
}

func TestGetFeedValidation(t *testing.T) {
	svc := &fakeService{page: &domain.FeedPage{}}
	ts := newTestServer(svc)
	defer ts.Close()

	cases := []struct {
		name string
		path string
	}{
		{"missing userId", "/v1/feed"},
		{"bad page", "/v1/feed?userId=u1&page=zero"},
		{"zero page", "/v1/feed?userId=u1&page=0"},
		{"bad limit", "/v1/feed?userId=u1&limit=nope"},
		{"limit too high", "/v1/feed?userId=u1&limit=51"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestGetFeedErrorReturns500(t *testing.T) {
	svc := &fakeService{getErr: errors.New("durable store down")}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/feed?userId=u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestRebuildFeed(t *testing.T) {
	svc := &fakeService{page: &domain.FeedPage{}}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/feed/rebuild?userId=u1", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["rebuilt"] {
		t.Fatalf("expected rebuilt=true, got %v", body)
	}
	if svc.rebuiltUser != "u1" {
		t.Fatalf("expected rebuild for u1, got %q", svc.rebuiltUser)
	}
}

func TestRebuildFeedRequiresUser(t *testing.T) {
	svc := &fakeService{}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/feed/rebuild", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	svc := &fakeService{}
	ts := newTestServer(svc)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
