package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "http://localhost:3000"

// Client is a minimal typed client for the feed service API, used by the
// feedctl command.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. If baseURL is empty, it defaults to the local
// development server.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FeedPost is one hydrated post in a feed response.
type FeedPost struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// FeedResponse is the body of GET /v1/feed.
type FeedResponse struct {
	PostIDs []string   `json:"postIds"`
	Posts   []FeedPost `json:"posts"`
	Total   int64      `json:"total"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	HasMore bool       `json:"hasMore"`
}

// GetFeed fetches one page of a user's feed.
func (c *Client) GetFeed(ctx context.Context, userID string, page, limit int) (*FeedResponse, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var resp FeedResponse
	if err := c.get(ctx, "/v1/feed?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return &resp, nil
}

// RebuildFeed forces a resync of the user's feed index.
func (c *Client) RebuildFeed(ctx context.Context, userID string) error {
	q := url.Values{}
	q.Set("userId", userID)

	var resp struct {
		Rebuilt bool `json:"rebuilt"`
	}
	if err := c.post(ctx, "/v1/feed/rebuild?"+q.Encode(), nil, &resp); err != nil {
		return fmt.Errorf("rebuild feed: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s (%d)", apiErr.Error, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
