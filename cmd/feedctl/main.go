package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/meshsocial/feedserve/internal/apiclient"
	"github.com/meshsocial/feedserve/internal/domain"
	"github.com/meshsocial/feedserve/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL string
		userID  string
		page    int
		limit   int
		rebuild bool

		seedDB      string
		seedAuthor  string
		seedPosts   int
		seedFollows string
	)

	flag.StringVar(&baseURL, "addr", envOrDefault("FEEDCTL_ADDR", "http://localhost:3000"), "Feed service base URL")
	flag.StringVar(&userID, "user", "", "User id to read or rebuild")
	flag.IntVar(&page, "page", 1, "Feed page (1-indexed)")
	flag.IntVar(&limit, "limit", 20, "Feed page size (1-50)")
	flag.BoolVar(&rebuild, "rebuild", false, "Force a rebuild of the user's feed index instead of reading it")

	flag.StringVar(&seedDB, "seed-db", "", "Sqlite database path; seed synthetic data directly instead of calling the API")
	flag.StringVar(&seedAuthor, "seed-author", "", "Author id to create posts for when seeding")
	flag.IntVar(&seedPosts, "seed-posts", 10, "Number of posts to seed for the author")
	flag.StringVar(&seedFollows, "seed-follower", "", "Follower id to link to the seeded author")
	flag.Parse()

	ctx := context.Background()

	if seedDB != "" {
		return seed(ctx, seedDB, seedAuthor, seedFollows, seedPosts)
	}

	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	client := apiclient.NewClient(baseURL)

	if rebuild {
		if err := client.RebuildFeed(ctx, userID); err != nil {
			return err
		}
		fmt.Printf("feed rebuilt for %s\n", userID)
		return nil
	}

	feedPage, err := client.GetFeed(ctx, userID, page, limit)
	if err != nil {
		return err
	}

	fmt.Printf("feed for %s (page %d/%d items, total %d, hasMore=%v)\n",
		userID, feedPage.Page, len(feedPage.Posts), feedPage.Total, feedPage.HasMore)
	for _, p := range feedPage.Posts {
		fmt.Printf("  %s  %s  by %s\n", p.CreatedAt.Format(time.RFC3339), p.ID, p.AuthorID)
	}
	return nil
}

// seed writes synthetic posts and an optional follow edge straight into the
// durable store, for local development against a fresh database.
func seed(ctx context.Context, dbPath, authorID, followerID string, posts int) error {
	if authorID == "" {
		return fmt.Errorf("--seed-author is required with --seed-db")
	}

	store, err := sqlite.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	for i := 0; i < posts; i++ {
		post := &domain.Post{
			ID:        uuid.NewString(),
			AuthorID:  authorID,
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		}
		if err := store.CreatePost(ctx, post); err != nil {
			return err
		}
	}
	fmt.Printf("seeded %d posts for %s\n", posts, authorID)

	if followerID != "" {
		if err := store.AddFollow(ctx, followerID, authorID); err != nil {
			return err
		}
		fmt.Printf("seeded follow %s -> %s\n", followerID, authorID)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
