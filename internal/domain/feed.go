package domain

// FeedPage is the result of one paginated feed read.
type FeedPage struct {
	// PostIDs are the page's post ids in descending score order.
	PostIDs []string

	// Total is the number of entries currently in the user's index. When
	// dangling ids were filtered during materialization the figure is
	// approximate, never inflated retroactively.
	Total int64

	// Page is the 1-indexed page that was requested.
	Page int

	// Limit is the requested page size.
	Limit int

	// HasMore reports whether another page exists past this one.
	HasMore bool
}

// Lookup is the result of materializing one feed entry against the durable
// store. Post is nil when the id dangles: the post was deleted before a
// deferred index removal ran.
type Lookup struct {
	ID   string
	Post *Post
}

// Found reports whether the id resolved to a live post.
func (l Lookup) Found() bool {
	return l.Post != nil
}
