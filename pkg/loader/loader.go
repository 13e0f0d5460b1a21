package loader

import (
	"context"
)

// Page is the readable content of a fetched web page.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Byline  string `json:"byline,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Text    string `json:"text"`
}

// PageLoader defines the interface for turning a URL into readable text.
// Implementations may fetch over HTTP, read from a cache or stub the web out
// in tests.
type PageLoader interface {
	LoadPage(ctx context.Context, rawURL string) (Page, error)
}
