// Package metadata derives preview metadata (title, description, image) for a
// URL. Every entry point degrades to empty fields instead of returning an
// error, so enrichment can never block saving a bookmark.
package metadata

import "context"

// Metadata is the best-effort preview of a page. Fields are "" when unknown.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// IsZero reports whether nothing could be derived.
func (m Metadata) IsZero() bool {
	return m == Metadata{}
}

// Enricher fetches metadata for a URL. Implementations never fail; a failed
// lookup yields the zero Metadata.
type Enricher interface {
	Fetch(ctx context.Context, url string) Metadata
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, url string) Metadata

func (f EnricherFunc) Fetch(ctx context.Context, url string) Metadata { return f(ctx, url) }
