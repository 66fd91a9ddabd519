package api

import (
	"time"

	"github.com/joestump/smartmark/internal/store"
)

// MetadataRequest is the body of POST /api/metadata.
type MetadataRequest struct {
	URL string `json:"url"`
}

// CreateBookmarkRequest is the body of POST /api/bookmarks.
type CreateBookmarkRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// BookmarkResponse is the JSON form of one bookmark.
type BookmarkResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// BookmarkListResponse wraps GET /api/bookmarks.
type BookmarkListResponse struct {
	Bookmarks []BookmarkResponse `json:"bookmarks"`
}

func toBookmarkResponse(b *store.Bookmark) BookmarkResponse {
	return BookmarkResponse{
		ID:          b.ID,
		URL:         b.URL,
		Title:       b.Title,
		Description: b.Description,
		ImageURL:    b.ImageURL,
		CreatedAt:   b.CreatedAt,
	}
}
