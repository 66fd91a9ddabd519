// Package api serves the JSON endpoints under /api.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joestump/smartmark/internal/metadata"
	"github.com/joestump/smartmark/internal/store"
)

// Library is the bookmark store client behind /api/bookmarks.
type Library interface {
	ListAll(ctx context.Context, userID string) ([]*store.Bookmark, error)
	Insert(ctx context.Context, url, title, userID string) (*store.Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
}

// Deps holds everything the API router needs.
type Deps struct {
	Enricher  metadata.Enricher
	Bookmarks Library
	// RequireAuth guards the bookmark routes.
	RequireAuth func(http.Handler) http.Handler
}

// NewAPIRouter returns the /api sub-router. The metadata endpoint is public;
// bookmark routes need a session.
func NewAPIRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(jsonContentType)

	m := &metadataHandler{enricher: deps.Enricher}
	r.Post("/metadata", m.Fetch)

	b := &bookmarksHandler{lib: deps.Bookmarks}
	r.Group(func(r chi.Router) {
		if deps.RequireAuth != nil {
			r.Use(deps.RequireAuth)
		}
		r.Get("/bookmarks", b.List)
		r.Post("/bookmarks", b.Create)
		r.Delete("/bookmarks/{id}", b.Delete)
	})

	return r
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
