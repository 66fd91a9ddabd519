package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joestump/smartmark/internal/auth"
	"github.com/joestump/smartmark/internal/bookmarks"
	"github.com/joestump/smartmark/internal/store"
)

type bookmarksHandler struct {
	lib Library
}

// List returns the caller's bookmarks, newest first.
// GET /api/bookmarks
func (h *bookmarksHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	items, err := h.lib.ListAll(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
		return
	}

	resp := BookmarkListResponse{Bookmarks: make([]BookmarkResponse, 0, len(items))}
	for _, b := range items {
		resp.Bookmarks = append(resp.Bookmarks, toBookmarkResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create saves a bookmark, enriching it from the page.
// POST /api/bookmarks
func (h *bookmarksHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	var req CreateBookmarkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}

	b, err := h.lib.Insert(r.Context(), req.URL, req.Title, user.ID)
	if err != nil {
		if errors.Is(err, bookmarks.ErrURLRequired) {
			writeError(w, http.StatusBadRequest, "url is required", "BAD_REQUEST")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusCreated, toBookmarkResponse(b))
}

// Delete removes one of the caller's bookmarks.
// DELETE /api/bookmarks/{id}
func (h *bookmarksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	if err := h.lib.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found", "NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
