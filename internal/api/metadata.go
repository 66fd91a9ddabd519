package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/joestump/smartmark/internal/metadata"
)

type metadataHandler struct {
	enricher metadata.Enricher
}

// Fetch returns best-effort metadata for a URL. Anything past a missing url
// answers 200, with empty fields when the page could not be read.
// POST /api/metadata
func (h *metadataHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req MetadataRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "URL is required", "BAD_REQUEST")
		return
	}

	var meta metadata.Metadata
	if h.enricher != nil {
		meta = h.enricher.Fetch(r.Context(), req.URL)
	}
	writeJSON(w, http.StatusOK, meta)
}
