package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestClient_Fetch(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var body struct {
			URL string `json:"url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotURL = body.URL
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Metadata{Title: "T", Description: "D", Image: "I"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	md := c.Fetch(context.Background(), "https://go.dev")

	assert.Equal(t, "https://go.dev", gotURL)
	assert.Equal(t, Metadata{Title: "T", Description: "D", Image: "I"}, md)
}

func TestClient_FailuresYieldEmptyMetadata(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "bad request", handler: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"URL is required"}`, http.StatusBadRequest)
		}},
		{name: "garbage body", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			md := NewClient(srv.URL, nil).Fetch(context.Background(), "https://go.dev")
			assert.Equal(t, Metadata{}, md)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		md := NewClient("http://127.0.0.1:1/api/metadata", nil).Fetch(context.Background(), "https://go.dev")
		assert.Equal(t, Metadata{}, md)
	})
}
