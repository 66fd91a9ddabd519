package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joestump/smartmark/internal/api"
	"github.com/joestump/smartmark/internal/auth"
	"github.com/joestump/smartmark/internal/bookmarks"
	"github.com/joestump/smartmark/internal/metadata"
	"github.com/joestump/smartmark/internal/realtime"
	"github.com/joestump/smartmark/internal/store"
	"github.com/joestump/smartmark/internal/testutil"
)

// testEnv wires the API router to a real store, service and memory broker.
type testEnv struct {
	Router    http.Handler
	Service   *bookmarks.Service
	UserStore *store.UserStore
	Page      *httptest.Server
}

const userHeader = "X-Test-User"

// headerAuth stands in for the session middleware: the user id comes from
// a request header.
func headerAuth(users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := users.GetByID(r.Context(), r.Header.Get(userHeader))
			if err != nil {
				http.Error(w, `{"error":"authentication required","code":"UNAUTHORIZED"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auth.UserContextKey, u)))
		})
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
			<title>Fallback</title>
			<meta property="og:title" content="The Go Programming Language">
			<meta name="description" content="Go is an open source programming language.">
			<meta property="og:image" content="/images/go.png">
		</head><body></body></html>`))
	}))
	t.Cleanup(page.Close)

	broker := realtime.NewMemoryBroker(nil)
	t.Cleanup(func() { _ = broker.Close() })

	users := store.NewUserStore(db)
	fetcher := metadata.NewFetcher()
	svc := bookmarks.NewService(store.NewBookmarkStore(db), fetcher, broker, nil)

	router := api.NewAPIRouter(api.Deps{
		Enricher:    fetcher,
		Bookmarks:   svc,
		RequireAuth: headerAuth(users),
	})
	return &testEnv{Router: router, Service: svc, UserStore: users, Page: page}
}

func seedUser(t *testing.T, env *testEnv, subject string) *store.User {
	t.Helper()
	u, err := env.UserStore.Upsert(context.Background(), "test", subject, subject+"@example.com", subject)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func doRequest(t *testing.T, h http.Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userHeader, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.Router, http.MethodPost, "/metadata", `{"url":"`+env.Page.URL+`/post"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[metadata.Metadata](t, rec)
	want := metadata.Metadata{
		Title:       "The Go Programming Language",
		Description: "Go is an open source programming language.",
		Image:       env.Page.URL + "/images/go.png",
	}
	if got != want {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}
}

func TestMetadata_FailuresStill200(t *testing.T) {
	env := newTestEnv(t)

	for _, url := range []string{"http://127.0.0.1:1/", "not a url"} {
		rec := doRequest(t, env.Router, http.MethodPost, "/metadata", `{"url":"`+url+`"}`, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", url, rec.Code)
		}
		if got := decode[metadata.Metadata](t, rec); !got.IsZero() {
			t.Errorf("%s: metadata = %+v, want empty", url, got)
		}
	}
}

func TestMetadata_MissingURL(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{}`, `{"url":""}`, `not json`} {
		rec := doRequest(t, env.Router, http.MethodPost, "/metadata", body, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error":"URL is required"`) {
			t.Errorf("%s: body = %s", body, rec.Body.String())
		}
	}
}

func TestBookmarks_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := seedUser(t, env, "alice")

	rec := doRequest(t, env.Router, http.MethodPost, "/bookmarks", `{"url":"`+env.Page.URL+`/post","title":""}`, alice.ID)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	created := decode[api.BookmarkResponse](t, rec)
	if created.Title != "The Go Programming Language" {
		t.Errorf("title = %q, want the page title", created.Title)
	}
	if created.ImageURL != env.Page.URL+"/images/go.png" {
		t.Errorf("image = %q", created.ImageURL)
	}

	rec = doRequest(t, env.Router, http.MethodGet, "/bookmarks", "", alice.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	list := decode[api.BookmarkListResponse](t, rec)
	if len(list.Bookmarks) != 1 || list.Bookmarks[0].ID != created.ID {
		t.Fatalf("list = %+v, want the created bookmark", list.Bookmarks)
	}

	rec = doRequest(t, env.Router, http.MethodDelete, "/bookmarks/"+created.ID, "", alice.ID)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, env.Router, http.MethodDelete, "/bookmarks/"+created.ID, "", alice.ID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["code"] != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", body["code"])
	}
}

func TestBookmarks_Errors(t *testing.T) {
	env := newTestEnv(t)
	alice := seedUser(t, env, "alice")
	bob := seedUser(t, env, "bob")

	b, err := env.Service.Insert(context.Background(), env.Page.URL+"/mine", "Mine", alice.ID)
	if err != nil {
		t.Fatalf("seed bookmark: %v", err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		user       string
		wantStatus int
	}{
		{"anonymous list", http.MethodGet, "/bookmarks", "", "", http.StatusUnauthorized},
		{"missing url", http.MethodPost, "/bookmarks", `{"title":"x"}`, alice.ID, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/bookmarks", `{`, alice.ID, http.StatusBadRequest},
		{"other user's bookmark", http.MethodDelete, "/bookmarks/" + b.ID, "", bob.ID, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, env.Router, tt.method, tt.path, tt.body, tt.user)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	// Bob's delete attempt left Alice's bookmark alone.
	items, err := env.Service.ListAll(context.Background(), alice.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("alice's bookmarks = %d (err %v), want 1", len(items), err)
	}
}
