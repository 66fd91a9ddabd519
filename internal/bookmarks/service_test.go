package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/joestump/smartmark/internal/metadata"
	"github.com/joestump/smartmark/internal/realtime"
	"github.com/joestump/smartmark/internal/store"
	"github.com/joestump/smartmark/internal/testutil"
)

// fakeStore is an in-memory BookmarkStoreIface with injectable failures.
type fakeStore struct {
	rows    []*store.Bookmark
	next    int
	failOn  string
	created []store.NewBookmark
}

func (f *fakeStore) ListByUser(_ context.Context, userID string) ([]*store.Bookmark, error) {
	if f.failOn == "list" {
		return nil, errors.New("connection reset")
	}
	out := []*store.Bookmark{}
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, userID, id string) (*store.Bookmark, error) {
	for _, b := range f.rows {
		if b.ID == id && b.UserID == userID {
			return b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) Create(_ context.Context, in store.NewBookmark) (*store.Bookmark, error) {
	if f.failOn == "insert" {
		return nil, errors.New("disk full")
	}
	f.created = append(f.created, in)
	f.next++
	b := &store.Bookmark{
		ID:          fmt.Sprintf("b%d", f.next),
		UserID:      in.UserID,
		URL:         in.URL,
		Title:       in.Title,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		CreatedAt:   time.Date(2024, 1, 1, 0, f.next, 0, 0, time.UTC),
	}
	f.rows = append(f.rows, b)
	return b, nil
}

func (f *fakeStore) Delete(_ context.Context, userID, id string) error {
	if f.failOn == "delete" {
		return errors.New("timeout")
	}
	for i, b := range f.rows {
		if b.ID == id && b.UserID == userID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type capturePublisher struct {
	events []realtime.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e realtime.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func fixedMeta(m metadata.Metadata) metadata.Enricher {
	return metadata.EnricherFunc(func(context.Context, string) metadata.Metadata { return m })
}

var noMeta = fixedMeta(metadata.Metadata{})

func TestResolveTitle(t *testing.T) {
	tests := []struct {
		given, fetched, want string
	}{
		{"My Title", "Page Title", "My Title"},
		{"  padded  ", "Page Title", "padded"},
		{"", "Page Title", "Page Title"},
		{"   ", "Page Title", "Page Title"},
		{"", "", UntitledTitle},
		{"", "  ", UntitledTitle},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q/%q", tt.given, tt.fetched), func(t *testing.T) {
			assert.Equal(t, ResolveTitle(tt.given, tt.fetched), tt.want)
		})
	}
}

func TestInsert_EnrichesAndPublishes(t *testing.T) {
	fs := &fakeStore{}
	pub := &capturePublisher{}
	svc := NewService(fs, fixedMeta(metadata.Metadata{
		Title:       "The Go Programming Language",
		Description: "Go is an open source programming language.",
		Image:       "https://go.dev/images/go-logo-white.svg",
	}), pub, nil)

	b, err := svc.Insert(context.Background(), "https://go.dev", "", "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, b.Title, "The Go Programming Language")
	assert.Equal(t, b.Description, "Go is an open source programming language.")
	assert.Equal(t, b.ImageURL, "https://go.dev/images/go-logo-white.svg")
	assert.Equal(t, b.UserID, "u1")

	assert.Equal(t, len(pub.events), 1)
	assert.Equal(t, pub.events[0].Kind, realtime.Inserted)
	assert.Equal(t, pub.events[0].ID, b.ID)
	assert.Equal(t, pub.events[0].UserID, "u1")
}

func TestInsert_UntitledWhenFetchFails(t *testing.T) {
	fs := &fakeStore{}
	svc := NewService(fs, noMeta, nil, nil)

	b, err := svc.Insert(context.Background(), "https://unreachable.invalid", "", "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, b.Title, "Untitled")
	assert.Equal(t, b.Description, "")
	assert.Equal(t, b.ImageURL, "")
}

func TestInsert_KeepsGivenTitle(t *testing.T) {
	fs := &fakeStore{}
	svc := NewService(fs, fixedMeta(metadata.Metadata{Title: "Fetched"}), nil, nil)

	b, err := svc.Insert(context.Background(), "https://example.com", "Mine", "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, b.Title, "Mine")
	assert.Equal(t, fs.created[0].Title, "Mine")
}

func TestInsert_Errors(t *testing.T) {
	fs := &fakeStore{failOn: "insert"}
	pub := &capturePublisher{}
	svc := NewService(fs, noMeta, pub, nil)

	_, err := svc.Insert(context.Background(), "", "t", "u1")
	assert.Equal(t, errors.Is(err, ErrURLRequired), true)

	_, err = svc.Insert(context.Background(), "https://example.com", "t", "u1")
	var se *StoreError
	assert.Equal(t, errors.As(err, &se), true)
	assert.Equal(t, se.Op, "insert")
	assert.Equal(t, len(pub.events), 0)
}

func TestInsert_PublishFailureIsAbsorbed(t *testing.T) {
	fs := &fakeStore{}
	pub := &capturePublisher{err: errors.New("redis down")}
	svc := NewService(fs, noMeta, pub, nil)

	b, err := svc.Insert(context.Background(), "https://example.com", "t", "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(fs.rows), 1)
	assert.Equal(t, b.ID, fs.rows[0].ID)
}

func TestDelete(t *testing.T) {
	fs := &fakeStore{}
	pub := &capturePublisher{}
	svc := NewService(fs, noMeta, pub, nil)
	ctx := context.Background()

	b, err := svc.Insert(ctx, "https://example.com", "t", "u1")
	assert.Equal(t, err, nil)

	// Someone else's delete is indistinguishable from a missing row.
	err = svc.Delete(ctx, "u2", b.ID)
	assert.Equal(t, errors.Is(err, store.ErrNotFound), true)

	assert.Equal(t, svc.Delete(ctx, "u1", b.ID), nil)
	assert.Equal(t, pub.events[len(pub.events)-1], realtime.DeletedEvent("u1", b.ID))

	err = svc.Delete(ctx, "u1", b.ID)
	var se *StoreError
	assert.Equal(t, errors.As(err, &se), true)
	assert.Equal(t, se.Op, "delete")
	assert.Equal(t, errors.Is(err, store.ErrNotFound), true)
}

func TestListAll(t *testing.T) {
	fs := &fakeStore{}
	svc := NewService(fs, noMeta, nil, nil)
	ctx := context.Background()

	_, _ = svc.Insert(ctx, "https://a.example", "A", "u1")
	_, _ = svc.Insert(ctx, "https://b.example", "B", "u1")
	_, _ = svc.Insert(ctx, "https://c.example", "C", "u2")

	items, err := svc.ListAll(ctx, "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(items), 2)
	assert.Equal(t, items[0].Title, "B")
	assert.Equal(t, items[1].Title, "A")

	fs.failOn = "list"
	_, err = svc.ListAll(ctx, "u1")
	var se *StoreError
	assert.Equal(t, errors.As(err, &se), true)
	assert.Equal(t, se.Op, "list")
}

// The service and the sqlite store together, with the memory broker as the
// change feed.
func TestService_WithSQLStore(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	user, err := store.NewUserStore(db).Upsert(ctx, "test", "alice", "alice@example.com", "Alice")
	assert.Equal(t, err, nil)

	broker := realtime.NewMemoryBroker(nil)
	defer broker.Close()
	got := make(chan realtime.Event, 4)
	_, err = broker.Subscribe(ctx, "t", realtime.Filter{UserID: user.ID},
		realtime.HandlerFunc(func(e realtime.Event) { got <- e }))
	assert.Equal(t, err, nil)

	svc := NewService(store.NewBookmarkStore(db), noMeta, broker, nil)

	b, err := svc.Insert(ctx, "https://go.dev", "", user.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, b.Title, "Untitled")

	items, err := svc.ListAll(ctx, user.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(items), 1)
	assert.Equal(t, items[0].ID, b.ID)

	assert.Equal(t, svc.Delete(ctx, user.ID, b.ID), nil)

	for _, want := range []realtime.Kind{realtime.Inserted, realtime.Deleted} {
		select {
		case e := <-got:
			assert.Equal(t, e.Kind, want)
			assert.Equal(t, e.ID, b.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s event", want)
		}
	}
}
