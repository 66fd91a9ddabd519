// Package realtime delivers bookmark change notifications (inserts and
// deletes) to subscribers scoped to a single user.
package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/joestump/smartmark/internal/store"
)

var (
	// ErrTagInUse is returned when a live subscription already holds the tag.
	ErrTagInUse = errors.New("subscription tag already in use")

	// ErrFilterRequired is returned when a subscription or event has no user
	// scope. Unscoped delivery would leak other users' bookmarks.
	ErrFilterRequired = errors.New("user_id filter is required")

	// ErrClosed is returned by a broker after Close.
	ErrClosed = errors.New("broker closed")
)

// Kind is the type of row-level change.
type Kind string

const (
	Inserted Kind = "INSERT"
	Deleted  Kind = "DELETE"
)

// Event is one change on the bookmarks table. ID is always set; Bookmark is
// set for Inserted events only.
type Event struct {
	Kind     Kind            `json:"kind"`
	UserID   string          `json:"user_id"`
	ID       string          `json:"id"`
	Bookmark *store.Bookmark `json:"bookmark,omitempty"`
}

// InsertedEvent builds the event announcing b.
func InsertedEvent(b *store.Bookmark) Event {
	return Event{Kind: Inserted, UserID: b.UserID, ID: b.ID, Bookmark: b}
}

// DeletedEvent builds the event announcing the removal of id.
func DeletedEvent(userID, id string) Event {
	return Event{Kind: Deleted, UserID: userID, ID: id}
}

// Filter selects the events a subscription receives. Kinds empty means all.
type Filter struct {
	UserID string
	Kinds  []Kind
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.UserID == "" || e.UserID != f.UserID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}

// Handler receives events. A broker calls HandleEvent from a single goroutine
// per subscription, so one subscription never sees two events concurrently.
type Handler interface {
	HandleEvent(Event)
}

// StatusHandler is optionally implemented by a Handler that wants to learn
// when the underlying channel drops.
type StatusHandler interface {
	HandleStatus(connected bool)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) { f(e) }

// Broker is the pub/sub capability behind the change feed.
type Broker interface {
	Subscribe(ctx context.Context, tag string, filter Filter, h Handler) (*Subscription, error)
	Unsubscribe(sub *Subscription) error
	Publish(ctx context.Context, e Event) error
}

// Subscription is a live attachment to a Broker.
type Subscription struct {
	Tag    string
	Filter Filter

	once sync.Once
	stop func() error
	err  error
	done chan struct{}
}

func newSubscription(tag string, filter Filter, stop func() error) *Subscription {
	return &Subscription{Tag: tag, Filter: filter, stop: stop, done: make(chan struct{})}
}

// Done is closed once the subscription has been torn down.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() error {
	s.once.Do(func() {
		s.err = s.stop()
		close(s.done)
	})
	return s.err
}

// NewTag returns a subscription tag unique to this attachment, so a new
// session never collides with a stale subscription from an earlier one.
func NewTag(userID string) string {
	return "live-sync-" + userID + "-" + strings.ToLower(ulid.Make().String())
}
