// Package live runs the server side of the dashboard: one View per browser
// connection, reconciling the initial load, the user's own actions and the
// change feed into a single bookmark collection.
package live

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/joestump/smartmark/internal/collection"
	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/metrics"
	"github.com/joestump/smartmark/internal/realtime"
	"github.com/joestump/smartmark/internal/store"
)

// Notice texts shown to the user.
const (
	MsgLoadFailed    = "Failed to load library"
	MsgMissingFields = "Please enter both a title and a link"
	MsgSaved         = "Bookmark saved"
	MsgSaveFailed    = "Save failed"
	MsgRemoved       = "Removed"
	MsgDeleteFailed  = "Delete failed"
)

// ErrViewClosed is returned by Open after Close.
var ErrViewClosed = errors.New("view closed")

// Library is the bookmark store client a View talks to.
type Library interface {
	ListAll(ctx context.Context, userID string) ([]*store.Bookmark, error)
	Insert(ctx context.Context, url, title, userID string) (*store.Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
}

// Notice is a transient message for the user. Level is "success" or "error".
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Form carries the add-bookmark form values the browser should display.
type Form struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Update is a full snapshot of the view, emitted after every change.
// Form is nil when the form should be left as is.
type Update struct {
	Bookmarks []store.Bookmark
	Connected bool
	Notice    *Notice
	Form      *Form
}

// View owns one collection and one change-feed listener. All state changes
// run on a single loop goroutine; store calls run beside it and post their
// results back.
type View struct {
	userID string
	lib    Library
	broker realtime.Broker
	log    logger.Logger

	// Owned by the loop goroutine. Ids are never reused, so an id in
	// deleted is kept out of coll for good.
	coll      *collection.Collection
	deleted   map[string]struct{}
	connected bool

	listener *realtime.Listener
	inbox    chan func()
	updates  chan Update
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewView starts the loop for userID. The caller must Close it.
func NewView(userID string, lib Library, broker realtime.Broker, log logger.Logger) *View {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		userID:   userID,
		lib:      lib,
		broker:   broker,
		log:      log.With(logger.String("user_id", userID)),
		coll:     collection.New(),
		deleted:  make(map[string]struct{}),
		inbox:    make(chan func(), 64),
		updates:  make(chan Update, 16),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	metrics.LiveViews.Inc()
	go v.loop()
	return v
}

// Updates delivers snapshots. It is closed when the view closes.
func (v *View) Updates() <-chan Update { return v.updates }

// Open loads the user's bookmarks and then attaches to the change feed.
// When the load fails the view shows MsgLoadFailed, stays empty and does not
// subscribe. A subscribe failure leaves the view usable but disconnected.
func (v *View) Open(ctx context.Context) error {
	if v.ctx.Err() != nil {
		return ErrViewClosed
	}

	items, err := v.lib.ListAll(ctx, v.userID)
	if err != nil {
		v.log.Warn("live: initial load failed", logger.Error(err))
		v.post(func() { v.emit(errorNotice(MsgLoadFailed), nil) })
		return err
	}

	loaded := make([]store.Bookmark, 0, len(items))
	for _, b := range items {
		loaded = append(loaded, *b)
	}
	v.post(func() {
		v.coll.Load(loaded)
		v.emit(nil, nil)
	})

	if v.broker == nil {
		return nil
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.listener = realtime.NewListener(v.broker, v.userID, realtime.HandlerFunc(v.remote),
		realtime.WithStatus(v.status),
		realtime.WithListenerLogger(v.log))
	l := v.listener
	v.mu.Unlock()

	if err := l.Start(ctx); err != nil {
		v.log.Warn("live: change feed unavailable", logger.Error(err))
	}
	return nil
}

// Add saves a bookmark. Both fields are required.
func (v *View) Add(url, title string) {
	url, title = strings.TrimSpace(url), strings.TrimSpace(title)
	if url == "" || title == "" {
		form := &Form{URL: url, Title: title}
		v.post(func() { v.emit(errorNotice(MsgMissingFields), form) })
		return
	}

	v.async(func(ctx context.Context) {
		b, err := v.lib.Insert(ctx, url, title, v.userID)
		v.post(func() {
			if err != nil {
				v.log.Warn("live: save failed", logger.String("url", url), logger.Error(err))
				v.emit(errorNotice(MsgSaveFailed), &Form{URL: url, Title: title})
				return
			}
			v.insert(*b)
			v.emit(successNotice(MsgSaved), &Form{})
		})
	})
}

// Delete removes bookmark id.
func (v *View) Delete(id string) {
	v.async(func(ctx context.Context) {
		err := v.lib.Delete(ctx, v.userID, id)
		v.post(func() {
			if err != nil {
				v.log.Warn("live: delete failed", logger.String("id", id), logger.Error(err))
				v.emit(errorNotice(MsgDeleteFailed), nil)
				return
			}
			v.remove(id)
			v.emit(successNotice(MsgRemoved), nil)
		})
	})
}

// Close detaches from the feed, cancels in-flight calls and stops the loop.
// It is safe to call more than once.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	l := v.listener
	v.mu.Unlock()

	v.cancel()
	if l != nil {
		if err := l.Stop(); err != nil {
			v.log.Warn("live: unsubscribe failed", logger.Error(err))
		}
	}
	v.pending.Wait()
	<-v.loopDone
	metrics.LiveViews.Dec()
}

func (v *View) remote(e realtime.Event) {
	v.post(func() {
		switch e.Kind {
		case realtime.Inserted:
			if e.Bookmark == nil {
				return
			}
			if !v.insert(*e.Bookmark) {
				v.log.Debug("live: insert for deleted bookmark ignored", logger.String("id", e.ID))
				return
			}
		case realtime.Deleted:
			if !v.remove(e.ID) {
				v.log.Debug("live: delete for absent bookmark ignored", logger.String("id", e.ID))
				return
			}
		default:
			return
		}
		v.emit(nil, nil)
	})
}

// insert must run on the loop. It reports false for an id already deleted.
func (v *View) insert(b store.Bookmark) bool {
	if _, gone := v.deleted[b.ID]; gone {
		return false
	}
	v.coll.Prepend(b)
	return true
}

// remove must run on the loop. The id is remembered even when absent, since
// its insert may still be on the way.
func (v *View) remove(id string) bool {
	v.deleted[id] = struct{}{}
	return v.coll.Remove(id)
}

func (v *View) status(s realtime.State) {
	v.post(func() {
		connected := s == realtime.Subscribed
		if connected == v.connected {
			return
		}
		v.connected = connected
		v.emit(nil, nil)
	})
}

// async runs fn beside the loop unless the view is closing.
func (v *View) async(fn func(ctx context.Context)) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.pending.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.pending.Done()
		fn(v.ctx)
	}()
}

// post queues fn for the loop. It is dropped once the view is closing.
func (v *View) post(fn func()) {
	select {
	case v.inbox <- fn:
	case <-v.ctx.Done():
	}
}

func (v *View) loop() {
	defer close(v.loopDone)
	defer close(v.updates)
	for {
		select {
		case fn := <-v.inbox:
			fn()
		case <-v.ctx.Done():
			return
		}
	}
}

// emit must run on the loop.
func (v *View) emit(n *Notice, f *Form) {
	u := Update{
		Bookmarks: v.coll.Items(),
		Connected: v.connected,
		Notice:    n,
		Form:      f,
	}
	select {
	case v.updates <- u:
	case <-v.ctx.Done():
	}
}

func successNotice(msg string) *Notice { return &Notice{Level: "success", Message: msg} }
func errorNotice(msg string) *Notice   { return &Notice{Level: "error", Message: msg} }
