package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/joestump/smartmark/internal/logger"
)

// ErrListenerStopped is returned by Start on a stopped or already started
// listener.
var ErrListenerStopped = errors.New("listener already started or stopped")

// State is the connection state of a Listener.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Listener holds one user's attachment to the change feed. It moves
// Disconnected -> Connecting -> Subscribed and back to Disconnected on Stop
// or channel failure. A Listener is single-use.
type Listener struct {
	broker   Broker
	userID   string
	handler  Handler
	onStatus func(State)
	log      logger.Logger

	mu      sync.Mutex
	state   State
	tag     string
	sub     *Subscription
	started bool
	stopped bool
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithStatus registers fn to observe state transitions. fn runs without the
// listener lock held.
func WithStatus(fn func(State)) ListenerOption {
	return func(l *Listener) { l.onStatus = fn }
}

// WithListenerLogger sets the logger.
func WithListenerLogger(log logger.Logger) ListenerOption {
	return func(l *Listener) { l.log = log }
}

// NewListener returns a disconnected listener for userID's bookmarks.
func NewListener(b Broker, userID string, h Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		broker:  b,
		userID:  userID,
		handler: h,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start subscribes to inserts and deletes on the user's bookmarks under a
// fresh tag.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return ErrListenerStopped
	}
	l.started = true
	l.tag = NewTag(l.userID)
	tag := l.tag
	l.state = Connecting
	l.mu.Unlock()
	l.notify(Connecting)

	filter := Filter{UserID: l.userID, Kinds: []Kind{Inserted, Deleted}}
	sub, err := l.broker.Subscribe(ctx, tag, filter, listenerHandler{l})
	if err != nil {
		l.setState(Disconnected)
		l.log.Warn("realtime: subscribe failed", logger.String("tag", tag), logger.Error(err))
		return err
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return l.broker.Unsubscribe(sub)
	}
	l.sub = sub
	l.state = Subscribed
	l.mu.Unlock()
	l.notify(Subscribed)
	return nil
}

// Stop detaches from the feed. It is safe to call more than once and before
// Start.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	sub := l.sub
	l.sub = nil
	changed := l.state != Disconnected
	l.state = Disconnected
	l.mu.Unlock()

	var err error
	if sub != nil {
		err = l.broker.Unsubscribe(sub)
	}
	if changed {
		l.notify(Disconnected)
	}
	return err
}

// State returns the current connection state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected reports whether the listener is Subscribed.
func (l *Listener) Connected() bool { return l.State() == Subscribed }

// Tag returns the subscription tag, empty before Start.
func (l *Listener) Tag() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tag
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	if l.state == s {
		l.mu.Unlock()
		return
	}
	l.state = s
	l.mu.Unlock()
	l.notify(s)
}

func (l *Listener) notify(s State) {
	if l.onStatus != nil {
		l.onStatus(s)
	}
}

type listenerHandler struct{ l *Listener }

func (h listenerHandler) HandleEvent(e Event) {
	h.l.mu.Lock()
	live := !h.l.stopped
	h.l.mu.Unlock()
	if live {
		h.l.handler.HandleEvent(e)
	}
}

func (h listenerHandler) HandleStatus(connected bool) {
	h.l.mu.Lock()
	if h.l.stopped || !h.l.started {
		h.l.mu.Unlock()
		return
	}
	h.l.mu.Unlock()
	if connected {
		h.l.setState(Subscribed)
	} else {
		h.l.setState(Disconnected)
	}
}
