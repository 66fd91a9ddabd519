package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/realtime"
	"github.com/joestump/smartmark/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// clientMessage is a command from the browser.
type clientMessage struct {
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	ID    string `json:"id,omitempty"`
}

// stateMessage is the snapshot pushed to the browser after every change.
type stateMessage struct {
	Type      string           `json:"type"`
	Bookmarks []store.Bookmark `json:"bookmarks"`
	Connected bool             `json:"connected"`
	Notice    *Notice          `json:"notice,omitempty"`
	Form      *Form            `json:"form,omitempty"`
}

func newStateMessage(u Update) stateMessage {
	items := u.Bookmarks
	if items == nil {
		items = []store.Bookmark{}
	}
	return stateMessage{
		Type:      "state",
		Bookmarks: items,
		Connected: u.Connected,
		Notice:    u.Notice,
		Form:      u.Form,
	}
}

// UserFunc returns the authenticated user id for r, or "" when anonymous.
type UserFunc func(r *http.Request) string

// Handler upgrades authenticated requests to a websocket and runs a View
// for the lifetime of the connection.
type Handler struct {
	lib        Library
	broker     realtime.Broker
	userID     UserFunc
	sessionKey func(r *http.Request) string
	log        logger.Logger
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]map[*View]struct{}
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSessionKey groups connections by the key fn returns, so that
// CloseSession can end every connection opened under one session.
func WithSessionKey(fn func(r *http.Request) string) HandlerOption {
	return func(h *Handler) { h.sessionKey = fn }
}

// NewHandler returns the /live endpoint.
func NewHandler(lib Library, broker realtime.Broker, userID UserFunc, log logger.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{
		lib:    lib,
		broker: broker,
		userID: userID,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[string]map[*View]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CloseSession closes every view opened under key. Their subscriptions are
// released and the sockets receive a normal close.
func (h *Handler) CloseSession(key string) {
	h.mu.Lock()
	views := h.sessions[key]
	delete(h.sessions, key)
	h.mu.Unlock()

	for v := range views {
		v.Close()
	}
	if len(views) > 0 {
		h.log.Info("live: session signed out", logger.Int("connections", len(views)))
	}
}

func (h *Handler) track(key string, v *View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[key] == nil {
		h.sessions[key] = make(map[*View]struct{})
	}
	h.sessions[key][v] = struct{}{}
}

func (h *Handler) untrack(key string, v *View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[key], v)
	if len(h.sessions[key]) == 0 {
		delete(h.sessions, key)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Debug("live: upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	view := NewView(userID, h.lib, h.broker, h.log)
	defer view.Close()

	if h.sessionKey != nil {
		if key := h.sessionKey(r); key != "" {
			h.track(key, view)
			defer h.untrack(key, view)
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, view)
	}()

	_ = view.Open(r.Context())
	h.readLoop(conn, view)

	view.Close()
	<-writerDone
}

func (h *Handler) readLoop(conn *websocket.Conn, view *View) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("live: read failed", logger.Error(err))
			}
			return
		}

		switch msg.Type {
		case "add":
			view.Add(msg.URL, msg.Title)
		case "delete":
			if msg.ID != "" {
				view.Delete(msg.ID)
			}
		default:
			h.log.Debug("live: unknown message type", logger.String("type", msg.Type))
		}
	}
}

// writeLoop is the only writer on conn.
func (h *Handler) writeLoop(conn *websocket.Conn, view *View) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-view.Updates():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				// Unblocks the read loop when the view was closed from outside.
				_ = conn.Close()
				return
			}
			if err := conn.WriteJSON(newStateMessage(u)); err != nil {
				h.log.Debug("live: write failed", logger.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
