package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

func newLiveServer(t *testing.T, env *testEnv, userID string) *httptest.Server {
	t.Helper()
	h := NewHandler(env.lib, env.broker, func(*http.Request) string { return userID }, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads state messages until pred holds.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(stateMessage) bool) stateMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg stateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		assert.Equal(t, msg.Type, "state")
		if pred(msg) {
			return msg
		}
	}
}

func TestHandler_RejectsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	srv := newLiveServer(t, env, "")

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, resp.StatusCode, http.StatusUnauthorized)
}

func TestHandler_AddAndDelete(t *testing.T) {
	env := newTestEnv(t)
	srv := newLiveServer(t, env, env.alice)
	conn := dial(t, srv)

	readUntil(t, conn, func(m stateMessage) bool { return m.Connected })

	err := conn.WriteJSON(clientMessage{Type: "add", URL: "https://go.dev", Title: "Go"})
	assert.Equal(t, err, nil)
	saved := readUntil(t, conn, func(m stateMessage) bool {
		return m.Notice != nil && m.Notice.Message == MsgSaved
	})
	assert.Equal(t, len(saved.Bookmarks), 1)
	assert.Equal(t, saved.Bookmarks[0].URL, "https://go.dev")

	err = conn.WriteJSON(clientMessage{Type: "delete", ID: saved.Bookmarks[0].ID})
	assert.Equal(t, err, nil)
	removed := readUntil(t, conn, func(m stateMessage) bool {
		return m.Notice != nil && m.Notice.Message == MsgRemoved
	})
	assert.Equal(t, len(removed.Bookmarks), 0)
}

func TestHandler_TwoTabsStayInSync(t *testing.T) {
	env := newTestEnv(t)
	srv := newLiveServer(t, env, env.alice)
	tab1 := dial(t, srv)
	tab2 := dial(t, srv)
	readUntil(t, tab1, func(m stateMessage) bool { return m.Connected })
	readUntil(t, tab2, func(m stateMessage) bool { return m.Connected })

	err := tab1.WriteJSON(clientMessage{Type: "add", URL: "https://go.dev", Title: "Go"})
	assert.Equal(t, err, nil)

	got := readUntil(t, tab2, func(m stateMessage) bool { return len(m.Bookmarks) == 1 })
	assert.Equal(t, got.Bookmarks[0].Title, "Go")
	assert.Equal(t, got.Notice == nil, true)
}

func TestHandler_CloseSession(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.lib, env.broker, func(*http.Request) string { return env.alice }, nil,
		WithSessionKey(func(r *http.Request) string { return r.Header.Get("X-Session") }))
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	open := func(session string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Session": {session}})
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { _ = conn.Close() })
		readUntil(t, conn, func(m stateMessage) bool { return m.Connected })
		return conn
	}
	signedOut := open("s1")
	other := open("s2")

	h.CloseSession("s1")

	_ = signedOut.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := signedOut.ReadMessage()
		if err != nil {
			assert.Equal(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), true)
			break
		}
	}

	// The other session still follows changes.
	_, err := env.svc.Insert(context.Background(), "https://go.dev", "Go", env.alice)
	assert.Equal(t, err, nil)
	got := readUntil(t, other, func(m stateMessage) bool { return len(m.Bookmarks) == 1 })
	assert.Equal(t, got.Bookmarks[0].Title, "Go")

	h.CloseSession("unknown")
}
