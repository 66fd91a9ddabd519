package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserLookup resolves the user id stored in a session.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*store.User, error)
}

// Middleware gates routes on a valid session.
type Middleware struct {
	sessions *scs.SessionManager
	users    UserLookup
	log      logger.Logger
}

func NewMiddleware(sm *scs.SessionManager, users UserLookup, log logger.Logger) *Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return &Middleware{sessions: sm, users: users, log: log}
}

// RequireAuth sends anonymous page requests back to the landing page.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return m.require(next, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
}

// RequireAPIAuth answers anonymous requests with 401 and a JSON error body.
// It also guards the websocket endpoint, refusing the upgrade.
func (m *Middleware) RequireAPIAuth(next http.Handler) http.Handler {
	return m.require(next, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "authentication required",
			"code":  "UNAUTHORIZED",
		})
	})
}

func (m *Middleware) require(next http.Handler, deny http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := m.CurrentUser(r)
		if user == nil {
			deny(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentUser returns the session's user, or nil when there is none. A
// session pointing at a deleted user is destroyed.
func (m *Middleware) CurrentUser(r *http.Request) *store.User {
	userID := m.sessions.GetString(r.Context(), SessionUserIDKey)
	if userID == "" {
		return nil
	}
	user, err := m.users.GetByID(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Error("auth: user lookup failed", logger.String("user_id", userID), logger.Error(err))
		}
		_ = m.sessions.Destroy(r.Context())
		return nil
	}
	return user
}

// UserFromContext returns the user set by RequireAuth or RequireAPIAuth.
func UserFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(UserContextKey).(*store.User)
	return u
}

// UserIDFromRequest returns the authenticated user id, or "".
func UserIDFromRequest(r *http.Request) string {
	if u := UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return ""
}
