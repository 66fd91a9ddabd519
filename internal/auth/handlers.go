package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/store"
)

const (
	cookieState        = "__auth_state"
	cookieCodeVerifier = "__auth_pkce"
	cookieRedirect     = "__auth_redirect"

	defaultRedirect = "/dashboard"
)

// Identity is the part of Provider the handlers use.
type Identity interface {
	AuthCodeURL(state, codeChallenge string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*Claims, error)
}

// UserUpserter records a signed-in user.
type UserUpserter interface {
	Upsert(ctx context.Context, provider, subject, email, displayName string) (*store.User, error)
}

// Handlers serve /auth/login, /auth/callback and /auth/logout.
type Handlers struct {
	provider Identity
	sessions *scs.SessionManager
	users    UserUpserter
	secure   bool
	log      logger.Logger

	onSignOut []func(token string)
}

func NewHandlers(p Identity, sm *scs.SessionManager, users UserUpserter, secure bool, log logger.Logger) *Handlers {
	if log == nil {
		log = logger.Nop()
	}
	return &Handlers{provider: p, sessions: sm, users: users, secure: secure, log: log}
}

// Login starts the authorization code flow. State, PKCE verifier and the
// post-login destination ride in short-lived cookies.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := GenerateState()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.setPreAuthCookie(w, cookieState, state)
	h.setPreAuthCookie(w, cookieCodeVerifier, verifier)
	h.setPreAuthCookie(w, cookieRedirect, safeRedirect(r.URL.Query().Get("redirect")))

	http.Redirect(w, r, h.provider.AuthCodeURL(state, challenge), http.StatusFound)
}

// Callback completes the flow and starts a session.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(cookieState)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	verifierCookie, err := r.Cookie(cookieCodeVerifier)
	if err != nil {
		http.Error(w, "missing code verifier", http.StatusBadRequest)
		return
	}

	claims, err := h.provider.Exchange(r.Context(), r.URL.Query().Get("code"), verifierCookie.Value)
	if err != nil {
		h.log.Warn("auth: exchange failed", logger.Error(err))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	user, err := h.users.Upsert(r.Context(), claims.Issuer, claims.Subject, claims.Email, claims.Name)
	if err != nil {
		h.log.Error("auth: user upsert failed", logger.String("subject", claims.Subject), logger.Error(err))
		http.Error(w, "user record error", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.RenewToken(r.Context()); err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	h.sessions.Put(r.Context(), SessionUserIDKey, user.ID)
	h.log.Info("auth: signed in", logger.String("user_id", user.ID))

	clearCookie(w, cookieState)
	clearCookie(w, cookieCodeVerifier)

	redirect := defaultRedirect
	if c, err := r.Cookie(cookieRedirect); err == nil {
		redirect = safeRedirect(c.Value)
	}
	clearCookie(w, cookieRedirect)

	http.Redirect(w, r, redirect, http.StatusFound)
}

// OnSignOut registers fn to run with the session token after Logout has
// destroyed that session. Register before serving.
func (h *Handlers) OnSignOut(fn func(token string)) {
	h.onSignOut = append(h.onSignOut, fn)
}

// Logout ends the session and returns to the landing page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.sessions.Token(r.Context())
	if err := h.sessions.Destroy(r.Context()); err != nil {
		http.Error(w, "logout error", http.StatusInternalServerError)
		return
	}
	if token != "" {
		for _, fn := range h.onSignOut {
			fn(token)
		}
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return defaultRedirect
	}
	return target
}

func (h *Handlers) setPreAuthCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}
