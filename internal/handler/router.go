// Package handler assembles the HTTP surface: pages, auth flow, the live
// websocket, the JSON API and operational endpoints.
package handler

import (
	"context"
	"io/fs"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joestump/smartmark/internal/api"
	"github.com/joestump/smartmark/internal/auth"
	"github.com/joestump/smartmark/internal/live"
	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/metadata"
	"github.com/joestump/smartmark/internal/realtime"
	"github.com/joestump/smartmark/web"
)

// Library is the bookmark store client shared by the API and the live view.
type Library interface {
	api.Library
	live.Library
}

// Deps holds all dependencies required to build the HTTP router.
type Deps struct {
	SessionManager *scs.SessionManager
	AuthHandlers   *auth.Handlers
	AuthMiddleware *auth.Middleware
	Bookmarks      Library
	Enricher       metadata.Enricher
	Broker         realtime.Broker
	Log            logger.Logger
	// Health reports whether the service can reach its database.
	Health func(ctx context.Context) error
}

// NewRouter assembles the chi router with all middleware and routes.
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	liveHandler := live.NewHandler(deps.Bookmarks, deps.Broker, auth.UserIDFromRequest, log,
		live.WithSessionKey(func(r *http.Request) string {
			return deps.SessionManager.Token(r.Context())
		}))
	deps.AuthHandlers.OnSignOut(liveHandler.CloseSession)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog(log))
	r.Use(middleware.Recoverer)

	// Operational endpoints skip the session store.
	r.Get("/healthz", healthz(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	staticSub, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		panic("failed to sub static FS: " + err.Error())
	}
	r.Handle("/static/*", http.StripPrefix("/static", http.FileServerFS(staticSub)))

	r.Group(func(r chi.Router) {
		r.Use(deps.SessionManager.LoadAndSave)

		r.Get("/auth/login", deps.AuthHandlers.Login)
		r.Get("/auth/callback", deps.AuthHandlers.Callback)
		r.Post("/auth/logout", deps.AuthHandlers.Logout)
		r.Post("/theme", NewThemeHandler().Toggle)

		r.Get("/", NewLandingHandler(deps.AuthMiddleware).Index)

		r.With(deps.AuthMiddleware.RequireAuth).Get("/dashboard", NewDashboardHandler().Show)

		r.Mount("/api", api.NewAPIRouter(api.Deps{
			Enricher:    deps.Enricher,
			Bookmarks:   deps.Bookmarks,
			RequireAuth: deps.AuthMiddleware.RequireAPIAuth,
		}))
	})

	// The websocket only reads the session, so it skips LoadAndSave and the
	// response writer stays hijackable.
	r.With(loadSession(deps.SessionManager), deps.AuthMiddleware.RequireAPIAuth).Get("/live", liveHandler.ServeHTTP)

	return r
}

// loadSession attaches the session to the request context without wrapping
// the response writer.
func loadSession(sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(sm.Cookie.Name); err == nil {
				token = c.Value
			}
			ctx, err := sm.Load(r.Context(), token)
			if err != nil {
				http.Error(w, "session error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			if err := check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
