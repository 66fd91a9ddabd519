package handler

import (
	"net/http"

	"github.com/joestump/smartmark/internal/auth"
)

// LandingHandler serves the public sign-in page.
type LandingHandler struct {
	auth *auth.Middleware
}

func NewLandingHandler(m *auth.Middleware) *LandingHandler { return &LandingHandler{auth: m} }

// Index serves GET /. Signed-in users go straight to the dashboard.
func (h *LandingHandler) Index(w http.ResponseWriter, r *http.Request) {
	if h.auth.CurrentUser(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	render(w, "landing.html", newBasePage(r, nil))
}
