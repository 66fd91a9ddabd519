package handler

import (
	"net/http"

	"github.com/joestump/smartmark/internal/auth"
)

// DashboardPage is the template data for the dashboard. Bookmarks arrive
// over the /live websocket, so the page itself carries only the user.
type DashboardPage struct {
	BasePage
}

// DashboardHandler serves the signed-in bookmark grid.
type DashboardHandler struct{}

func NewDashboardHandler() *DashboardHandler { return &DashboardHandler{} }

// Show serves GET /dashboard.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	render(w, "dashboard.html", DashboardPage{BasePage: newBasePage(r, user)})
}
