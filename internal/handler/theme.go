package handler

import (
	"encoding/json"
	"net/http"
)

const (
	themeLight = "smartmark-light"
	themeDark  = "smartmark-dark"
)

// themeFromRequest reads the "theme" cookie. It returns "" when absent or
// unknown so the page follows the system preference.
func themeFromRequest(r *http.Request) string {
	c, err := r.Cookie("theme")
	if err != nil {
		return ""
	}
	if c.Value == themeLight || c.Value == themeDark {
		return c.Value
	}
	return ""
}

// ThemeHandler persists the light/dark choice.
type ThemeHandler struct{}

func NewThemeHandler() *ThemeHandler { return &ThemeHandler{} }

// Toggle handles POST /theme. The cookie is readable by scripts so the page
// can apply the theme before first paint.
func (h *ThemeHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	theme := r.FormValue("theme")
	if theme != themeLight && theme != themeDark {
		http.Error(w, "invalid theme", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "theme",
		Value:    theme,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"theme": theme})
}
