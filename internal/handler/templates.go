package handler

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/joestump/smartmark/internal/store"
	"github.com/joestump/smartmark/web"
)

// BasePage carries layout-level data available to every template.
type BasePage struct {
	Theme string      // "smartmark-light", "smartmark-dark", or "" (follow the system)
	User  *store.User // nil for anonymous pages
}

func newBasePage(r *http.Request, user *store.User) BasePage {
	return BasePage{Theme: themeFromRequest(r), User: user}
}

// pageCache maps a page file name (e.g. "dashboard.html") to a template set
// holding base.html, the partials and that one page, so each page's
// {{define "content"}} stays separate.
var pageCache map[string]*template.Template

func init() {
	var err error
	pageCache, err = buildPageCache(web.TemplateFS)
	if err != nil {
		panic("build page cache: " + err.Error())
	}
}

func buildPageCache(fsys fs.FS) (map[string]*template.Template, error) {
	partials, err := fs.Glob(fsys, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob partials: %w", err)
	}

	cache := make(map[string]*template.Template)
	err = fs.WalkDir(fsys, "templates/pages", func(p string, d fs.DirEntry, e error) error {
		if e != nil || d.IsDir() || !strings.HasSuffix(p, ".html") {
			return e
		}

		files := make([]string, 0, 2+len(partials))
		files = append(files, "templates/base.html")
		files = append(files, partials...)
		files = append(files, p)

		t, err := template.New("").Funcs(funcs).ParseFS(fsys, files...)
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		rel, _ := strings.CutPrefix(p, "templates/pages/")
		cache[rel] = t
		return nil
	})
	return cache, err
}

var funcs = template.FuncMap{
	"initial": func(s string) string {
		s = strings.TrimSpace(s)
		if s == "" {
			return "?"
		}
		return strings.ToUpper(s[:1])
	},
}

// render executes a full-page template (base layout + named page).
func render(w http.ResponseWriter, tmpl string, data any) {
	t, ok := pageCache[tmpl]
	if !ok {
		http.Error(w, "template not found: "+tmpl, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
	}
}
