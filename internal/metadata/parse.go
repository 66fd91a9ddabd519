package metadata

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// page collects the raw candidates found while walking a document.
type page struct {
	title string
	meta  map[string]string // first content per lowercased property/name
	img   string
	icon  string
}

// Parse extracts metadata from an HTML document. base resolves relative image
// and icon references; it may be nil, in which case they are returned as-is.
func Parse(r io.Reader, base *url.URL) (Metadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Metadata{}, err
	}

	p := &page{meta: map[string]string{}}
	p.walk(doc)

	md := Metadata{
		Title:       first(p.meta["og:title"], p.meta["twitter:title"], p.title),
		Description: first(p.meta["og:description"], p.meta["description"], p.meta["twitter:description"]),
	}

	image := first(
		p.meta["og:image"],
		p.meta["og:image:url"],
		p.meta["og:image:secure_url"],
		p.meta["twitter:image"],
		p.meta["twitter:image:src"],
		p.img,
	)
	if image == "" {
		image = p.icon
	}
	if image != "" {
		md.Image = resolve(base, image)
	} else if base != nil && base.Host != "" {
		md.Image = (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/favicon.ico"}).String()
	}
	return md, nil
}

func (p *page) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if p.title == "" {
				p.title = collapse(textOf(n))
			}
		case atom.Meta:
			key := strings.ToLower(attr(n, "property"))
			if key == "" {
				key = strings.ToLower(attr(n, "name"))
			}
			content := strings.TrimSpace(attr(n, "content"))
			if key != "" && content != "" {
				if _, seen := p.meta[key]; !seen {
					p.meta[key] = content
				}
			}
		case atom.Img:
			if src := strings.TrimSpace(attr(n, "src")); p.img == "" && src != "" && !strings.HasPrefix(src, "data:") {
				p.img = src
			}
		case atom.Link:
			if p.icon == "" && isIconRel(attr(n, "rel")) {
				p.icon = strings.TrimSpace(attr(n, "href"))
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c)
	}
}

func isIconRel(rel string) bool {
	for _, f := range strings.Fields(strings.ToLower(rel)) {
		if f == "icon" || f == "apple-touch-icon" {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
