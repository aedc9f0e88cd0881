// internal/page/document.go
package page

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Document is one fetched and parsed HTML page.
type Document struct {
	URL        *url.URL
	StatusCode int
	Root       *html.Node
	Raw        []byte
}

// NewDocument parses body into a Document.
func NewDocument(u *url.URL, status int, body []byte) (*Document, error) {
	root, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{URL: u, StatusCode: status, Root: root, Raw: body}, nil
}

// Query returns the first node matching expr, or nil.
func (d *Document) Query(expr string) (*html.Node, error) {
	node, err := htmlquery.Query(d.Root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid XPath selector '%s': %w", expr, err)
	}
	return node, nil
}

// QueryAll returns every node matching expr.
func (d *Document) QueryAll(expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(d.Root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid XPath selector '%s': %w", expr, err)
	}
	return nodes, nil
}

func (d *Document) selectOne(expr *xpath.Expr) *html.Node {
	if expr == nil {
		return nil
	}
	return htmlquery.QuerySelector(d.Root, expr)
}

func (d *Document) selectAll(expr *xpath.Expr) []*html.Node {
	if expr == nil {
		return nil
	}
	return htmlquery.QuerySelectorAll(d.Root, expr)
}

// Resolve resolves a reference found on the page, such as a form action,
// against the page URL. An empty ref resolves to the page itself.
func (d *Document) Resolve(ref string) (*url.URL, error) {
	ref = strings.TrimSpace(ref)
	if d.URL == nil {
		return url.Parse(ref)
	}
	if ref == "" {
		u := *d.URL
		u.Fragment = ""
		return &u, nil
	}
	return d.URL.Parse(ref)
}

// LowerText returns the lowercased raw body.
func (d *Document) LowerText() string {
	return strings.ToLower(string(d.Raw))
}

func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	return htmlquery.SelectAttr(n, key)
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}
