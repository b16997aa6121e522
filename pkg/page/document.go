// Package page adapts a fetched HTML page to the container contract. Items
// are elements matched by a selector; the hide marker is a class token
// backed by an injected stylesheet rule.
package page

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// DefaultMarkerClass is the class token written onto hidden items.
const DefaultMarkerClass = "lv-hidden"

// styleAttr marks the injected stylesheet so repeat injections can find it.
const styleAttr = "data-listveil"

// Document is a parsed HTML page. All tree reads and writes go through its
// lock; item adapters share it.
type Document struct {
	mu   sync.Mutex
	root *html.Node
}

// Parse reads and parses an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render serializes the document, including any markers and the injected
// stylesheet.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := html.Render(w, d.root); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}

// HTML renders the document to a string.
func (d *Document) HTML() (string, error) {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// EnsureHideStyle injects a stylesheet rule that hides elements carrying
// the marker class. It is idempotent and reports whether an injection
// happened. The rule must be in place before any marker is written so
// items never flash between classification and hiding.
func (d *Document) EnsureHideStyle(markerClass string) bool {
	if markerClass == "" {
		markerClass = DefaultMarkerClass
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	head := findFirst(d.root, Selector{Tag: "head"})
	if head == nil {
		return false
	}
	for child := head.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "style" && attrVal(child, styleAttr) != "" {
			return false
		}
	}

	style := &html.Node{
		Type: html.ElementNode,
		Data: "style",
		Attr: []html.Attribute{{Key: styleAttr, Val: "hide-style"}},
	}
	style.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: fmt.Sprintf(".%s{display:none !important;}", markerClass),
	})
	head.AppendChild(style)
	return true
}

// Select returns the first element matching the selector, for callers that
// need direct access to a node.
func (d *Document) Select(sel Selector) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findFirst(d.root, sel)
}

// collapseText returns the concatenated text content below n with runs of
// whitespace collapsed to single spaces.
func collapseText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
