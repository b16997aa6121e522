package page

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selector matches elements by tag name, id and class tokens. Supported
// forms are "ul", "#feed", ".job-card" and compounds like "ul.results" or
// "div#feed.wide". Combinators are not supported.
type Selector struct {
	Tag     string
	ID      string
	Classes []string
}

// ParseSelector parses a simple selector string.
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}

	var sel Selector
	rest := s
	for len(rest) > 0 {
		var kind byte
		if rest[0] == '.' || rest[0] == '#' {
			kind = rest[0]
			rest = rest[1:]
		}

		end := strings.IndexAny(rest, ".#")
		var token string
		if end < 0 {
			token, rest = rest, ""
		} else {
			token, rest = rest[:end], rest[end:]
		}

		if !isNameToken(token) {
			return Selector{}, fmt.Errorf("unsupported selector %q", s)
		}

		switch kind {
		case '.':
			sel.Classes = append(sel.Classes, token)
		case '#':
			if sel.ID != "" {
				return Selector{}, fmt.Errorf("unsupported selector %q", s)
			}
			sel.ID = token
		default:
			if sel.Tag != "" {
				return Selector{}, fmt.Errorf("unsupported selector %q", s)
			}
			sel.Tag = strings.ToLower(token)
		}
	}
	return sel, nil
}

func isNameToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// Matches reports whether the element node satisfies the selector.
func (s Selector) Matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.Tag != "" && !strings.EqualFold(n.Data, s.Tag) {
		return false
	}
	if s.ID != "" && attrVal(n, "id") != s.ID {
		return false
	}
	for _, class := range s.Classes {
		if !hasClassToken(n, class) {
			return false
		}
	}
	return true
}

// findFirst returns the first element below root matching sel, depth first.
func findFirst(root *html.Node, sel Selector) *html.Node {
	if sel.Matches(root) {
		return root
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, sel); found != nil {
			return found
		}
	}
	return nil
}

// findAll collects every element below root matching sel, in document
// order. The root itself is not considered.
func findAll(root *html.Node, sel Selector) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if sel.Matches(child) {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

func attrVal(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func setAttrVal(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClassToken(n *html.Node, token string) bool {
	for _, have := range strings.Fields(attrVal(n, "class")) {
		if have == token {
			return true
		}
	}
	return false
}

func addClassToken(n *html.Node, token string) {
	if hasClassToken(n, token) {
		return
	}
	existing := attrVal(n, "class")
	if existing == "" {
		setAttrVal(n, "class", token)
		return
	}
	setAttrVal(n, "class", existing+" "+token)
}

func removeClassToken(n *html.Node, token string) {
	fields := strings.Fields(attrVal(n, "class"))
	kept := fields[:0]
	for _, have := range fields {
		if have != token {
			kept = append(kept, have)
		}
	}
	setAttrVal(n, "class", strings.Join(kept, " "))
}
