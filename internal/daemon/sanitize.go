package daemon

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Tags removed wholesale, subtree included, when embedding rendered report
// markdown into daemon pages.
var blockedTags = map[string]struct{}{
	"script": {},
	"style":  {},
	"iframe": {},
	"object": {},
	"embed":  {},
	"form":   {},
	"link":   {},
	"meta":   {},
	"base":   {},
}

// Attributes that carry URLs and therefore need scheme filtering.
var urlAttrs = map[string]struct{}{
	"href":   {},
	"src":    {},
	"action": {},
}

// SanitizeHTML strips active content from an HTML fragment: blocked elements
// disappear with their subtree, event-handler attributes and javascript:
// URLs are removed. Everything else renders unchanged.
func SanitizeHTML(fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if !sanitizeNode(n) {
			continue
		}
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// sanitizeNode prunes a node in place; false means the node must be dropped.
func sanitizeNode(n *html.Node) bool {
	if n.Type == html.ElementNode {
		if _, blocked := blockedTags[n.Data]; blocked {
			return false
		}
		n.Attr = sanitizeAttrs(n.Attr)
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if !sanitizeNode(c) {
			n.RemoveChild(c)
		}
		c = next
	}
	return true
}

func sanitizeAttrs(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, attr := range attrs {
		key := strings.ToLower(attr.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if _, isURL := urlAttrs[key]; isURL {
			val := strings.ToLower(strings.TrimSpace(attr.Val))
			if strings.HasPrefix(val, "javascript:") || strings.HasPrefix(val, "data:") {
				continue
			}
		}
		kept = append(kept, attr)
	}
	return kept
}
