package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultSnapshotLength caps the markup a snapshot keeps.
const DefaultSnapshotLength = 20000

// Snapshot is a reduced view of a page: the markup the workflow's locators
// care about with scripts, styles and icons removed.
type Snapshot struct {
	Title     string
	HTML      string
	Dialogs   int
	Truncated bool
}

// keptAttributes are the attributes the workflow's locators match on.
var keptAttributes = map[string]bool{
	"id":              true,
	"class":           true,
	"role":            true,
	"aria-label":      true,
	"type":            true,
	"accept":          true,
	"contenteditable": true,
	"placeholder":     true,
	"href":            true,
	"name":            true,
}

var droppedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Link:     true,
	atom.Meta:     true,
}

var voidElements = map[atom.Atom]bool{
	atom.Br:    true,
	atom.Hr:    true,
	atom.Img:   true,
	atom.Input: true,
	atom.Wbr:   true,
}

// TakeSnapshot reduces rawHTML to at most maxLength bytes of markup
// (DefaultSnapshotLength when maxLength <= 0).
func TakeSnapshot(rawHTML string, maxLength int) (*Snapshot, error) {
	if maxLength <= 0 {
		maxLength = DefaultSnapshotLength
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &snapshotWriter{limit: maxLength}
	w.walk(doc, 0)

	return &Snapshot{
		Title:     w.title,
		HTML:      w.b.String(),
		Dialogs:   w.dialogs,
		Truncated: w.full,
	}, nil
}

type snapshotWriter struct {
	b       strings.Builder
	limit   int
	full    bool
	title   string
	dialogs int
}

func (w *snapshotWriter) write(s string) {
	if w.full {
		return
	}
	if w.b.Len()+len(s) > w.limit {
		w.b.WriteString(s[:w.limit-w.b.Len()])
		w.b.WriteString("...")
		w.full = true
		return
	}
	w.b.WriteString(s)
}

func (w *snapshotWriter) walk(n *html.Node, depth int) {
	switch n.Type {
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			w.write(html.EscapeString(text))
		}
		return
	case html.ElementNode:
		w.element(n, depth)
		return
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, depth)
		}
	}
}

func (w *snapshotWriter) element(n *html.Node, depth int) {
	if n.DataAtom == atom.Title && w.title == "" && n.FirstChild != nil {
		w.title = strings.TrimSpace(n.FirstChild.Data)
	}
	if droppedElements[n.DataAtom] || n.DataAtom == atom.Title {
		return
	}

	var attrs strings.Builder
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if key == "role" && a.Val == "dialog" {
			w.dialogs++
		}
		if keptAttributes[key] || strings.HasPrefix(key, "data-") {
			fmt.Fprintf(&attrs, ` %s="%s"`, key, html.EscapeString(a.Val))
		}
	}

	indent := "\n" + strings.Repeat("  ", depth)
	w.write(indent + "<" + n.Data + attrs.String() + ">")
	if voidElements[n.DataAtom] {
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, depth+1)
	}
	if n.LastChild != nil && n.LastChild.Type == html.ElementNode {
		w.write(indent)
	}
	w.write("</" + n.Data + ">")
}
