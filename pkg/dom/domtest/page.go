// Package domtest provides an in-memory dom.Document for tests: a scripted
// page whose HTML can change while a workflow runs, in the spirit of
// net/http/httptest.
package domtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/entrhq/postpilot/pkg/dom"
)

// ClickFailsAttr marks an element whose direct click fails, so only a
// dispatched click event reaches it.
const ClickFailsAttr = "data-click-fails"

// DefaultURL is the address reported by new pages.
const DefaultURL = "https://www.example.test/"

// ErrDetached is returned when a handle refers to a removed node.
var ErrDetached = errors.New("element is not attached to the document")

// Handler reacts to a user interaction on the page.
type Handler func(p *Page)

type handler struct {
	selector string
	fn       Handler
}

type watcher struct {
	root *html.Node
	ch   chan struct{}
}

// Page is a mutable HTML document implementing dom.Document.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document
	url string

	watchers map[int]*watcher
	nextID   int

	clickHandlers  []handler
	changeHandlers []handler

	clicks     []string
	dispatched int
	values     map[*html.Node]string
	files      map[*html.Node][]dom.File
}

// New parses body as the content of <body> and returns the page.
func New(body string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><head></head><body>" + body + "</body></html>"))
	if err != nil {
		panic(fmt.Sprintf("domtest: parse page: %v", err))
	}
	return &Page{
		doc:      doc,
		url:      DefaultURL,
		watchers: make(map[int]*watcher),
		values:   make(map[*html.Node]string),
		files:    make(map[*html.Node][]dom.File),
	}
}

// SetURL changes the address returned by URL.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// OnClick registers fn to run when an element matching selector, or one of
// its descendants, is clicked.
func (p *Page) OnClick(selector string, fn Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickHandlers = append(p.clickHandlers, handler{selector: selector, fn: fn})
}

// OnChange registers fn to run when files are assigned to an input matching selector.
func (p *Page) OnChange(selector string, fn Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changeHandlers = append(p.changeHandlers, handler{selector: selector, fn: fn})
}

// Append parses fragment and appends it to the first element matching parent.
func (p *Page) Append(parent, fragment string) error {
	p.mu.Lock()
	sel := p.doc.Find(parent).First()
	if sel.Length() == 0 {
		p.mu.Unlock()
		return fmt.Errorf("domtest: no element matches %q", parent)
	}
	sel.AppendHtml(fragment)
	target := sel.Nodes[0]
	p.mu.Unlock()

	p.notify(target)
	return nil
}

// Remove deletes every element matching selector.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	sel := p.doc.Find(selector)
	var parents []*html.Node
	for _, n := range sel.Nodes {
		if n.Parent != nil {
			parents = append(parents, n.Parent)
		}
	}
	sel.Remove()
	p.mu.Unlock()

	for _, parent := range parents {
		p.notify(parent)
	}
}

// Later runs fn after d on its own goroutine.
func (p *Page) Later(d time.Duration, fn Handler) {
	time.AfterFunc(d, func() { fn(p) })
}

// Clicks returns a description ("tag: text") of every clicked element in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// DispatchedClicks counts clicks delivered as synthetic events.
func (p *Page) DispatchedClicks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatched
}

// ValueOf returns the value assigned through SetValue to the first element
// matching selector.
func (p *Page) ValueOf(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	return p.values[sel.Nodes[0]]
}

// TextOf returns the text content of the first element matching selector.
func (p *Page) TextOf(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	return textContent(sel.Nodes[0])
}

// FilesOf returns the files assigned to the first input matching selector.
func (p *Page) FilesOf(selector string) []dom.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return p.files[sel.Nodes[0]]
}

// WatcherCount returns the number of live mutation subscriptions.
func (p *Page) WatcherCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers)
}

// HTML renders the current document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, err := p.doc.Html()
	if err != nil {
		return ""
	}
	return out
}

// MustFind returns the first element matching selector or panics.
func (p *Page) MustFind(selector string) dom.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		panic(fmt.Sprintf("domtest: no element matches %q", selector))
	}
	return element{p: p, n: sel.Nodes[0]}
}

// QueryAll implements dom.Document.
func (p *Page) QueryAll(ctx context.Context, root dom.Element, selector string) ([]dom.Element, error) {
	if _, err := cascadia.Compile(selector); err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var sel *goquery.Selection
	if root == nil {
		sel = p.doc.Find(selector)
	} else {
		n, err := p.nodeOf(root)
		if err != nil {
			return nil, err
		}
		sel = p.doc.FindNodes(n).Find(selector)
	}

	out := make([]dom.Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		out = append(out, element{p: p, n: n})
	}
	return out, nil
}

// Observe implements dom.Document. Notifications are limited to mutations
// whose target lies inside root.
func (p *Page) Observe(ctx context.Context, root dom.Element) (<-chan struct{}, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var rootNode *html.Node
	if root != nil {
		n, err := p.nodeOf(root)
		if err != nil {
			return nil, nil, err
		}
		rootNode = n
	}

	id := p.nextID
	p.nextID++
	w := &watcher{root: rootNode, ch: make(chan struct{}, 1)}
	p.watchers[id] = w

	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.watchers, id)
		})
	}
	return w.ch, stop, nil
}

// CreateFileInput implements dom.Document.
func (p *Page) CreateFileInput(ctx context.Context, accept string) (dom.Element, error) {
	p.mu.Lock()
	body := p.doc.Find("body").First()
	body.AppendHtml(fmt.Sprintf(`<input type="file" accept=%q style="display:none">`, accept))
	inputs := body.ChildrenFiltered(`input[type="file"]`)
	n := inputs.Nodes[inputs.Length()-1]
	bodyNode := body.Nodes[0]
	p.mu.Unlock()

	p.notify(bodyNode)
	return element{p: p, n: n}, nil
}

// URL implements dom.Document.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) nodeOf(el dom.Element) (*html.Node, error) {
	e, ok := el.(element)
	if !ok || e.p != p {
		return nil, fmt.Errorf("domtest: element %T does not belong to this page", el)
	}
	if !p.attached(e.n) {
		return nil, ErrDetached
	}
	return e.n, nil
}

func (p *Page) attached(n *html.Node) bool {
	root := p.doc.Nodes[0]
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

// notify wakes every watcher whose root contains target.
func (p *Page) notify(target *html.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.watchers {
		if w.root != nil && !contains(w.root, target) {
			continue
		}
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// fire runs the handlers registered for n or any of its ancestors.
func (p *Page) fire(handlers func() []handler, n *html.Node) {
	p.mu.Lock()
	var matched []Handler
	for _, h := range handlers() {
		if p.doc.FindNodes(n).Closest(h.selector).Length() > 0 {
			matched = append(matched, h.fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range matched {
		fn(p)
	}
}

func contains(root, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func describe(n *html.Node) string {
	text := strings.Join(strings.Fields(textContent(n)), " ")
	if text == "" {
		for _, a := range n.Attr {
			if a.Key == "aria-label" || a.Key == "id" {
				text = a.Val
				break
			}
		}
	}
	return fmt.Sprintf("%s: %s", n.Data, text)
}
