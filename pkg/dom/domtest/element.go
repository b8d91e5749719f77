package domtest

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/entrhq/postpilot/pkg/dom"
)

// element is comparable, so two lookups of the same node are equal.
type element struct {
	p *Page
	n *html.Node
}

func (e element) lockAttached() error {
	e.p.mu.Lock()
	if !e.p.attached(e.n) {
		e.p.mu.Unlock()
		return ErrDetached
	}
	return nil
}

func (e element) TagName(ctx context.Context) (string, error) {
	if err := e.lockAttached(); err != nil {
		return "", err
	}
	defer e.p.mu.Unlock()
	return strings.ToLower(e.n.Data), nil
}

func (e element) TextContent(ctx context.Context) (string, error) {
	if err := e.lockAttached(); err != nil {
		return "", err
	}
	defer e.p.mu.Unlock()
	return textContent(e.n), nil
}

func (e element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.lockAttached(); err != nil {
		return "", false, err
	}
	defer e.p.mu.Unlock()
	v, ok := attr(e.n, name)
	return v, ok, nil
}

func (e element) Closest(ctx context.Context, selector string) (dom.Element, error) {
	if err := e.lockAttached(); err != nil {
		return nil, err
	}
	defer e.p.mu.Unlock()

	sel := e.p.doc.FindNodes(e.n).Closest(selector)
	if sel.Length() == 0 {
		return nil, nil
	}
	return element{p: e.p, n: sel.Nodes[0]}, nil
}

func (e element) ScrollIntoView(ctx context.Context) error {
	if err := e.lockAttached(); err != nil {
		return err
	}
	e.p.mu.Unlock()
	return nil
}

func (e element) Click(ctx context.Context) error {
	if err := e.lockAttached(); err != nil {
		return err
	}
	_, fails := attr(e.n, ClickFailsAttr)
	e.p.mu.Unlock()

	if fails {
		return fmt.Errorf("element %s is not clickable", e.n.Data)
	}
	e.click()
	return nil
}

func (e element) DispatchClick(ctx context.Context) error {
	if err := e.lockAttached(); err != nil {
		return err
	}
	e.p.dispatched++
	e.p.mu.Unlock()

	e.click()
	return nil
}

func (e element) click() {
	e.p.mu.Lock()
	e.p.clicks = append(e.p.clicks, describe(e.n))
	e.p.mu.Unlock()

	e.p.fire(func() []handler { return e.p.clickHandlers }, e.n)
}

func (e element) SetValue(ctx context.Context, value string) error {
	if err := e.lockAttached(); err != nil {
		return err
	}
	e.p.values[e.n] = value
	e.p.mu.Unlock()

	e.p.notify(e.n)
	return nil
}

func (e element) SetTextContent(ctx context.Context, text string) error {
	if err := e.lockAttached(); err != nil {
		return err
	}
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	e.p.values[e.n] = text
	e.p.mu.Unlock()

	e.p.notify(e.n)
	return nil
}

func (e element) SetFiles(ctx context.Context, files []dom.File) error {
	if err := e.lockAttached(); err != nil {
		return err
	}
	if typ, _ := attr(e.n, "type"); e.n.Data != "input" || typ != "file" {
		e.p.mu.Unlock()
		return fmt.Errorf("element %s is not a file input", e.n.Data)
	}
	e.p.files[e.n] = append([]dom.File(nil), files...)
	e.p.mu.Unlock()

	e.p.fire(func() []handler { return e.p.changeHandlers }, e.n)
	return nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
