package browser

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/postpilot/pkg/dom"
)

const (
	// mutationPollInterval is how often observed roots are checked for changes.
	mutationPollInterval = 100 * time.Millisecond
	// directClickTimeout bounds Playwright's actionability wait so an
	// obscured control falls back to a dispatched click quickly.
	directClickTimeout = 2 * time.Second
)

var observerSeq atomic.Uint64

// Document adapts a Playwright page to dom.Document.
type Document struct {
	page playwright.Page
}

// NewDocument wraps page.
func NewDocument(page playwright.Page) *Document {
	return &Document{page: page}
}

var _ dom.Document = (*Document)(nil)

func (d *Document) QueryAll(ctx context.Context, root dom.Element, selector string) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		handles []playwright.ElementHandle
		err     error
	)
	if root == nil {
		handles, err = d.page.QuerySelectorAll(selector)
	} else {
		el, ok := root.(*Element)
		if !ok {
			return nil, fmt.Errorf("element %T does not belong to a browser page", root)
		}
		handles, err = el.handle.QuerySelectorAll(selector)
	}
	if err != nil {
		return nil, err
	}

	out := make([]dom.Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, &Element{handle: h})
	}
	return out, nil
}

// Observe bridges a MutationObserver on root (document.body when nil) to a
// channel. Each subscription owns a counter on window keyed by a sequence
// number.
func (d *Document) Observe(ctx context.Context, root dom.Element) (<-chan struct{}, func(), error) {
	key := fmt.Sprintf("__postpilotMutations%d", observerSeq.Add(1))

	const install = `([el, key]) => {
		const target = el || document.body || document.documentElement;
		window[key] = { count: 0, observer: null };
		const obs = new MutationObserver(() => { window[key].count++; });
		obs.observe(target, { childList: true, subtree: true, attributes: true, characterData: true });
		window[key].observer = obs;
		return 0;
	}`

	var handle playwright.ElementHandle
	if root != nil {
		el, ok := root.(*Element)
		if !ok {
			return nil, nil, fmt.Errorf("element %T does not belong to a browser page", root)
		}
		handle = el.handle
	}

	if _, err := d.page.Evaluate(install, []interface{}{handle, key}); err != nil {
		return nil, nil, fmt.Errorf("failed to install mutation observer: %w", err)
	}

	events := make(chan struct{}, 1)
	done := make(chan struct{})
	notify := func() {
		select {
		case events <- struct{}{}:
		default:
		}
	}

	go func() {
		ticker := time.NewTicker(mutationPollInterval)
		defer ticker.Stop()

		var last float64
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				v, err := d.page.Evaluate(`key => window[key] ? window[key].count : -1`, key)
				if err != nil {
					// The page navigated or closed; let the waiter re-query.
					notify()
					continue
				}
				n, _ := v.(float64)
				if n < 0 || n != last {
					last = n
					notify()
				}
			}
		}
	}()

	var stopped atomic.Bool
	stop := func() {
		if !stopped.CompareAndSwap(false, true) {
			return
		}
		close(done)
		_, _ = d.page.Evaluate(`key => {
			if (window[key]) { window[key].observer.disconnect(); delete window[key]; }
		}`, key)
	}
	return events, stop, nil
}

func (d *Document) CreateFileInput(ctx context.Context, accept string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := d.page.EvaluateHandle(`accept => {
		const input = document.createElement('input');
		input.type = 'file';
		input.accept = accept;
		input.style.display = 'none';
		document.body.appendChild(input);
		return input;
	}`, accept)
	if err != nil {
		return nil, fmt.Errorf("failed to create file input: %w", err)
	}

	el := h.AsElement()
	if el == nil {
		return nil, fmt.Errorf("failed to create file input: not an element")
	}
	return &Element{handle: el}, nil
}

func (d *Document) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

// Element adapts a Playwright element handle to dom.Element.
type Element struct {
	handle playwright.ElementHandle
}

var _ dom.Element = (*Element)(nil)

func (e *Element) TagName(ctx context.Context) (string, error) {
	v, err := e.eval(ctx, `el => el.tagName.toLowerCase()`)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.handle.TextContent()
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.eval(ctx, `(el, name) => el.getAttribute(name)`, name)
	if err != nil {
		return "", false, err
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (e *Element) Closest(ctx context.Context, selector string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := e.handle.EvaluateHandle(`(el, sel) => el.closest(sel)`, selector)
	if err != nil {
		return nil, err
	}
	el := h.AsElement()
	if el == nil {
		return nil, nil
	}
	return &Element{handle: el}, nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	_, err := e.eval(ctx, `el => el.scrollIntoView({ behavior: 'instant', block: 'center' })`)
	return err
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := directClickTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	return e.handle.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (e *Element) DispatchClick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.handle.DispatchEvent("click", map[string]interface{}{
		"bubbles":    true,
		"cancelable": true,
	})
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	_, err := e.eval(ctx, `(el, value) => {
		el.focus();
		el.value = value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	}`, value)
	return err
}

func (e *Element) SetTextContent(ctx context.Context, text string) error {
	_, err := e.eval(ctx, `(el, text) => {
		el.focus();
		el.textContent = text;
		el.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'insertText', data: text }));
	}`, text)
	return err
}

func (e *Element) SetFiles(ctx context.Context, files []dom.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in := make([]playwright.InputFile, 0, len(files))
	for _, f := range files {
		in = append(in, playwright.InputFile{
			Name:     f.Name,
			MimeType: f.MimeType,
			Buffer:   f.Data,
		})
	}
	return e.handle.SetInputFiles(in)
}

func (e *Element) eval(ctx context.Context, expr string, arg ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := e.handle.Evaluate(expr, arg...)
	if err != nil && strings.Contains(err.Error(), "not attached") {
		return nil, fmt.Errorf("element is no longer attached: %w", err)
	}
	return v, err
}
