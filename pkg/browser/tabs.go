package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/postpilot/pkg/coordinator"
	"github.com/entrhq/postpilot/pkg/pageagent"
	"github.com/entrhq/postpilot/pkg/protocol"
	"github.com/entrhq/postpilot/pkg/workflow"
)

// PageSource is the part of Manager that Tabs uses.
type PageSource interface {
	Pages() ([]playwright.Page, error)
	NewPage() (playwright.Page, error)
}

type tab struct {
	handle   string
	page     playwright.Page
	agent    *pageagent.Agent
	openedAt time.Time
	lastUsed time.Time
}

// Tabs hands out pages showing the target site, each with its own agent.
type Tabs struct {
	source    PageSource
	targetURL string
	patterns  []glob.Glob
	emit      workflow.Emitter
	agentOpts []pageagent.Option

	mu   sync.Mutex
	tabs map[string]*tab
	now  func() time.Time
}

// TabsOption configures Tabs.
type TabsOption func(*Tabs)

// WithAgentOptions passes options to every page agent Tabs creates.
func WithAgentOptions(opts ...pageagent.Option) TabsOption {
	return func(t *Tabs) {
		t.agentOpts = append(t.agentOpts, opts...)
	}
}

var _ coordinator.Tabs = (*Tabs)(nil)

// NewTabs creates Tabs opening targetURL and reusing pages whose URL
// matches one of patterns. Status events of every page's agent go to emit.
func NewTabs(source PageSource, targetURL string, patterns []string, emit workflow.Emitter, opts ...TabsOption) (*Tabs, error) {
	if targetURL == "" {
		return nil, fmt.Errorf("target URL is required")
	}

	compiled, err := CompilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	t := &Tabs{
		source:    source,
		targetURL: targetURL,
		patterns:  compiled,
		emit:      emit,
		tabs:      make(map[string]*tab),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// CompilePatterns compiles URL glob patterns such as
// "https://www.instagram.com/*".
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid page pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Matches reports whether url is a page Tabs may reuse.
func (t *Tabs) Matches(url string) bool {
	for _, g := range t.patterns {
		if g.Match(url) {
			return true
		}
	}
	return false
}

// FindTargetPage returns an open page showing the target site without
// opening one.
func (t *Tabs) FindTargetPage(ctx context.Context) (handle, url string, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", false, err
	}

	pages, err := t.source.Pages()
	if err != nil {
		return "", "", false, err
	}
	for _, p := range pages {
		if p.IsClosed() || !t.Matches(p.URL()) {
			continue
		}
		return t.attach(p).handle, p.URL(), true, nil
	}
	return "", "", false, nil
}

func (t *Tabs) EnsureTargetPageOpen(ctx context.Context) (string, bool, error) {
	handle, url, found, err := t.FindTargetPage(ctx)
	if err != nil {
		return "", false, err
	}
	if found {
		debugLog.Debugf("Reusing page %s at %s", handle, url)
		return handle, false, nil
	}

	page, err := t.source.NewPage()
	if err != nil {
		return "", false, err
	}
	if _, err := page.Goto(t.targetURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateCommit,
	}); err != nil {
		_ = page.Close()
		return "", false, fmt.Errorf("navigation to %s failed: %w", t.targetURL, err)
	}

	tb := t.attach(page)
	debugLog.Infof("Opened page %s at %s", tb.handle, t.targetURL)
	return tb.handle, true, nil
}

// attach returns the tab tracking page, creating it and its agent on first
// sight.
func (t *Tabs) attach(page playwright.Page) *tab {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for _, tb := range t.tabs {
		if tb.page == page {
			tb.lastUsed = now
			return tb
		}
	}

	tb := &tab{
		handle:   "page-" + uuid.New().String()[:8],
		page:     page,
		agent:    pageagent.New(NewDocument(page), t.emit, t.agentOpts...),
		openedAt: now,
		lastUsed: now,
	}
	t.tabs[tb.handle] = tb

	handle := tb.handle
	page.OnClose(func(playwright.Page) {
		t.forget(handle)
	})
	return tb
}

func (t *Tabs) forget(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tabs, handle)
}

func (t *Tabs) lookup(handle string) (*tab, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tb, ok := t.tabs[handle]
	if !ok {
		return nil, fmt.Errorf("page %q not found", handle)
	}
	tb.lastUsed = t.now()
	return tb, nil
}

func (t *Tabs) WaitUntilLoaded(ctx context.Context, handle string, timeout time.Duration) error {
	tb, err := t.lookup(handle)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	return tb.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

// SendToPage encodes req, hands it to the page's agent and decodes the
// answer, so both sides only share the wire format.
func (t *Tabs) SendToPage(ctx context.Context, handle string, req protocol.Request) (protocol.Response, error) {
	tb, err := t.lookup(handle)
	if err != nil {
		return protocol.Response{}, err
	}

	data, err := protocol.Encode(req)
	if err != nil {
		return protocol.Response{}, err
	}
	out, err := tb.agent.ServeMessage(ctx, data)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(out)
}

// Content returns the current HTML of the page behind handle.
func (t *Tabs) Content(ctx context.Context, handle string) (string, error) {
	tb, err := t.lookup(handle)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return tb.page.Content()
}

// List describes the tracked pages, oldest first.
func (t *Tabs) List() []TabInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]TabInfo, 0, len(t.tabs))
	for _, tb := range t.tabs {
		infos = append(infos, TabInfo{
			Handle:   tb.handle,
			URL:      tb.page.URL(),
			OpenedAt: tb.openedAt,
			LastUsed: tb.lastUsed,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].OpenedAt.Before(infos[j].OpenedAt)
	})
	return infos
}
