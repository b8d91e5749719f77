package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/postpilot/pkg/post"
	"github.com/entrhq/postpilot/pkg/protocol"
)

// fakePage implements the handful of page methods Tabs calls. Anything else
// panics through the nil embedded interface.
type fakePage struct {
	playwright.Page
	url       string
	closed    bool
	gotoURL   string
	gotoErr   error
	loadState *playwright.LoadState
	onClose   []func(playwright.Page)
}

func (p *fakePage) URL() string    { return p.url }
func (p *fakePage) IsClosed() bool { return p.closed }

func (p *fakePage) OnClose(fn func(playwright.Page)) {
	p.onClose = append(p.onClose, fn)
}

func (p *fakePage) Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error) {
	if p.gotoErr != nil {
		return nil, p.gotoErr
	}
	p.gotoURL = url
	p.url = url
	return nil, nil
}

func (p *fakePage) Close(options ...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

func (p *fakePage) WaitForLoadState(options ...playwright.PageWaitForLoadStateOptions) error {
	if len(options) > 0 {
		p.loadState = options[0].State
	}
	return nil
}

func (p *fakePage) fireClose() {
	p.closed = true
	for _, fn := range p.onClose {
		fn(p)
	}
}

type fakeSource struct {
	pages  []playwright.Page
	opened []*fakePage
	next   *fakePage
}

func (s *fakeSource) Pages() ([]playwright.Page, error) {
	return s.pages, nil
}

func (s *fakeSource) NewPage() (playwright.Page, error) {
	p := s.next
	if p == nil {
		p = &fakePage{url: "about:blank"}
	}
	s.opened = append(s.opened, p)
	s.pages = append(s.pages, p)
	return p, nil
}

const target = "https://www.instagram.com/"

var patterns = []string{"https://www.instagram.com/*", "https://instagram.com/*"}

func newTabs(t *testing.T, src *fakeSource) *Tabs {
	t.Helper()
	tabs, err := NewTabs(src, target, patterns, func(post.StatusEvent) {})
	require.NoError(t, err)
	return tabs
}

func TestTabs_ReusesMatchingPage(t *testing.T) {
	src := &fakeSource{pages: []playwright.Page{
		&fakePage{url: "about:blank"},
		&fakePage{url: "https://www.instagram.com/explore/"},
	}}
	tabs := newTabs(t, src)

	handle, isNew, err := tabs.EnsureTargetPageOpen(context.Background())
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Empty(t, src.opened)

	again, _, err := tabs.EnsureTargetPageOpen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, handle, again)
	assert.Len(t, tabs.List(), 1)
}

func TestTabs_OpensTargetWhenNoneMatch(t *testing.T) {
	src := &fakeSource{pages: []playwright.Page{
		&fakePage{url: "https://example.com/"},
		&fakePage{url: "https://www.instagram.com/", closed: true},
	}}
	tabs := newTabs(t, src)

	handle, isNew, err := tabs.EnsureTargetPageOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, isNew)
	require.Len(t, src.opened, 1)
	assert.Equal(t, target, src.opened[0].gotoURL)

	require.NoError(t, tabs.WaitUntilLoaded(context.Background(), handle, 10*time.Second))
	assert.Equal(t, playwright.LoadStateLoad, src.opened[0].loadState)

	// The page now matches and is reused.
	again, isNew, err := tabs.EnsureTargetPageOpen(context.Background())
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, handle, again)
}

func TestTabs_FindTargetPageNeverOpens(t *testing.T) {
	src := &fakeSource{pages: []playwright.Page{&fakePage{url: "https://example.com/"}}}
	tabs := newTabs(t, src)

	_, _, found, err := tabs.FindTargetPage(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, src.opened)

	src.pages = append(src.pages, &fakePage{url: "https://instagram.com/p/abc/"})
	handle, url, found, err := tabs.FindTargetPage(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://instagram.com/p/abc/", url)
	assert.NotEmpty(t, handle)
	assert.Empty(t, src.opened)
}

func TestTabs_NavigationFailure(t *testing.T) {
	bad := &fakePage{url: "about:blank", gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	src := &fakeSource{next: bad}
	tabs := newTabs(t, src)

	_, _, err := tabs.EnsureTargetPageOpen(context.Background())
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
	assert.True(t, bad.closed)
	assert.Empty(t, tabs.List())
}

func TestTabs_SendToPageRoundTrip(t *testing.T) {
	src := &fakeSource{pages: []playwright.Page{&fakePage{url: "https://www.instagram.com/"}}}
	tabs := newTabs(t, src)

	handle, _, err := tabs.EnsureTargetPageOpen(context.Background())
	require.NoError(t, err)

	resp, err := tabs.SendToPage(context.Background(), handle, protocol.Request{Action: protocol.ActionPing})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Alive)
	assert.Equal(t, "https://www.instagram.com/", resp.URL)

	resp, err = tabs.SendToPage(context.Background(), handle, protocol.Request{Action: "selfDestruct"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestTabs_UnknownAndClosedHandles(t *testing.T) {
	page := &fakePage{url: "https://www.instagram.com/"}
	src := &fakeSource{pages: []playwright.Page{page}}
	tabs := newTabs(t, src)
	ctx := context.Background()

	_, err := tabs.SendToPage(ctx, "page-missing", protocol.Request{Action: protocol.ActionPing})
	assert.ErrorContains(t, err, "not found")

	handle, _, err := tabs.EnsureTargetPageOpen(ctx)
	require.NoError(t, err)

	page.fireClose()
	assert.Empty(t, tabs.List())
	assert.Error(t, tabs.WaitUntilLoaded(ctx, handle, time.Second))
}

func TestTabs_WaitUntilLoadedHonoursDeadline(t *testing.T) {
	src := &fakeSource{pages: []playwright.Page{&fakePage{url: "https://www.instagram.com/"}}}
	tabs := newTabs(t, src)

	handle, _, err := tabs.EnsureTargetPageOpen(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	assert.ErrorIs(t, tabs.WaitUntilLoaded(ctx, handle, 10*time.Second), context.DeadlineExceeded)
}

func TestNewTabs_Validation(t *testing.T) {
	_, err := NewTabs(&fakeSource{}, "", patterns, nil)
	assert.Error(t, err)

	_, err = NewTabs(&fakeSource{}, target, []string{"https://[unclosed"}, nil)
	assert.ErrorContains(t, err, "invalid page pattern")
}

func TestTabs_Matches(t *testing.T) {
	tabs := newTabs(t, &fakeSource{})

	assert.True(t, tabs.Matches("https://www.instagram.com/"))
	assert.True(t, tabs.Matches("https://instagram.com/p/abc/"))
	assert.False(t, tabs.Matches("https://www.instagram.com"))
	assert.False(t, tabs.Matches("https://evil.example/?next=https://www.instagram.com/"))
}
