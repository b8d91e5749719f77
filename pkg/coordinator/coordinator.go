// Package coordinator owns post operations: it picks the page that runs
// them, hands them to the page agent and answers status queries.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/post"
	"github.com/entrhq/postpilot/pkg/protocol"
	"github.com/entrhq/postpilot/pkg/status"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("coordinator")
	if err != nil {
		debugLog.Warnf("Failed to initialize coordinator logger, using stderr fallback: %v", err)
	}
}

// DefaultLoadTimeout bounds the wait for a newly opened page.
const DefaultLoadTimeout = 10 * time.Second

// Tabs finds or opens the page the workflow runs in and talks to its agent.
type Tabs interface {
	// FindTargetPage returns an open page showing the target site, if any,
	// without opening one.
	FindTargetPage(ctx context.Context) (handle, url string, found bool, err error)
	// EnsureTargetPageOpen returns a page showing the target site and
	// whether it was just created.
	EnsureTargetPageOpen(ctx context.Context) (handle string, isNew bool, err error)
	// WaitUntilLoaded blocks until the page finished loading.
	WaitUntilLoaded(ctx context.Context, handle string, timeout time.Duration) error
	// SendToPage delivers req to the page's agent and returns its answer.
	SendToPage(ctx context.Context, handle string, req protocol.Request) (protocol.Response, error)
}

// CreateResult is returned by CreatePost.
type CreateResult struct {
	Success bool   `json:"success"`
	PostID  string `json:"postId"`
	TabID   string `json:"tabId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PageResult describes the target page found or opened by the coordinator.
type PageResult struct {
	Found bool   `json:"found"`
	TabID string `json:"tabId,omitempty"`
	URL   string `json:"url,omitempty"`
	IsNew bool   `json:"isNew,omitempty"`
}

// PingResult describes the page the coordinator would post from.
type PingResult struct {
	Alive    bool   `json:"alive"`
	URL      string `json:"url"`
	OnTarget bool   `json:"onTarget"`
}

// Coordinator runs post operations through Tabs and records their status
// through a Relay.
type Coordinator struct {
	tabs        Tabs
	relay       *status.Relay
	loadTimeout time.Duration
	targetHost  string
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLoadTimeout overrides DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.loadTimeout = d }
}

// WithTargetURL sets the site Ping checks the page against.
func WithTargetURL(raw string) Option {
	return func(c *Coordinator) { c.targetHost = hostOf(raw) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator.
func New(tabs Tabs, relay *status.Relay, opts ...Option) *Coordinator {
	c := &Coordinator{
		tabs:        tabs,
		relay:       relay,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePost starts a new operation for payload under a fresh ID and runs
// it to the end.
func (c *Coordinator) CreatePost(ctx context.Context, payload post.Payload) CreateResult {
	id := post.NewOperationID(c.now())
	ev, err := c.RunPostWorkflow(ctx, id, payload)

	result := CreateResult{Success: err == nil, PostID: id}
	if err != nil {
		result.Error = ev.Error
	}
	if op, lookupErr := c.relay.Lookup(ctx, id); lookupErr == nil {
		result.TabID = op.TabID
	}
	return result
}

// RunPostWorkflow runs operationID on the target page and returns its
// terminal status event. Once the page has accepted the operation,
// cancelling ctx no longer interrupts it.
func (c *Coordinator) RunPostWorkflow(ctx context.Context, operationID string, payload post.Payload) (post.StatusEvent, error) {
	op := post.Operation{
		ID:        operationID,
		Status:    post.StatusPending,
		Payload:   payload,
		CreatedAt: c.now(),
	}
	if err := c.relay.Begin(ctx, op); err != nil {
		return post.NewErrorEvent(operationID, err), err
	}
	debugLog.Infof("[%s] post requested: image %s, caption %d chars", operationID, payload.Image, len(payload.Caption))

	if err := payload.Validate(); err != nil {
		return c.fail(operationID, err)
	}

	handle, isNew, err := c.tabs.EnsureTargetPageOpen(ctx)
	if err != nil {
		return c.fail(operationID, fmt.Errorf("failed to open target page: %w", err))
	}
	if isNew {
		if err := c.tabs.WaitUntilLoaded(ctx, handle, c.loadTimeout); err != nil {
			return c.fail(operationID, fmt.Errorf("target page did not load: %w", err))
		}
	}

	if err := c.relay.AssignTab(ctx, operationID, handle); err != nil {
		debugLog.Warnf("[%s] failed to record page %s: %v", operationID, handle, err)
	}

	resp, err := c.tabs.SendToPage(context.WithoutCancel(ctx), handle, protocol.NewStartPostCreation(operationID, payload))
	if err != nil {
		return c.fail(operationID, fmt.Errorf("failed to reach page agent: %w", err))
	}
	if !resp.Success {
		return c.fail(operationID, errors.New(resp.Error))
	}

	debugLog.Infof("[%s] post completed on page %s", operationID, handle)
	return post.NewCompletedEvent(operationID), nil
}

// fail records err as the operation's terminal status. When the page agent
// already reported a failure, that first status is kept and nothing more is
// published.
func (c *Coordinator) fail(operationID string, err error) (post.StatusEvent, error) {
	debugLog.Errorf("[%s] post failed: %v", operationID, err)
	c.relay.Fail(operationID, err)

	ev := post.NewErrorEvent(operationID, err)
	if op, lookupErr := c.relay.Lookup(context.Background(), operationID); lookupErr == nil && op.Status == post.StatusError && op.ErrorMessage != "" {
		ev.Error = op.ErrorMessage
	}
	return ev, err
}

// GetStatus returns the retained state of an operation, or
// status.ErrNotFound once it is unknown or past retention.
func (c *Coordinator) GetStatus(ctx context.Context, operationID string) (post.Operation, error) {
	return c.relay.Lookup(ctx, operationID)
}

// Ping checks that a page agent answers and whether it shows the target site.
func (c *Coordinator) Ping(ctx context.Context) (PingResult, error) {
	resp, err := c.ask(ctx, protocol.Request{Action: protocol.ActionPing})
	if err != nil {
		return PingResult{}, err
	}
	return PingResult{
		Alive:    resp.Alive,
		URL:      resp.URL,
		OnTarget: c.onTarget(resp.URL),
	}, nil
}

// CheckTargetPage reports whether a page showing the target site is open.
func (c *Coordinator) CheckTargetPage(ctx context.Context) (PageResult, error) {
	handle, url, found, err := c.tabs.FindTargetPage(ctx)
	if err != nil {
		return PageResult{}, fmt.Errorf("failed to list pages: %w", err)
	}
	return PageResult{Found: found, TabID: handle, URL: url}, nil
}

// OpenTargetPage returns the page showing the target site, opening and
// loading one when none is open.
func (c *Coordinator) OpenTargetPage(ctx context.Context) (PageResult, error) {
	handle, isNew, err := c.tabs.EnsureTargetPageOpen(ctx)
	if err != nil {
		return PageResult{}, fmt.Errorf("failed to open target page: %w", err)
	}
	if isNew {
		if err := c.tabs.WaitUntilLoaded(ctx, handle, c.loadTimeout); err != nil {
			return PageResult{}, fmt.Errorf("target page did not load: %w", err)
		}
	}
	return PageResult{Found: true, TabID: handle, IsNew: isNew}, nil
}

// Inspect asks the page agent what it currently sees.
func (c *Coordinator) Inspect(ctx context.Context) (protocol.Response, error) {
	return c.ask(ctx, protocol.Request{Action: protocol.ActionInspectDOM})
}

// Handle answers requests addressed to the coordinator itself and forwards
// page requests to the target page.
func (c *Coordinator) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	if err := req.Validate(); err != nil {
		return protocol.ErrorResponse(err)
	}

	switch req.Action {
	case protocol.ActionGetPostStatus:
		op, err := c.GetStatus(ctx, req.PostID)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		return protocol.Response{Success: true, Status: &op}

	case protocol.ActionCreatePost:
		payload, _ := req.Payload()
		res := c.CreatePost(ctx, payload)
		return protocol.Response{Success: res.Success, Error: res.Error, PostID: res.PostID, TabID: res.TabID}

	case protocol.ActionCheckTargetPage, protocol.ActionOpenTargetPage:
		check := c.CheckTargetPage
		if req.Action == protocol.ActionOpenTargetPage {
			check = c.OpenTargetPage
		}
		page, err := check(ctx)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		return protocol.Response{Success: true, Found: page.Found, TabID: page.TabID, URL: page.URL, IsNew: page.IsNew}

	case protocol.ActionStartPostCreation:
		payload, _ := req.Payload()
		if _, err := c.RunPostWorkflow(ctx, req.PostID, payload); err != nil {
			return protocol.ErrorResponse(err)
		}
		return protocol.Response{Success: true}

	default:
		resp, err := c.ask(ctx, req)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		return resp
	}
}

func (c *Coordinator) ask(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	handle, isNew, err := c.tabs.EnsureTargetPageOpen(ctx)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to open target page: %w", err)
	}
	if isNew {
		if err := c.tabs.WaitUntilLoaded(ctx, handle, c.loadTimeout); err != nil {
			return protocol.Response{}, fmt.Errorf("target page did not load: %w", err)
		}
	}

	resp, err := c.tabs.SendToPage(ctx, handle, req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to reach page agent: %w", err)
	}
	if !resp.Success && resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Coordinator) onTarget(raw string) bool {
	if c.targetHost == "" {
		return false
	}
	return hostOf(raw) == c.targetHost
}

// hostOf returns the host of raw without a leading "www.".
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
