// Package pageagent is the execution context living in one browser page. It
// answers protocol requests and runs the post workflow against the page.
package pageagent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/entrhq/postpilot/pkg/actions"
	"github.com/entrhq/postpilot/pkg/dom"
	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/media"
	"github.com/entrhq/postpilot/pkg/post"
	"github.com/entrhq/postpilot/pkg/protocol"
	"github.com/entrhq/postpilot/pkg/workflow"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("pageagent")
	if err != nil {
		debugLog.Warnf("Failed to initialize page agent logger, using stderr fallback: %v", err)
	}
}

// ErrBusy is returned when a post is requested while another one runs.
var ErrBusy = errors.New("a post is already in progress on this page")

// createProbe is the selector inspectDOM reports on.
const createProbe = `[aria-label="New post"], [aria-label="Create"]`

// Agent serves one page.
type Agent struct {
	resolver *dom.Resolver
	actions  *actions.Actions
	timings  workflow.Timings
	executor *workflow.Executor
	running  atomic.Bool
}

// Option configures an Agent.
type Option func(*config)

type config struct {
	timings  workflow.Timings
	loader   *media.Loader
	observer workflow.Observer
}

// WithTimings overrides the workflow timings.
func WithTimings(t workflow.Timings) Option {
	return func(c *config) { c.timings = t }
}

// WithLoader sets the image loader.
func WithLoader(l *media.Loader) Option {
	return func(c *config) { c.loader = l }
}

// WithObserver reports step and workflow outcomes to o.
func WithObserver(o workflow.Observer) Option {
	return func(c *config) { c.observer = o }
}

// New creates an agent for doc that reports status events to emit.
func New(doc dom.Document, emit workflow.Emitter, opts ...Option) *Agent {
	cfg := config{timings: workflow.DefaultTimings()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loader == nil {
		cfg.loader = media.NewLoader()
	}

	var execOpts []workflow.Option
	if cfg.observer != nil {
		execOpts = append(execOpts, workflow.WithObserver(cfg.observer))
	}

	return &Agent{
		resolver: dom.NewResolver(doc),
		actions:  actions.New(cfg.loader, cfg.timings.Actions),
		timings:  cfg.timings,
		executor: workflow.NewExecutor(emit, execOpts...),
	}
}

// Handle answers one request.
func (a *Agent) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	if err := req.Validate(); err != nil {
		debugLog.Warnf("rejected %q request: %v", req.Action, err)
		return protocol.ErrorResponse(err)
	}

	switch req.Action {
	case protocol.ActionStartPostCreation:
		payload, _ := req.Payload()
		if _, err := a.RunPost(ctx, req.PostID, payload); err != nil {
			return protocol.ErrorResponse(err)
		}
		return protocol.Response{Success: true}

	case protocol.ActionPing:
		url, err := a.resolver.Document().URL(ctx)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		return protocol.Response{Success: true, Alive: true, URL: url}

	case protocol.ActionInspectDOM:
		return a.inspect(ctx)

	default:
		return protocol.ErrorResponse(fmt.Errorf("action %q is not handled by the page", req.Action))
	}
}

// ServeMessage decodes a JSON request, handles it and encodes the response.
func (a *Agent) ServeMessage(ctx context.Context, data []byte) ([]byte, error) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		return protocol.Encode(protocol.ErrorResponse(err))
	}
	return protocol.Encode(a.Handle(ctx, req))
}

// RunPost runs the post workflow for payload. Only one post runs at a time.
func (a *Agent) RunPost(ctx context.Context, operationID string, payload post.Payload) (post.StatusEvent, error) {
	if !a.running.CompareAndSwap(false, true) {
		return post.NewErrorEvent(operationID, ErrBusy), ErrBusy
	}
	defer a.running.Store(false)

	env := workflow.Env{Resolver: a.resolver, Actions: a.actions, Timings: a.timings}
	return a.executor.Run(ctx, operationID, workflow.PostSteps(env, payload))
}

func (a *Agent) inspect(ctx context.Context) protocol.Response {
	doc := a.resolver.Document()
	url, err := doc.URL(ctx)
	if err != nil {
		return protocol.ErrorResponse(err)
	}

	create, err := a.resolver.Find(ctx, dom.CSS(createProbe), nil)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	modal, err := a.resolver.Find(ctx, dom.CSS(`[role="dialog"]`), nil)
	if err != nil {
		return protocol.ErrorResponse(err)
	}

	var classes string
	if body, err := a.resolver.Find(ctx, dom.CSS("body"), nil); err == nil && body != nil {
		classes, _, _ = body.Attribute(ctx, "class")
	}

	return protocol.Response{
		Success:         true,
		URL:             url,
		HasCreateButton: create != nil,
		HasModal:        modal != nil,
		BodyClasses:     classes,
	}
}
