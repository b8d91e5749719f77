// Package workflow runs the post wizard as a linear sequence of steps,
// reporting a status event before each one.
package workflow

import (
	"context"
	"time"

	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/post"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("workflow")
	if err != nil {
		debugLog.Warnf("Failed to initialize workflow logger, using stderr fallback: %v", err)
	}
}

// Step is one state of the workflow.
type Step struct {
	Status post.Status
	Run    func(ctx context.Context) error
}

// Emitter receives every status event. It must not block.
type Emitter func(post.StatusEvent)

// Observer is told how each step and each run ended.
type Observer interface {
	StepFinished(status post.Status, elapsed time.Duration, err error)
	WorkflowFinished(ev post.StatusEvent, elapsed time.Duration)
}

// Executor runs step sequences.
type Executor struct {
	emit     Emitter
	observer Observer
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor reporting to emit. A nil emit discards events.
func NewExecutor(emit Emitter, opts ...Option) *Executor {
	if emit == nil {
		emit = func(post.StatusEvent) {}
	}
	e := &Executor{emit: emit, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run emits starting, then runs each step after emitting its status. The
// first failing step ends the run with an error event; otherwise the run
// ends with a completed event. The terminal event is returned together
// with the step error, if any.
func (e *Executor) Run(ctx context.Context, operationID string, steps []Step) (post.StatusEvent, error) {
	started := e.now()
	e.emit(post.NewStatusEvent(operationID, post.StatusStarting))
	debugLog.Infof("[%s] workflow started with %d steps", operationID, len(steps))

	for _, step := range steps {
		e.emit(post.NewStatusEvent(operationID, step.Status))

		stepStart := e.now()
		err := step.Run(ctx)
		elapsed := e.now().Sub(stepStart)
		if e.observer != nil {
			e.observer.StepFinished(step.Status, elapsed, err)
		}

		if err != nil {
			debugLog.Errorf("[%s] step %s failed after %s: %v", operationID, step.Status, elapsed, err)
			return e.finish(started, post.NewErrorEvent(operationID, err)), err
		}
		debugLog.Debugf("[%s] step %s done in %s", operationID, step.Status, elapsed)
	}

	debugLog.Infof("[%s] workflow completed", operationID)
	return e.finish(started, post.NewCompletedEvent(operationID)), nil
}

func (e *Executor) finish(started time.Time, ev post.StatusEvent) post.StatusEvent {
	e.emit(ev)
	if e.observer != nil {
		e.observer.WorkflowFinished(ev, e.now().Sub(started))
	}
	return ev
}
