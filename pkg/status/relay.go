package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/post"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("status")
	if err != nil {
		debugLog.Warnf("Failed to initialize status logger, using stderr fallback: %v", err)
	}
}

// storeTimeout bounds store writes made from Emit, which has no context.
const storeTimeout = 2 * time.Second

// Relay sits between the page and the listener: it records every event in
// the store and forwards it to the bus. Once an operation reaches a
// terminal status, later events no longer change the record.
type Relay struct {
	store Store
	bus   *Bus
	now   func() time.Time
}

// NewRelay creates a relay. A nil bus only records.
func NewRelay(store Store, bus *Bus) *Relay {
	return &Relay{store: store, bus: bus, now: time.Now}
}

// Store returns the underlying store.
func (r *Relay) Store() Store {
	return r.store
}

// Begin records a new operation. An ID that is still retained is refused
// with ErrExists so a replay cannot overwrite an earlier outcome.
func (r *Relay) Begin(ctx context.Context, op post.Operation) error {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = r.now()
	}
	if op.Status == "" {
		op.Status = post.StatusPending
	}
	if err := r.store.Create(ctx, op); err != nil {
		return fmt.Errorf("failed to record operation %s: %w", op.ID, err)
	}
	return nil
}

// errSettled marks events that arrive after the operation's terminal status.
var errSettled = errors.New("operation already settled")

// Emit records ev and publishes it. Events for an operation that already
// reached a terminal status are dropped. It never blocks on the listener.
func (r *Relay) Emit(ev post.StatusEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := r.record(ctx, ev)
	switch {
	case errors.Is(err, errSettled):
		return
	case err != nil && !errors.Is(err, ErrNotFound):
		debugLog.Warnf("[%s] failed to record status %s: %v", ev.OperationID, ev.Status, err)
	}
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

// record applies ev to the retained operation without publishing it.
// Unknown operations yield ErrNotFound. Events after a terminal status
// leave the record unchanged.
func (r *Relay) record(ctx context.Context, ev post.StatusEvent) error {
	op, err := r.store.Get(ctx, ev.OperationID)
	if err != nil {
		return err
	}
	if op.Status.IsTerminal() {
		debugLog.Debugf("[%s] ignoring %s after terminal %s", ev.OperationID, ev.Status, op.Status)
		return errSettled
	}

	op.Status = ev.Status
	if ev.Status == post.StatusError {
		op.ErrorMessage = ev.Error
	}
	return r.store.Put(ctx, op)
}

// Fail marks an operation as failed and publishes the error event.
func (r *Relay) Fail(id string, err error) {
	r.Emit(post.NewErrorEvent(id, err))
}

// AssignTab records which page is running the operation.
func (r *Relay) AssignTab(ctx context.Context, id, tabID string) error {
	op, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	op.TabID = tabID
	if !op.Status.IsTerminal() {
		op.Status = post.StatusProcessing
	}
	return r.store.Put(ctx, op)
}

// Lookup returns the retained state of an operation.
func (r *Relay) Lookup(ctx context.Context, id string) (post.Operation, error) {
	return r.store.Get(ctx, id)
}
