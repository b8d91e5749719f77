package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/postpilot/pkg/post"
)

type recorder struct {
	events []post.StatusEvent
}

func (r *recorder) emit(ev post.StatusEvent) {
	r.events = append(r.events, ev)
}

func (r *recorder) statuses() []post.Status {
	out := make([]post.Status, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Status
	}
	return out
}

type observed struct {
	steps    []post.Status
	failed   []post.Status
	terminal []post.StatusEvent
}

func (o *observed) StepFinished(status post.Status, elapsed time.Duration, err error) {
	o.steps = append(o.steps, status)
	if err != nil {
		o.failed = append(o.failed, status)
	}
}

func (o *observed) WorkflowFinished(ev post.StatusEvent, elapsed time.Duration) {
	o.terminal = append(o.terminal, ev)
}

func okStep(status post.Status, ran *[]post.Status) Step {
	return Step{Status: status, Run: func(ctx context.Context) error {
		*ran = append(*ran, status)
		return nil
	}}
}

func TestExecutor_RunSuccess(t *testing.T) {
	rec := &recorder{}
	obs := &observed{}
	var ran []post.Status

	ex := NewExecutor(rec.emit, WithObserver(obs))
	ev, err := ex.Run(context.Background(), "post_1", []Step{
		okStep(post.StatusClickingCreate, &ran),
		okStep(post.StatusWaitingForModal, &ran),
	})
	require.NoError(t, err)

	assert.Equal(t, post.NewCompletedEvent("post_1"), ev)
	assert.Equal(t, []post.Status{
		post.StatusStarting, post.StatusClickingCreate, post.StatusWaitingForModal, post.StatusCompleted,
	}, rec.statuses())
	assert.Equal(t, []post.Status{post.StatusClickingCreate, post.StatusWaitingForModal}, ran)
	assert.Equal(t, ran, obs.steps)
	assert.Empty(t, obs.failed)
	require.Len(t, obs.terminal, 1)
	assert.True(t, obs.terminal[0].Success)
}

func TestExecutor_FailureShortCircuits(t *testing.T) {
	rec := &recorder{}
	obs := &observed{}
	var ran []post.Status
	boom := errors.New("boom")

	ex := NewExecutor(rec.emit, WithObserver(obs))
	ev, err := ex.Run(context.Background(), "post_2", []Step{
		okStep(post.StatusClickingCreate, &ran),
		{Status: post.StatusUploadingImage, Run: func(ctx context.Context) error { return boom }},
		okStep(post.StatusCropStep, &ran),
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, post.StatusError, ev.Status)
	assert.Equal(t, "boom", ev.Error)
	assert.False(t, ev.Success)

	assert.Equal(t, []post.Status{
		post.StatusStarting, post.StatusClickingCreate, post.StatusUploadingImage, post.StatusError,
	}, rec.statuses())
	assert.Equal(t, []post.Status{post.StatusClickingCreate}, ran)
	assert.Equal(t, []post.Status{post.StatusUploadingImage}, obs.failed)
}

func TestExecutor_NilEmitter(t *testing.T) {
	ev, err := NewExecutor(nil).Run(context.Background(), "post_3", nil)
	require.NoError(t, err)
	assert.Equal(t, post.StatusCompleted, ev.Status)
}

func TestExecutor_Clock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var elapsed []time.Duration
	obs := &durationObserver{step: &elapsed}
	_, err := NewExecutor(nil, WithClock(clock), WithObserver(obs)).Run(context.Background(), "post_4", []Step{
		{Status: post.StatusSharing, Run: func(ctx context.Context) error { return nil }},
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second}, elapsed)
}

type durationObserver struct {
	step *[]time.Duration
}

func (d *durationObserver) StepFinished(_ post.Status, elapsed time.Duration, _ error) {
	*d.step = append(*d.step, elapsed)
}

func (d *durationObserver) WorkflowFinished(post.StatusEvent, time.Duration) {}

func TestTimings_Validate(t *testing.T) {
	assert.NoError(t, DefaultTimings().Validate())

	tm := DefaultTimings()
	tm.CompletionTimeout = 0
	assert.Error(t, tm.Validate())

	tm = DefaultTimings()
	tm.ModalTimeout = 0
	assert.Error(t, tm.Validate())
}

func TestDefaultTimings(t *testing.T) {
	tm := DefaultTimings()
	assert.Equal(t, 5*time.Second, tm.ModalTimeout)
	assert.Equal(t, 500*time.Millisecond, tm.ModalGrace)
	assert.Equal(t, time.Second, tm.AttachSettle)
	assert.Equal(t, 500*time.Millisecond, tm.CompletionPoll)
	assert.Equal(t, 30*time.Second, tm.CompletionTimeout)
	assert.Equal(t, 100*time.Millisecond, tm.Actions.ScrollSettle)
	assert.Equal(t, 300*time.Millisecond, tm.Actions.ClickSettle)
}
