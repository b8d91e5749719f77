// Package actions performs the user-level interactions the post workflow
// needs: clicking, typing and attaching a file.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/postpilot/pkg/dom"
	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/media"
	"github.com/entrhq/postpilot/pkg/post"
)

// ErrNullTarget is returned when an action receives no element.
var ErrNullTarget = errors.New("cannot act on a nil element")

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("actions")
	if err != nil {
		debugLog.Warnf("Failed to initialize actions logger, using stderr fallback: %v", err)
	}
}

// Delays are the fixed pauses that let the page react to an interaction.
type Delays struct {
	ScrollSettle time.Duration `yaml:"scroll_settle" json:"scroll_settle"`
	ClickSettle  time.Duration `yaml:"click_settle" json:"click_settle"`
	TextSettle   time.Duration `yaml:"text_settle" json:"text_settle"`
}

// DefaultDelays returns the delays used against the live site.
func DefaultDelays() Delays {
	return Delays{
		ScrollSettle: 100 * time.Millisecond,
		ClickSettle:  300 * time.Millisecond,
		TextSettle:   300 * time.Millisecond,
	}
}

// Actions binds the primitives to an image loader and a set of delays.
type Actions struct {
	loader *media.Loader
	delays Delays
}

// New creates the action primitives.
func New(loader *media.Loader, delays Delays) *Actions {
	if loader == nil {
		loader = media.NewLoader()
	}
	return &Actions{loader: loader, delays: delays}
}

// Click scrolls el into view and clicks it. When a direct click is
// impossible a synthetic click event is dispatched instead.
func (a *Actions) Click(ctx context.Context, el dom.Element) error {
	if el == nil {
		return ErrNullTarget
	}

	if err := el.ScrollIntoView(ctx); err != nil {
		debugLog.Debugf("scroll into view failed: %v", err)
	}
	if err := Sleep(ctx, a.delays.ScrollSettle); err != nil {
		return err
	}

	if err := el.Click(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		debugLog.Debugf("direct click failed, dispatching event: %v", err)
		if err := el.DispatchClick(ctx); err != nil {
			return fmt.Errorf("failed to click element: %w", err)
		}
	}

	return Sleep(ctx, a.delays.ClickSettle)
}

// SetText enters text into a plain or rich text field.
func (a *Actions) SetText(ctx context.Context, el dom.Element, text string) error {
	if el == nil {
		return ErrNullTarget
	}

	tag, err := el.TagName(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect text field: %w", err)
	}

	switch tag {
	case "textarea", "input":
		err = el.SetValue(ctx, text)
	default:
		err = el.SetTextContent(ctx, text)
	}
	if err != nil {
		return fmt.Errorf("failed to set text on %s: %w", tag, err)
	}

	return Sleep(ctx, a.delays.TextSettle)
}

// AttachFile loads the referenced image and assigns it to the file input el.
func (a *Actions) AttachFile(ctx context.Context, el dom.Element, ref post.ImageReference) error {
	if el == nil {
		return ErrNullTarget
	}

	img, err := a.loader.Load(ctx, ref)
	if err != nil {
		return err
	}

	if err := el.SetFiles(ctx, []dom.File{img.File()}); err != nil {
		return fmt.Errorf("failed to attach %s: %w", ref, err)
	}
	debugLog.Infof("attached %s as %s (%d bytes)", ref, img.MimeType, len(img.Data))
	return nil
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
