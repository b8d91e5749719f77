package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/postpilot/pkg/actions"
	"github.com/entrhq/postpilot/pkg/dom"
	"github.com/entrhq/postpilot/pkg/post"
)

const (
	dialogSelector      = `[role="dialog"]`
	editableSelector    = `textarea, [contenteditable], [role="textbox"]`
	interactiveSelector = `a, button, [role="button"]`
	landmarkSelector    = `nav, aside`
	fileInputSelector   = `input[type="file"]`
	fileInputAccept     = "image/*,video/*"
)

var (
	createLocators = []dom.Locator{
		dom.CSS(`[aria-label="New post"]`),
		dom.CSS(`[aria-label="Create"]`),
		dom.CSS(`a[href="#"] svg[aria-label="New post"]`),
		dom.CSS(`svg[aria-label="New post"]`),
	}

	// Searched inside each navigation landmark when no CSS variant matches.
	createTextLocator = dom.TextMatch(`a, button, [role="button"], span`, "Create")

	revealLocators = []dom.Locator{
		dom.TextMatch("button", "Select"),
		dom.TextMatch("button", "computer"),
	}

	nextLocator = dom.TextMatch("button", "Next")

	captionLocators = []dom.Locator{
		dom.CSS(`textarea[aria-label*="caption"]`),
		dom.CSS(`textarea[placeholder*="caption"]`),
		dom.CSS(`div[aria-label*="caption"]`),
		dom.CSS(`[contenteditable="true"]`),
		dom.CSS(`[role="textbox"]`),
	}

	shareLocators = []dom.Locator{
		dom.TextMatch("button", "Share"),
		dom.CSS(`button[type="submit"]`),
	}

	successTexts = []string{"Your post has been shared", "shared"}
	failureTexts = []string{"error", "failed"}

	// Tags that are never the intended click target themselves.
	passiveTags = map[string]bool{
		"svg": true, "path": true, "span": true, "img": true, "i": true, "div": true,
	}
)

// Env is what the post steps operate on.
type Env struct {
	Resolver *dom.Resolver
	Actions  *actions.Actions
	Timings  Timings
}

type postRun struct {
	Env
	payload post.Payload
}

// PostSteps returns the post wizard for payload, in execution order.
func PostSteps(env Env, payload post.Payload) []Step {
	r := &postRun{Env: env, payload: payload}
	return []Step{
		{Status: post.StatusClickingCreate, Run: r.clickCreate},
		{Status: post.StatusWaitingForModal, Run: r.waitForModal},
		{Status: post.StatusUploadingImage, Run: r.uploadImage},
		{Status: post.StatusCropStep, Run: r.cropStep},
		{Status: post.StatusFilterStep, Run: r.filterStep},
		{Status: post.StatusEnteringCaption, Run: r.enterCaption},
		{Status: post.StatusSharing, Run: r.share},
		{Status: post.StatusWaitingForCompletion, Run: r.waitForCompletion},
	}
}

func (r *postRun) doc() dom.Document {
	return r.Resolver.Document()
}

func (r *postRun) clickCreate(ctx context.Context) error {
	el, err := r.Resolver.WaitFor(ctx, nil, r.Timings.CreateTimeout, r.findCreate)
	if err != nil {
		return err
	}
	if el == nil {
		return &ControlNotFoundError{
			Control:  "create button",
			Locators: append(append([]dom.Locator(nil), createLocators...), createTextLocator),
		}
	}

	target, err := clickTarget(ctx, el)
	if err != nil {
		return err
	}
	return r.Actions.Click(ctx, target)
}

func (r *postRun) findCreate(ctx context.Context) (dom.Element, error) {
	el, err := r.Resolver.FindFirst(ctx, createLocators, nil)
	if err != nil || el != nil {
		return el, err
	}

	landmarks, err := r.doc().QueryAll(ctx, nil, landmarkSelector)
	if err != nil {
		debugLog.Debugf("landmark lookup failed: %v", err)
		return nil, nil
	}
	for _, lm := range landmarks {
		el, err := r.Resolver.Find(ctx, createTextLocator, lm)
		if err != nil || el != nil {
			return el, err
		}
	}
	return nil, nil
}

// clickTarget substitutes the nearest interactive ancestor for icons and labels.
func clickTarget(ctx context.Context, el dom.Element) (dom.Element, error) {
	tag, err := el.TagName(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect create control: %w", err)
	}
	if !passiveTags[tag] {
		return el, nil
	}

	parent, err := el.Closest(ctx, interactiveSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect create control: %w", err)
	}
	if parent == nil {
		return el, nil
	}
	return parent, nil
}

func (r *postRun) waitForModal(ctx context.Context) error {
	if _, err := r.Resolver.Resolve(ctx, dom.CSS(dialogSelector), r.Timings.ModalTimeout, nil); err != nil {
		return fmt.Errorf("create dialog did not open: %w", err)
	}
	return actions.Sleep(ctx, r.Timings.ModalGrace)
}

func (r *postRun) uploadImage(ctx context.Context) error {
	input, err := r.findFileInput(ctx)
	if err != nil {
		return err
	}
	if err := r.Actions.AttachFile(ctx, input, r.payload.Image); err != nil {
		return err
	}
	return actions.Sleep(ctx, r.Timings.AttachSettle)
}

func (r *postRun) findFileInput(ctx context.Context) (dom.Element, error) {
	input, err := r.Resolver.Find(ctx, dom.CSS(fileInputSelector), nil)
	if err != nil || input != nil {
		return input, err
	}

	reveal, err := r.Resolver.FindFirst(ctx, revealLocators, nil)
	if err != nil {
		return nil, err
	}
	if reveal != nil {
		debugLog.Debugf("no file input yet, clicking select control")
		if err := r.Actions.Click(ctx, reveal); err != nil {
			return nil, err
		}
		if err := actions.Sleep(ctx, r.Timings.RevealDelay); err != nil {
			return nil, err
		}
		input, err = r.Resolver.Find(ctx, dom.CSS(fileInputSelector), nil)
		if err != nil || input != nil {
			return input, err
		}
	}

	debugLog.Infof("no file input on the page, creating one")
	input, err = r.doc().CreateFileInput(ctx, fileInputAccept)
	if err != nil {
		return nil, fmt.Errorf("failed to create file input: %w", err)
	}
	return input, nil
}

func (r *postRun) cropStep(ctx context.Context) error {
	if err := actions.Sleep(ctx, r.Timings.CropDelay); err != nil {
		return err
	}
	return r.clickNext(ctx)
}

func (r *postRun) filterStep(ctx context.Context) error {
	if err := actions.Sleep(ctx, r.Timings.FilterDelay); err != nil {
		return err
	}
	return r.clickNext(ctx)
}

func (r *postRun) clickNext(ctx context.Context) error {
	if err := actions.Sleep(ctx, r.Timings.NextPreDelay); err != nil {
		return err
	}

	dialog, err := r.currentDialog(ctx)
	if err != nil {
		return err
	}

	next, err := r.Resolver.Find(ctx, nextLocator, dialog)
	if err != nil {
		return err
	}
	if next == nil && dialog != nil {
		next, err = lastButton(ctx, r.doc(), dialog)
		if err != nil {
			return err
		}
	}
	if next == nil {
		return &ControlNotFoundError{Control: "Next button", Locators: []dom.Locator{nextLocator}}
	}

	if err := r.Actions.Click(ctx, next); err != nil {
		return err
	}
	return actions.Sleep(ctx, r.Timings.NextPostDelay)
}

func lastButton(ctx context.Context, doc dom.Document, dialog dom.Element) (dom.Element, error) {
	buttons, err := doc.QueryAll(ctx, dialog, "button")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		debugLog.Debugf("dialog button lookup failed: %v", err)
		return nil, nil
	}
	if len(buttons) == 0 {
		return nil, nil
	}
	return buttons[len(buttons)-1], nil
}

func (r *postRun) enterCaption(ctx context.Context) error {
	if r.payload.Caption == "" {
		debugLog.Debugf("no caption, skipping")
		return nil
	}

	field, err := r.Resolver.ResolveFirst(ctx, captionLocators, r.Timings.CaptionTimeout, nil)
	if err != nil {
		if errors.Is(err, dom.ErrNotFound) {
			return &ControlNotFoundError{Control: "caption input", Locators: captionLocators}
		}
		return err
	}
	return r.Actions.SetText(ctx, field, r.payload.Caption)
}

func (r *postRun) share(ctx context.Context) error {
	dialog, err := r.currentDialog(ctx)
	if err != nil {
		return err
	}

	locs := shareLocators
	if dialog == nil {
		locs = []dom.Locator{shareLocators[0], dom.CSS(dialogSelector + ` button[type="submit"]`)}
	}

	btn, err := r.Resolver.FindFirst(ctx, locs, dialog)
	if err != nil {
		return err
	}
	if btn == nil {
		return &ControlNotFoundError{Control: "Share button", Locators: locs}
	}
	return r.Actions.Click(ctx, btn)
}

func (r *postRun) waitForCompletion(ctx context.Context) error {
	deadline := time.NewTimer(r.Timings.CompletionTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(r.Timings.CompletionPoll)
	defer poll.Stop()

	for {
		done, err := r.checkCompletion(ctx)
		if done || err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrCompletionTimeout
		case <-poll.C:
		}
	}
}

// checkCompletion looks for a success or failure message inside any open
// dialog. Success wins when both are present. Text typed into the dialog's
// fields, such as the caption, is not a message.
func (r *postRun) checkCompletion(ctx context.Context) (bool, error) {
	dialogs, err := r.doc().QueryAll(ctx, nil, dialogSelector)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		debugLog.Debugf("dialog lookup failed: %v", err)
		return false, nil
	}

	var texts []string
	for _, d := range dialogs {
		text, err := r.messageText(ctx, d)
		if err != nil {
			continue
		}
		texts = append(texts, strings.ToLower(text))
	}

	if containsAny(texts, successTexts) {
		return true, nil
	}
	if containsAny(texts, failureTexts) {
		return false, ErrRemoteRejected
	}
	return false, nil
}

// messageText returns the text of dialog without the content of its
// editable fields.
func (r *postRun) messageText(ctx context.Context, dialog dom.Element) (string, error) {
	text, err := dialog.TextContent(ctx)
	if err != nil {
		return "", err
	}

	fields, err := r.doc().QueryAll(ctx, dialog, editableSelector)
	if err != nil {
		return "", err
	}
	var typed []string
	for _, f := range fields {
		if t, err := f.TextContent(ctx); err == nil && t != "" {
			typed = append(typed, t)
		}
	}
	// Outer fields first, so a nested field's text is already gone.
	sort.SliceStable(typed, func(i, j int) bool { return len(typed[i]) > len(typed[j]) })
	for _, t := range typed {
		text = strings.Replace(text, t, " ", 1)
	}
	return text, nil
}

func containsAny(texts, needles []string) bool {
	for _, n := range needles {
		n = strings.ToLower(n)
		for _, t := range texts {
			if strings.Contains(t, n) {
				return true
			}
		}
	}
	return false
}

func (r *postRun) currentDialog(ctx context.Context) (dom.Element, error) {
	return r.Resolver.Find(ctx, dom.CSS(dialogSelector), nil)
}
