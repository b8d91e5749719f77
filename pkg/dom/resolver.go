package dom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/postpilot/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("resolver")
	if err != nil {
		debugLog.Warnf("Failed to initialize resolver logger, using stderr fallback: %v", err)
	}
}

// Probe inspects the document once and returns the element it was waiting
// for, or nil when the condition does not hold yet.
type Probe func(ctx context.Context) (Element, error)

// Resolver finds elements in a Document, optionally waiting for them.
type Resolver struct {
	doc Document
}

// NewResolver creates a resolver bound to doc.
func NewResolver(doc Document) *Resolver {
	return &Resolver{doc: doc}
}

// Document returns the document the resolver queries.
func (r *Resolver) Document() Document {
	return r.doc
}

// Find performs one immediate lookup. It returns nil, nil when nothing matches.
func (r *Resolver) Find(ctx context.Context, loc Locator, root Element) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates, err := r.doc.QueryAll(ctx, root, loc.Selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Invalid selectors and detached roots count as "no match".
		debugLog.Debugf("lookup %s failed: %v", loc, err)
		return nil, nil
	}

	if loc.Kind != KindTextMatch {
		if len(candidates) == 0 {
			return nil, nil
		}
		return candidates[0], nil
	}

	needle := strings.ToLower(loc.Text)
	for _, el := range candidates {
		text, err := el.TextContent(ctx)
		if err != nil {
			continue
		}
		if text != "" && strings.Contains(strings.ToLower(text), needle) {
			return el, nil
		}
	}
	return nil, nil
}

// FindFirst tries each locator in order once and returns the first match.
func (r *Resolver) FindFirst(ctx context.Context, locs []Locator, root Element) (Element, error) {
	for _, loc := range locs {
		el, err := r.Find(ctx, loc, root)
		if err != nil {
			return nil, err
		}
		if el != nil {
			return el, nil
		}
	}
	return nil, nil
}

// Resolve waits up to timeout for loc to match under root.
func (r *Resolver) Resolve(ctx context.Context, loc Locator, timeout time.Duration, root Element) (Element, error) {
	return r.ResolveFirst(ctx, []Locator{loc}, timeout, root)
}

// ResolveFirst waits up to timeout for any of locs to match under root.
// Every check evaluates the locators in order, so an earlier locator wins
// when several match at the same time.
func (r *Resolver) ResolveFirst(ctx context.Context, locs []Locator, timeout time.Duration, root Element) (Element, error) {
	el, err := r.WaitFor(ctx, root, timeout, func(ctx context.Context) (Element, error) {
		return r.FindFirst(ctx, locs, root)
	})
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, &NotFoundError{Locators: locs, Timeout: timeout}
	}
	return el, nil
}

// WaitFor runs probe immediately and then after every mutation under root
// until it yields an element or timeout elapses. It returns nil, nil on
// timeout; errors come only from probe, the subscription or ctx.
func (r *Resolver) WaitFor(ctx context.Context, root Element, timeout time.Duration, probe Probe) (Element, error) {
	if el, err := probe(ctx); err != nil || el != nil {
		return el, err
	}
	if timeout <= 0 {
		return nil, nil
	}

	events, stop, err := r.doc.Observe(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to observe document: %w", err)
	}
	defer stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// A mutation may have landed between the first probe and the subscription.
	if el, err := probe(ctx); err != nil || el != nil {
		return el, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			return probe(ctx)

		case _, ok := <-events:
			if !ok {
				// Subscription ended early; only the timer can finish the wait now.
				events = nil
				continue
			}
			if el, err := probe(ctx); err != nil || el != nil {
				return el, err
			}
		}
	}
}
