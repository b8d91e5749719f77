package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/postpilot/pkg/dom"
)

var (
	// ErrControlNotFound is matched by every ControlNotFoundError.
	ErrControlNotFound = errors.New("control not found")

	// ErrRemoteRejected means the site itself reported that posting failed.
	ErrRemoteRejected = errors.New("the site reported an error while posting")

	// ErrCompletionTimeout means neither success nor failure was observed in time.
	ErrCompletionTimeout = errors.New("timeout waiting for post to complete")
)

// ControlNotFoundError reports that a required control could not be located.
type ControlNotFoundError struct {
	Control  string
	Locators []dom.Locator
}

func (e *ControlNotFoundError) Error() string {
	if len(e.Locators) == 0 {
		return fmt.Sprintf("could not find %s", e.Control)
	}
	parts := make([]string, len(e.Locators))
	for i, l := range e.Locators {
		parts[i] = l.String()
	}
	return fmt.Sprintf("could not find %s (tried %s)", e.Control, strings.Join(parts, ", "))
}

// Is makes errors.Is(err, ErrControlNotFound) true.
func (e *ControlNotFoundError) Is(target error) bool {
	return target == ErrControlNotFound
}
