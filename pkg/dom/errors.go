package dom

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("element not found")

// NotFoundError reports that no locator matched before the timeout.
type NotFoundError struct {
	Locators []Locator
	Timeout  time.Duration
}

func (e *NotFoundError) Error() string {
	parts := make([]string, len(e.Locators))
	for i, l := range e.Locators {
		parts[i] = l.String()
	}
	return fmt.Sprintf("timeout waiting for element: %s (after %s)", strings.Join(parts, " | "), e.Timeout)
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
