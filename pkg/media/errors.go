package media

import (
	"errors"
	"fmt"
)

// ErrInvalidReference is returned for image references the loader cannot interpret.
var ErrInvalidReference = errors.New("invalid image reference")

// ErrFetchFailed is matched by every FetchError.
var ErrFetchFailed = errors.New("image fetch failed")

// FetchError reports a failed HTTP(S) image download.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch image %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to fetch image %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetchFailed) true.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}
