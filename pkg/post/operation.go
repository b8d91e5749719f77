package post

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxCaptionLength is the longest caption the target site accepts.
const MaxCaptionLength = 2200

// Payload is what the caller wants posted.
type Payload struct {
	Image   ImageReference `json:"image"`
	Caption string         `json:"caption,omitempty"`
}

// Validate checks the payload before any browser work starts.
func (p Payload) Validate() error {
	if p.Image.Value == "" {
		return fmt.Errorf("no image provided")
	}
	if n := len([]rune(p.Caption)); n > MaxCaptionLength {
		return fmt.Errorf("caption is %d characters, maximum is %d", n, MaxCaptionLength)
	}
	return nil
}

// Operation is one post attempt as retained by the coordinator.
type Operation struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Payload      Payload   `json:"payload"`
	CreatedAt    time.Time `json:"createdAt"`
	TabID        string    `json:"tabId,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
}

// NewOperationID returns a time-derived identifier. The random suffix keeps
// IDs unique when two posts are requested within the same millisecond.
func NewOperationID(now time.Time) string {
	return fmt.Sprintf("post_%d_%s", now.UnixMilli(), uuid.New().String()[:8])
}
