package workflow

import (
	"fmt"
	"time"

	"github.com/entrhq/postpilot/pkg/actions"
)

// Timings holds every fixed delay and timeout of the post workflow.
type Timings struct {
	Actions actions.Delays `yaml:"actions" json:"actions"`

	// CreateTimeout bounds the search for the create control. Zero means
	// a single immediate lookup.
	CreateTimeout time.Duration `yaml:"create_timeout" json:"create_timeout"`

	ModalTimeout time.Duration `yaml:"modal_timeout" json:"modal_timeout"`
	ModalGrace   time.Duration `yaml:"modal_grace" json:"modal_grace"`

	RevealDelay  time.Duration `yaml:"reveal_delay" json:"reveal_delay"`
	AttachSettle time.Duration `yaml:"attach_settle" json:"attach_settle"`

	CropDelay     time.Duration `yaml:"crop_delay" json:"crop_delay"`
	FilterDelay   time.Duration `yaml:"filter_delay" json:"filter_delay"`
	NextPreDelay  time.Duration `yaml:"next_pre_delay" json:"next_pre_delay"`
	NextPostDelay time.Duration `yaml:"next_post_delay" json:"next_post_delay"`

	CaptionTimeout time.Duration `yaml:"caption_timeout" json:"caption_timeout"`

	CompletionPoll    time.Duration `yaml:"completion_poll" json:"completion_poll"`
	CompletionTimeout time.Duration `yaml:"completion_timeout" json:"completion_timeout"`
}

// DefaultTimings returns the values tuned against the live site.
func DefaultTimings() Timings {
	return Timings{
		Actions:           actions.DefaultDelays(),
		ModalTimeout:      5 * time.Second,
		ModalGrace:        500 * time.Millisecond,
		RevealDelay:       500 * time.Millisecond,
		AttachSettle:      1000 * time.Millisecond,
		CropDelay:         1000 * time.Millisecond,
		FilterDelay:       500 * time.Millisecond,
		NextPreDelay:      500 * time.Millisecond,
		NextPostDelay:     500 * time.Millisecond,
		CaptionTimeout:    5 * time.Second,
		CompletionPoll:    500 * time.Millisecond,
		CompletionTimeout: 30 * time.Second,
	}
}

// Validate rejects timings the workflow cannot run with.
func (t Timings) Validate() error {
	if t.ModalTimeout <= 0 {
		return fmt.Errorf("modal_timeout must be positive")
	}
	if t.CaptionTimeout <= 0 {
		return fmt.Errorf("caption_timeout must be positive")
	}
	if t.CompletionPoll <= 0 {
		return fmt.Errorf("completion_poll must be positive")
	}
	if t.CompletionTimeout < t.CompletionPoll {
		return fmt.Errorf("completion_timeout must be at least completion_poll")
	}
	return nil
}
