package status

import (
	"sync"
	"sync/atomic"

	"github.com/entrhq/postpilot/pkg/post"
)

// DefaultListenerBuffer is the channel capacity used by Listen when the
// caller passes a non-positive size.
const DefaultListenerBuffer = 32

// Bus delivers status events to at most one listener. Publishing never
// blocks: events are dropped when nobody listens or the listener lags.
type Bus struct {
	mu       sync.Mutex
	listener chan post.StatusEvent
	onDrop   func(post.StatusEvent)
	dropped  atomic.Uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithDropHook calls fn for every dropped event.
func WithDropHook(fn func(post.StatusEvent)) BusOption {
	return func(b *Bus) { b.onDrop = fn }
}

// NewBus creates a bus with no listener.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Listen registers a new listener, replacing and closing the previous one.
// The returned cancel function unregisters it.
func (b *Bus) Listen(buffer int) (<-chan post.StatusEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	ch := make(chan post.StatusEvent, buffer)

	b.mu.Lock()
	if b.listener != nil {
		close(b.listener)
	}
	b.listener = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.listener == ch {
				close(ch)
				b.listener = nil
			}
		})
	}
	return ch, cancel
}

// Publish hands ev to the current listener and reports whether it was delivered.
func (b *Bus) Publish(ev post.StatusEvent) bool {
	b.mu.Lock()
	delivered := false
	if b.listener != nil {
		select {
		case b.listener <- ev:
			delivered = true
		default:
		}
	}
	b.mu.Unlock()

	if !delivered {
		b.dropped.Add(1)
		if b.onDrop != nil {
			b.onDrop(ev)
		}
	}
	return delivered
}

// Dropped returns how many events were not delivered.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
