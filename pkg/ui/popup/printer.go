package popup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/entrhq/postpilot/pkg/post"
)

// Print writes one line per event until a terminal event arrives, events
// closes or ctx is done. It returns the last event written.
func Print(ctx context.Context, w io.Writer, events <-chan post.StatusEvent) post.StatusEvent {
	var last post.StatusEvent
	for {
		select {
		case <-ctx.Done():
			return last
		case ev, ok := <-events:
			if !ok {
				return last
			}
			last = ev
			fmt.Fprintln(w, FormatEvent(time.Now(), ev))
			if ev.Status.IsTerminal() {
				return last
			}
		}
	}
}

// FormatEvent renders ev as a plain log line.
func FormatEvent(at time.Time, ev post.StatusEvent) string {
	line := fmt.Sprintf("[%s] %s %s", at.Format("15:04:05"), ev.OperationID, ev.Status.Describe())
	if ev.Error != "" {
		line += " " + ev.Error
	}
	return line
}
