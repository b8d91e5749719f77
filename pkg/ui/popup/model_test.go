package popup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/postpilot/pkg/post"
)

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func feed(m *Model, events ...post.StatusEvent) tea.Cmd {
	var cmd tea.Cmd
	for _, ev := range events {
		_, cmd = m.Update(eventMsg(ev))
	}
	return cmd
}

func TestModel_ProgressAndCompletion(t *testing.T) {
	m := New(make(chan post.StatusEvent))
	require.NotNil(t, m.Init())

	cmd := feed(m,
		post.NewStatusEvent("post_1", post.StatusStarting),
		post.NewStatusEvent("post_1", post.StatusClickingCreate),
		post.NewStatusEvent("post_1", post.StatusWaitingForModal),
	)
	require.NotNil(t, cmd, "keeps waiting for events")

	view := m.View()
	assert.Contains(t, view, "postpilot post_1")
	assert.Contains(t, view, "✓ Opening create dialog...")
	assert.Contains(t, view, "Waiting for dialog...")
	assert.Contains(t, view, "· Uploading image...")
	assert.Contains(t, view, "q to stop watching")

	var events []post.StatusEvent
	for _, s := range post.WorkflowOrder[3 : len(post.WorkflowOrder)-1] {
		events = append(events, post.NewStatusEvent("post_1", s))
	}
	events = append(events, post.NewCompletedEvent("post_1"))
	assert.True(t, isQuit(t, feed(m, events...)))

	view = m.View()
	assert.Contains(t, view, "✓ Finalizing...")
	assert.Contains(t, view, "Post shared successfully!")
	assert.NotContains(t, view, "q to stop watching")

	status, errMsg, aborted := m.Result()
	assert.Equal(t, post.StatusCompleted, status)
	assert.Empty(t, errMsg)
	assert.False(t, aborted)
}

func TestModel_Error(t *testing.T) {
	m := New(make(chan post.StatusEvent))

	cmd := feed(m,
		post.NewStatusEvent("post_1", post.StatusStarting),
		post.NewStatusEvent("post_1", post.StatusClickingCreate),
		post.NewErrorEvent("post_1", errors.New("could not find create button")),
	)
	assert.True(t, isQuit(t, cmd))

	view := m.View()
	assert.Contains(t, view, "✗ Opening create dialog...")
	assert.Contains(t, view, "Error: could not find create button")

	status, errMsg, _ := m.Result()
	assert.Equal(t, post.StatusError, status)
	assert.Equal(t, "could not find create button", errMsg)
}

func TestModel_QuitKeysAbort(t *testing.T) {
	m := New(make(chan post.StatusEvent))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, isQuit(t, cmd))

	_, _, aborted := m.Result()
	assert.True(t, aborted)
}

func TestModel_ClosedChannelQuits(t *testing.T) {
	events := make(chan post.StatusEvent)
	close(events)
	m := New(events)

	msg := waitForEvent(events)()
	_, cmd := m.Update(msg)
	assert.True(t, isQuit(t, cmd))
}

func TestWaitForEvent(t *testing.T) {
	events := make(chan post.StatusEvent, 1)
	events <- post.NewStatusEvent("post_1", post.StatusSharing)

	msg := waitForEvent(events)()
	assert.Equal(t, eventMsg(post.NewStatusEvent("post_1", post.StatusSharing)), msg)
}

func TestPrint(t *testing.T) {
	events := make(chan post.StatusEvent, 4)
	events <- post.NewStatusEvent("post_1", post.StatusStarting)
	events <- post.NewErrorEvent("post_1", errors.New("timeout waiting for post to complete"))
	events <- post.NewStatusEvent("post_2", post.StatusStarting)

	var buf bytes.Buffer
	last := Print(context.Background(), &buf, events)

	assert.Equal(t, post.StatusError, last.Status)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "post_1 Starting post creation...")
	assert.Contains(t, lines[1], "Error occurred timeout waiting for post to complete")
	assert.Len(t, events, 1, "stops at the terminal event")
}

func TestPrint_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	last := Print(ctx, &bytes.Buffer{}, make(chan post.StatusEvent))
	assert.Empty(t, last.Status)
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC)
	assert.Equal(t, "[14:03:09] post_9 Sharing post...", FormatEvent(at, post.NewStatusEvent("post_9", post.StatusSharing)))
}
