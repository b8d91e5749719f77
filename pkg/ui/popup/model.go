// Package popup renders the progress of a post: a bubbletea view with the
// workflow's steps and a status bar, and a line printer for plain output.
package popup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/postpilot/pkg/post"
)

type eventMsg post.StatusEvent

type closedMsg struct{}

// Model is the bubbletea model of the status view.
type Model struct {
	events  <-chan post.StatusEvent
	spinner spinner.Model

	operationID string
	current     post.Status
	reached     map[post.Status]bool
	err         string

	done    bool
	aborted bool
}

// New creates a model consuming events until a terminal one arrives or the
// channel closes.
func New(events <-chan post.StatusEvent) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = activeStyle

	return &Model{
		events:  events,
		spinner: s,
		current: post.StatusPending,
		reached: make(map[post.Status]bool),
	}
}

func waitForEvent(events <-chan post.StatusEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		}
		return m, nil

	case eventMsg:
		m.apply(post.StatusEvent(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case closedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(ev post.StatusEvent) {
	if m.operationID == "" {
		m.operationID = ev.OperationID
	}
	m.current = ev.Status
	m.reached[ev.Status] = true
	if ev.Status == post.StatusError {
		m.err = ev.Error
	}
	m.done = ev.Status.IsTerminal()
}

func (m *Model) View() string {
	var b strings.Builder

	title := "postpilot"
	if m.operationID != "" {
		title += " " + m.operationID
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	for _, s := range post.WorkflowOrder[:len(post.WorkflowOrder)-1] {
		b.WriteString(m.stepLine(s))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(statusBarStyle.Render(m.statusLine()))
	b.WriteString("\n")
	if !m.done {
		b.WriteString(pendingStyle.Render("q to stop watching (the post continues)"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) stepLine(s post.Status) string {
	switch {
	case s == m.current && !m.done:
		return fmt.Sprintf("%s %s", m.spinner.View(), activeStyle.Render(s.Describe()))
	case m.reached[s]:
		if m.current == post.StatusError && m.lastReached() == s {
			return errorStyle.Render("✗ " + s.Describe())
		}
		return doneStyle.Render("✓ " + s.Describe())
	default:
		return pendingStyle.Render("· " + s.Describe())
	}
}

// lastReached is the furthest workflow step seen, the one that failed when
// the run ended in an error.
func (m *Model) lastReached() post.Status {
	var last post.Status
	for _, s := range post.WorkflowOrder {
		if m.reached[s] {
			last = s
		}
	}
	return last
}

func (m *Model) statusLine() string {
	switch m.current {
	case post.StatusCompleted:
		return doneStyle.Render(m.current.Describe())
	case post.StatusError:
		msg := m.current.Describe()
		if m.err != "" {
			msg = "Error: " + m.err
		}
		return errorStyle.Render(msg)
	default:
		return activeStyle.Render(m.current.Describe())
	}
}

// Result returns the last status seen, its error message and whether the
// user stopped watching before a terminal status.
func (m *Model) Result() (post.Status, string, bool) {
	return m.current, m.err, m.aborted
}
