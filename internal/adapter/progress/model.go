// Package progress renders a live terminal view of a workflow run and the
// final run summary.
package progress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Travbz/doc-smith/internal/domain"
)

// EventMsg carries a bus event into the program.
type EventMsg struct{ Event domain.Event }

// DoneMsg ends the program.
type DoneMsg struct{}

type stepState int

const (
	stepPending stepState = iota
	stepActive
	stepDone
	stepFailed
)

type stepLine struct {
	name  string
	state stepState
}

// Model is the bubbletea model for one run.
type Model struct {
	spinner    spinner.Model
	workflowID string
	title      string
	steps      []stepLine
	status     domain.WorkflowStatus
	errMsg     string
	prURL      string
	started    time.Time
	elapsed    time.Duration
	onCancel   func()
	cancelled  bool
}

// NewModel creates a model listing steps up front. onCancel is invoked on
// ctrl+c and may be nil.
func NewModel(title string, steps []string, onCancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorInfo)

	lines := make([]stepLine, len(steps))
	for i, name := range steps {
		lines[i] = stepLine{name: name}
	}
	return Model{
		spinner:  s,
		title:    title,
		steps:    lines,
		status:   domain.WorkflowPending,
		started:  time.Now(),
		onCancel: onCancel,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles spinner ticks, bus events and ctrl+c.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && !m.cancelled {
			m.cancelled = true
			if m.onCancel != nil {
				m.onCancel()
			}
		}
		return m, nil

	case EventMsg:
		m = m.apply(msg.Event)
		if m.status.Terminal() {
			m.elapsed = time.Since(m.started)
			return m, tea.Quit
		}
		return m, nil

	case DoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

// apply folds one workflow event into the model. Events for other runs are
// ignored once the first run is known.
func (m Model) apply(ev domain.Event) Model {
	var p domain.WorkflowEventPayload
	if len(ev.Payload) == 0 || json.Unmarshal(ev.Payload, &p) != nil {
		return m
	}
	if m.workflowID != "" && p.WorkflowID != m.workflowID {
		return m
	}

	switch ev.Type {
	case domain.EventWorkflowStarted:
		m.workflowID = p.WorkflowID
		m.status = domain.WorkflowRunning
	case domain.EventWorkflowStep:
		m.workflowID = p.WorkflowID
		m.status = domain.WorkflowRunning
		m.steps = m.activate(p.Step)
	case domain.EventWorkflowCompleted:
		m.status = domain.WorkflowCompleted
		m.prURL = p.PRURL
		m.steps = m.finish(stepDone)
	case domain.EventWorkflowFailed:
		m.status = domain.WorkflowFailed
		m.errMsg = p.Error
		m.steps = m.finish(stepFailed)
	case domain.EventWorkflowCancelled:
		m.status = domain.WorkflowCancelled
		m.steps = m.finish(stepPending)
	}
	return m
}

// activate marks name active and every earlier step done. Unknown steps are
// appended.
func (m Model) activate(name string) []stepLine {
	steps := append([]stepLine(nil), m.steps...)
	idx := -1
	for i, s := range steps {
		if s.name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		steps = append(steps, stepLine{name: name})
		idx = len(steps) - 1
	}
	for i := range steps {
		switch {
		case i < idx:
			steps[i].state = stepDone
		case i == idx:
			steps[i].state = stepActive
		}
	}
	return steps
}

// finish resolves the active step to final; completed runs mark all steps done.
func (m Model) finish(final stepState) []stepLine {
	steps := append([]stepLine(nil), m.steps...)
	for i := range steps {
		if final == stepDone {
			steps[i].state = stepDone
			continue
		}
		if steps[i].state == stepActive {
			steps[i].state = final
		}
	}
	return steps
}

// View renders the step list.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(m.title))
	if m.workflowID != "" {
		b.WriteString(" " + styleLabel.Render(m.workflowID))
	}
	b.WriteString("\n")

	for _, s := range m.steps {
		var mark, name string
		switch s.state {
		case stepDone:
			mark, name = styleDone.Render(symbols.success), s.name
		case stepActive:
			mark, name = m.spinner.View(), styleActive.Render(s.name)
		case stepFailed:
			mark, name = styleError.Render(symbols.failure), styleError.Render(s.name)
		default:
			mark, name = stylePending.Render(symbols.pending), stylePending.Render(s.name)
		}
		fmt.Fprintf(&b, "  %s %s\n", mark, name)
	}

	switch m.status {
	case domain.WorkflowCompleted:
		fmt.Fprintf(&b, "%s completed in %s\n", styleDone.Render(symbols.success), m.elapsed.Round(time.Millisecond))
	case domain.WorkflowFailed:
		fmt.Fprintf(&b, "%s %s\n", styleError.Render(symbols.failure), m.errMsg)
	case domain.WorkflowCancelled:
		fmt.Fprintf(&b, "%s cancelled\n", styleWarning.Render(symbols.warning))
	default:
		if m.cancelled {
			b.WriteString(styleWarning.Render("cancelling...") + "\n")
		}
	}
	return b.String()
}

// Status returns the last workflow status seen.
func (m Model) Status() domain.WorkflowStatus { return m.status }

// PRURL returns the pull request URL from the completion event, if any.
func (m Model) PRURL() string { return m.prURL }
