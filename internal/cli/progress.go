package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cashkit/internal/builder"
)

var (
	buildSpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8dc351"))
	buildHelpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type buildEventMsg builder.Event

type buildClosedMsg struct{}

// buildModel renders the builder's event stream: a spinner with the
// current status, and a bar once transactions start landing.
type buildModel struct {
	events     <-chan builder.Event
	cancel     func()
	spin       spinner.Model
	bar        progress.Model
	status     builder.Status
	built      int
	expected   int
	err        error
	cancelling bool
	done       bool
}

func newBuildModel(events <-chan builder.Event, cancel func(), expected int) buildModel {
	return buildModel{
		events:   events,
		cancel:   cancel,
		spin:     spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(buildSpinnerStyle)),
		bar:      progress.New(progress.WithGradient("#8dc351", "#3cd7a4"), progress.WithWidth(40)),
		status:   builder.StatusNotStarted,
		expected: expected,
	}
}

func waitBuildEvent(events <-chan builder.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return buildClosedMsg{}
		}
		return buildEventMsg(ev)
	}
}

func (m buildModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitBuildEvent(m.events))
}

func (m buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case buildEventMsg:
		ev := builder.Event(msg)
		switch ev.Type {
		case builder.EventStatusChanged:
			m.status = ev.Status
		case builder.EventProgress:
			m.built = ev.Progress
		case builder.EventFailed:
			m.err = ev.Err
			m.status = builder.StatusFailed
		case builder.EventResultsReady:
			if len(ev.Results) == 0 && !m.status.Terminal() {
				m.status = builder.StatusNoResult
			}
		}
		return m, waitBuildEvent(m.events)

	case buildClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m buildModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s%s\n", m.spin.View(), m.statusLine()))
	if m.expected > 0 && m.status == builder.StatusBuilding && !m.cancelling {
		b.WriteString(fmt.Sprintf("\n  %s %d/%d\n", m.bar.ViewAs(float64(m.built)/float64(m.expected)), m.built, m.expected))
	}
	b.WriteString("\n" + buildHelpStyle.Render("  esc to cancel") + "\n")
	return b.String()
}

func (m buildModel) statusLine() string {
	if m.cancelling && !m.status.Terminal() {
		return "cancelling..."
	}
	return m.status.Display()
}

// runBuild drives producer under a progress display and returns the final
// status as the model observed it, no-result included.
func runBuild(b *builder.Builder, producer builder.TxProducer, expected int) (builder.Status, error) {
	events, err := b.Start(context.Background(), producer)
	if err != nil {
		return b.Status(), err
	}
	final, err := tea.NewProgram(newBuildModel(events, b.RequestCancellation, expected)).Run()
	if err != nil {
		b.Abandon()
		b.Wait()
		return b.Status(), fmt.Errorf("progress display: %w", err)
	}
	b.Wait()

	m, ok := final.(buildModel)
	if !ok {
		return b.Status(), nil
	}
	if m.err != nil {
		return builder.StatusFailed, m.err
	}
	return m.status, nil
}
