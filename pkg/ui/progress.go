package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/c2buck/audio-transcriber/pkg/analysis"
)

// Key bindings handled by the progress view.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
)

// maxRecentLines bounds the finished segments shown under the bar.
const maxRecentLines = 8

// EventMsg wraps a progress event read from the controller.
type EventMsg struct {
	Event analysis.ProgressEvent
}

// StreamClosedMsg is sent when the progress channel is closed.
type StreamClosedMsg struct{}

// tickMsg refreshes the elapsed clock.
type tickMsg time.Time

// SegmentLine is one finished segment in the recent list.
type SegmentLine struct {
	SourceID   string
	IsRelevant bool
	Err        string
}

// ProgressModel is the bubbletea model for a running review.
type ProgressModel struct {
	events <-chan analysis.ProgressEvent
	cancel func()

	runID      string
	model      string
	total      int
	completed  int
	relevant   int
	failed     int
	current    string
	pullStatus string
	recent     []SegmentLine
	snapshot   analysis.ProgressSnapshot

	state      analysis.State
	cancelling bool
	done       bool
	startedAt  time.Time
	now        time.Time
	width      int
}

// NewProgressModel creates a view over events. cancel is called once when
// the user presses q or ctrl+c.
func NewProgressModel(events <-chan analysis.ProgressEvent, cancel func(), total int, model string) ProgressModel {
	now := time.Now()
	return ProgressModel{
		events:    events,
		cancel:    cancel,
		total:     total,
		model:     model,
		state:     analysis.StateRunning,
		startedAt: now,
		now:       now,
		width:     80,
	}
}

// Init starts reading events and the clock.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

// waitForEvent reads the next event from the controller.
func waitForEvent(events <-chan analysis.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tick()

	case EventMsg:
		m.handleEvent(msg.Event)
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case StreamClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m ProgressModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.done {
			return m, tea.Quit
		}
		if !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	}
	return m, nil
}

func (m *ProgressModel) handleEvent(ev analysis.ProgressEvent) {
	if ev.RunID != "" {
		m.runID = ev.RunID
	}
	if ev.Total > 0 {
		m.total = ev.Total
	}

	switch ev.Kind {
	case analysis.EventPull:
		if ev.Pull != nil {
			m.pullStatus = formatPull(ev.Pull.Status, ev.Pull.Completed, ev.Pull.Total)
		}

	case analysis.EventSegment:
		m.pullStatus = ""
		m.completed = ev.Completed
		m.current = ev.SourceID
		m.snapshot = ev.Snapshot
		line := SegmentLine{SourceID: ev.SourceID, IsRelevant: ev.IsRelevant}
		if ev.Err != nil {
			line.Err = ev.Err.Error()
			m.failed++
		} else if ev.IsRelevant {
			m.relevant++
		}
		m.recent = append(m.recent, line)
		if len(m.recent) > maxRecentLines {
			m.recent = m.recent[len(m.recent)-maxRecentLines:]
		}

	case analysis.EventDone:
		m.state = ev.State
		m.snapshot = ev.Snapshot
		m.done = true
	}
}

// State returns the terminal state seen, or running.
func (m ProgressModel) State() analysis.State {
	return m.state
}

// Cancelled reports whether the user asked to stop.
func (m ProgressModel) Cancelled() bool {
	return m.cancelling
}

// View renders the progress view.
func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Reviewing transcript"))
	if m.model != "" {
		b.WriteString(StatusStyle.Render("  model " + m.model))
	}
	b.WriteString("\n\n")

	if m.pullStatus != "" {
		b.WriteString(SpinnerStyle.Render("⇣ ") + m.pullStatus + "\n\n")
	}

	b.WriteString(renderBar(m.completed, m.total, m.barWidth()))
	b.WriteString(fmt.Sprintf(" %d/%d\n", m.completed, m.total))

	stats := fmt.Sprintf("relevant %d  failed %d  elapsed %s",
		m.relevant, m.failed, formatClock(m.now.Sub(m.startedAt)))
	if eta := m.snapshot.EstimatedRemainingSeconds; eta != nil && !m.done {
		stats += "  eta " + formatClock(time.Duration(*eta*float64(time.Second)))
	}
	b.WriteString(StatusStyle.Render(stats) + "\n\n")

	for _, line := range m.recent {
		b.WriteString(renderLine(line) + "\n")
	}
	if len(m.recent) > 0 {
		b.WriteString("\n")
	}

	switch {
	case m.done:
		b.WriteString(StateStyle(string(m.state)).Render("Run " + string(m.state)))
		b.WriteString("\n")
	case m.cancelling:
		b.WriteString(WarningStyle.Render("Cancelling after the current recording..."))
		b.WriteString("\n")
	default:
		b.WriteString(FooterKeyStyle.Render("q") + FooterDescStyle.Render(" cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ProgressModel) barWidth() int {
	w := m.width - 20
	if w > 50 {
		w = 50
	}
	if w < 10 {
		w = 10
	}
	return w
}

func renderBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return BarFilledStyle.Render(strings.Repeat("█", filled)) +
		BarEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func renderLine(line SegmentLine) string {
	switch {
	case line.Err != "":
		return ErrorStyle.Render("✗ ") + SourceLabelStyle.Render(line.SourceID) + " " + ErrorTextStyle.Render(line.Err)
	case line.IsRelevant:
		return RelevantStyle.Render("● ") + SourceLabelStyle.Render(line.SourceID) + " " + RelevantStyle.Render("relevant")
	default:
		return NotRelevantStyle.Render("· ") + SourceLabelStyle.Render(line.SourceID) + " " + NotRelevantStyle.Render("not relevant")
	}
}

func formatPull(status string, completed, total int64) string {
	if total <= 0 {
		return status
	}
	return fmt.Sprintf("%s %d%%", status, completed*100/total)
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatEvent renders a single progress event as one plain line, used when
// the live view is off.
func FormatEvent(ev analysis.ProgressEvent) string {
	switch ev.Kind {
	case analysis.EventPull:
		if ev.Pull == nil {
			return ""
		}
		return DimStyle.Render("pulling model: " + formatPull(ev.Pull.Status, ev.Pull.Completed, ev.Pull.Total))
	case analysis.EventSegment:
		prefix := fmt.Sprintf("[%d/%d] ", ev.Completed, ev.Total)
		line := SegmentLine{SourceID: ev.SourceID, IsRelevant: ev.IsRelevant}
		if ev.Err != nil {
			line.Err = ev.Err.Error()
		}
		return TimestampStyle.Render(prefix) + renderLine(line)
	case analysis.EventDone:
		return StateStyle(string(ev.State)).Render("Run " + string(ev.State))
	}
	return ""
}

// RunProgress shows the live view until the run reaches a terminal state.
func RunProgress(events <-chan analysis.ProgressEvent, cancel func(), total int, model string, out io.Writer) (ProgressModel, error) {
	p := tea.NewProgram(NewProgressModel(events, cancel, total, model), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return ProgressModel{}, fmt.Errorf("progress view: %w", err)
	}
	return final.(ProgressModel), nil
}
