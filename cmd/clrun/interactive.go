package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/compute-runtime/compute"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	opts     options
	send     func(tea.Msg)
	pipeline *pipeline
	release  func() error
	steps    []step
	out      []int32
	finished int
	run      int
	table    table.Model
	progress progress.Model
	result   string
	err      error
}

// startedMsg carries the enqueued pipeline of one run.
type startedMsg struct {
	err     error
	p       *pipeline
	release func() error
	steps   []step
	out     []int32
	run     int
}

// eventMsg reports a terminal transition from a completion handler.
type eventMsg struct {
	run   int
	index int
}

func newInteractiveModel(opts options) *interactiveModel {
	columns := []table.Column{
		{Title: "#", Width: 3},
		{Title: "Command", Width: 14},
		{Title: "Status", Width: 44},
		{Title: "Start", Width: 12},
		{Title: "Duration", Width: 12},
	}
	t := table.New(table.WithColumns(columns), table.WithHeight(8))
	return &interactiveModel{
		opts:     opts,
		table:    t,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.start(1)
}

func (m *interactiveModel) start(run int) tea.Cmd {
	opts := m.opts
	send := m.send
	return func() tea.Msg {
		p, err := newPipeline(opts)
		if err != nil {
			return startedMsg{err: err, run: run}
		}
		// handlers run on the driver goroutine, which Finish waits on
		steps, out, release, err := p.run(func(i int, _ *compute.Event) {
			go send(eventMsg{run: run, index: i})
		})
		if err != nil {
			p.Close()
			return startedMsg{err: err, run: run}
		}
		return startedMsg{p: p, release: release, steps: steps, out: out, run: run}
	}
}

func (m *interactiveModel) stop() {
	if m.pipeline == nil {
		return
	}
	m.pipeline.queue.Finish()
	if m.release != nil {
		m.release()
	}
	m.pipeline.Close()
	m.pipeline = nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.stop()
			return m, tea.Quit
		case "r":
			m.stop()
			m.run++
			m.steps, m.out, m.finished = nil, nil, 0
			m.result, m.err = "", nil
			m.table.SetRows(nil)
			return m, m.start(m.run + 1)
		}

	case startedMsg:
		if msg.run != m.run+1 {
			if msg.p != nil {
				msg.p.queue.Finish()
				msg.release()
				msg.p.Close()
			}
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.pipeline, m.release = msg.p, msg.release
		m.steps, m.out = msg.steps, msg.out
		m.refresh()

	case eventMsg:
		if msg.run != m.run+1 || m.pipeline == nil {
			return m, nil
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh rebuilds the table from the current event statuses.
func (m *interactiveModel) refresh() {
	origin := firstQueued(m.steps)
	rows := make([]table.Row, len(m.steps))
	m.finished = 0
	aborted := false
	for i, s := range m.steps {
		r := rowFor(i, s, origin)
		if r.status.IsTerminal() {
			m.finished++
		}
		if r.status.IsAborted() {
			aborted = true
		}
		rows[i] = table.Row{strconv.Itoa(r.index), r.name, r.status.String(), fmtDur(r.started), fmtDur(r.duration)}
	}
	m.table.SetRows(rows)

	if len(m.steps) == 0 || m.finished < len(m.steps) {
		return
	}
	switch {
	case aborted:
		m.err = fmt.Errorf("pipeline aborted")
	default:
		// the read of c is the last step, so out is filled
		if err := verify(m.out); err != nil {
			m.err = err
		} else {
			m.result = fmt.Sprintf("verified %d elements", len(m.out))
		}
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Compute Pipeline"))
	b.WriteString(fmt.Sprintf(" run %d, n=%d", m.run+1, m.opts.n))
	if m.pipeline != nil {
		b.WriteString(fmt.Sprintf(", %s on %s", m.pipeline.queue.Properties(), m.pipeline.dev.Name()))
	}
	b.WriteString("\n\n")

	if len(m.steps) == 0 && m.err == nil {
		b.WriteString("Enqueueing...\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n\n")
		pct := 0.0
		if len(m.steps) > 0 {
			pct = float64(m.finished) / float64(len(m.steps))
		}
		b.WriteString(m.progress.ViewAs(pct))
		b.WriteString("\n\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	case m.result != "":
		b.WriteString(resultStyle.Render(m.result))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("r rerun • q quit"))
	return b.String()
}

func runInteractive(opts options) error {
	m := newInteractiveModel(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.send = p.Send
	_, err := p.Run()
	return err
}
