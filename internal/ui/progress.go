package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"vela/internal/vm"
)

// Event is one progress notification for a running module, derived from the
// interpreter's run-event stream plus the module's path.
type Event struct {
	Path         string
	Kind         vm.RunEventKind
	Instructions uint64
	Stats        vm.Stats
	Err          string
}

type runModel struct {
	title   string
	events  <-chan Event
	spinner spinner.Model
	prog    progress.Model
	items   []moduleItem
	index   map[string]int
	width   int
	done    bool
}

type moduleItem struct {
	path    string
	status  string
	instrs  uint64
	live    int
	collect uint64
}

type eventMsg Event
type doneMsg struct{}

// NewRunModel returns a Bubble Tea model that renders per-module execution
// progress with live heap counters.
func NewRunModel(title string, paths []string, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]moduleItem, 0, len(paths))
	index := make(map[string]int, len(paths))
	for i, path := range paths {
		items = append(items, moduleItem{path: path, status: "queued"})
		index[path] = i
	}
	return &runModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *runModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 10
	counterWidth := 28
	nameWidth := m.width - statusWidth - counterWidth - 6
	if nameWidth < 20 {
		nameWidth = 20
	}

	for _, item := range m.items {
		name := truncate(item.path, nameWidth)
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%10s", item.status))
		counters := ""
		if item.instrs > 0 || item.live > 0 {
			counters = fmt.Sprintf("  instr=%d live=%d gc=%d", item.instrs, item.live, item.collect)
		}
		fmt.Fprintf(&b, "  %s %s%s\n", statusStyled, name, counters)
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

func (m *runModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *runModel) applyEvent(ev Event) tea.Cmd {
	idx, ok := m.index[ev.Path]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	item.instrs = ev.Instructions
	item.live = ev.Stats.Live
	item.collect = ev.Stats.Collections
	switch ev.Kind {
	case vm.RunStarted, vm.RunProgress, vm.RunCollected:
		item.status = "running"
	case vm.RunFinished:
		item.status = "done"
	case vm.RunFailed:
		item.status = "error"
	}

	finished := 0
	for _, it := range m.items {
		if it.status == "done" || it.status == "error" {
			finished++
		}
	}
	return m.prog.SetPercent(float64(finished) / float64(len(m.items)))
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "running":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
