// Package tui is an interactive element stepper: walk a beamline element
// by element, watch the envelope evolve, and retune magnets in place.
// Edits re-run the already-traversed prefix so the displayed state always
// matches the current lattice.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/beamsim/internal/analysis"
	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/track"
	"github.com/san-kum/beamsim/internal/viz"
)

const (
	listRows   = 9
	chartWidth = 56
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model drives one lattice. The zero value is not usable; build with New.
type Model struct {
	title  string
	lat    *lattice.Lattice
	runner *track.Runner

	idx      int
	state    *beam.State
	history  []track.Record
	warnings int
	err      error

	cursor  int
	keys    []string
	keyIdx  int
	editing bool
	editBuf string

	auto     bool
	showHelp bool

	width, height int
}

func New(lat *lattice.Lattice, title string) Model {
	m := Model{
		title:  title,
		lat:    lat,
		runner: track.NewRunner(lat),
		width:  100,
		height: 30,
	}
	m.selectElement(0)
	return m
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		if m.auto {
			m.stepOnce()
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		return m.editKey(msg)
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		m.auto = !m.auto
	case "n", "right", "l":
		m.stepOnce()
	case "r":
		m.reset()
	case "up", "k":
		if m.cursor > 0 {
			m.selectElement(m.cursor - 1)
		}
	case "down", "j":
		if m.cursor < m.lat.Len()-1 {
			m.selectElement(m.cursor + 1)
		}
	case "g":
		if m.idx < m.lat.Len() {
			m.selectElement(m.idx)
		}
	case "tab":
		if len(m.keys) > 0 {
			m.keyIdx = (m.keyIdx + 1) % len(m.keys)
		}
	case "enter":
		if len(m.keys) > 0 {
			e, err := m.lat.At(m.cursor)
			if err == nil {
				m.editing = true
				m.editBuf = strconv.FormatFloat(e.Float(m.keys[m.keyIdx]), 'g', -1, 64)
			}
		}
	case "+", "=":
		m.nudgeParam(1.05)
	case "-", "_":
		m.nudgeParam(0.95)
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m Model) editKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		val, err := strconv.ParseFloat(m.editBuf, 64)
		m.editing = false
		m.editBuf = ""
		if err == nil {
			m.applyParam(m.keys[m.keyIdx], val)
		}
	case "esc":
		m.editing = false
		m.editBuf = ""
	case "backspace":
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 && strings.ContainsAny(s, "0123456789.eE+-") {
			m.editBuf += s
		}
	}
	return m, nil
}

func (m *Model) selectElement(i int) {
	m.cursor = i
	m.keyIdx = 0
	m.keys = nil
	e, err := m.lat.At(i)
	if err != nil {
		return
	}
	params := e.Params()
	for _, k := range e.Keys() {
		if _, ok := lattice.AsFloat(params[k]); ok {
			m.keys = append(m.keys, k)
		}
	}
}

func (m *Model) stepOnce() {
	if m.idx >= m.lat.Len() {
		m.auto = false
		return
	}
	res, err := m.runner.Run(context.Background(), track.Options{
		From:    m.idx,
		To:      m.idx + 1,
		Initial: m.state,
		Observe: track.ObserveAll,
	})
	if err != nil {
		m.err = err
		m.auto = false
		return
	}
	m.state = res.Final
	m.history = append(m.history, res.History...)
	m.warnings += len(res.Warnings)
	m.idx++
}

// rerunPrefix replays [0, idx) after a lattice edit so the shown state
// reflects the new parameters.
func (m *Model) rerunPrefix() {
	m.err = nil
	m.warnings = 0
	m.history = nil
	if m.idx == 0 {
		m.state = nil
		return
	}
	res, err := m.runner.Run(context.Background(), track.Options{
		To:      m.idx,
		Observe: track.ObserveAll,
	})
	if err != nil {
		m.err = err
		m.auto = false
	}
	if res != nil {
		m.state = res.Final
		m.history = res.History
		m.warnings = len(res.Warnings)
	}
}

func (m *Model) reset() {
	m.idx = 0
	m.state = nil
	m.history = nil
	m.warnings = 0
	m.err = nil
	m.auto = false
}

func (m *Model) applyParam(key string, val float64) {
	if err := m.lat.ReconfigureAt(m.cursor, map[string]lattice.Value{key: val}); err != nil {
		m.err = err
		return
	}
	m.rerunPrefix()
}

func (m *Model) nudgeParam(factor float64) {
	if len(m.keys) == 0 {
		return
	}
	e, err := m.lat.At(m.cursor)
	if err != nil {
		return
	}
	key := m.keys[m.keyIdx]
	val := e.Float(key) * factor
	if val == 0 {
		if factor > 1 {
			val = 0.01
		} else {
			val = -0.01
		}
	}
	m.applyParam(key, val)
}

func (m Model) View() string {
	var b strings.Builder

	status := viz.Good.Render("●") + " " + viz.Good.Render("stepping")
	if !m.auto {
		status = viz.Warn.Render("○") + " " + viz.Warn.Render("paused")
	}
	if m.idx >= m.lat.Len() {
		status = viz.Good.Render("●") + " " + viz.Good.Render("done")
	}
	b.WriteString("\n  " + viz.Header.Render(m.title) + "  " + status)
	if m.warnings > 0 {
		b.WriteString("  " + viz.Warn.Render(fmt.Sprintf("%d warnings", m.warnings)))
	}
	b.WriteString("\n")

	pos, total := 0.0, m.lat.Length()
	if m.state != nil {
		pos = m.state.Pos
	}
	frac := 0.0
	if total > 0 {
		frac = pos / total
	}
	b.WriteString(fmt.Sprintf("  %s %s\n\n",
		viz.ProgressBar(frac, 36),
		viz.Label.Render(fmt.Sprintf("%.3f/%.3f m", pos, total))))

	left := m.viewElements()
	right := m.viewParams()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "   ", right))
	b.WriteString("\n")

	if chart := viz.Plot(viz.EnvelopeSeries(m.history, analysis.Horizontal), "rms x [mm]", chartWidth, 6); chart != "" {
		b.WriteString("\n" + viz.Graph.Render(indent(chart, "  ")) + "\n")
	}

	b.WriteString(m.viewState())

	if m.err != nil {
		b.WriteString("\n  " + viz.Warn.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + viz.Help.Render("  space auto  n step  r reset  ↑↓ element  g follow  tab param  enter edit  ± tune  ? help  q quit") + "\n")

	if m.showHelp {
		return m.viewHelp() + b.String()
	}
	return b.String()
}

func (m Model) viewElements() string {
	var b strings.Builder
	b.WriteString(viz.Label.Render("elements") + "\n")

	start := m.cursor - listRows/2
	if start > m.lat.Len()-listRows {
		start = m.lat.Len() - listRows
	}
	if start < 0 {
		start = 0
	}
	positions := m.lat.Positions()
	for i := start; i < start+listRows && i < m.lat.Len(); i++ {
		e, err := m.lat.At(i)
		if err != nil {
			continue
		}
		head := " "
		if i == m.idx {
			head = "▶"
		}
		line := fmt.Sprintf("%s %3d %-11s %-10s %8.3f m", head, i, e.Kind, e.Name, positions[i])
		switch {
		case i == m.cursor:
			b.WriteString(viz.Selected.Render("▸ "+line) + "\n")
		case i < m.idx:
			b.WriteString("  " + viz.Dim.Render(line) + "\n")
		default:
			b.WriteString("  " + viz.Label.Render(line) + "\n")
		}
	}
	return b.String()
}

func (m Model) viewParams() string {
	e, err := m.lat.At(m.cursor)
	if err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(viz.Label.Render(fmt.Sprintf("params %s [%s]", e.Name, e.Kind)) + "\n")
	if len(m.keys) == 0 {
		b.WriteString(viz.Dim.Render("  (none)") + "\n")
		return b.String()
	}
	for i, k := range m.keys {
		val := fmt.Sprintf("%10.4g", e.Float(k))
		if m.editing && i == m.keyIdx {
			val = fmt.Sprintf("%10s", m.editBuf+"▋")
		}
		if i == m.keyIdx {
			b.WriteString(viz.Selected.Render(fmt.Sprintf("▸ %-8s", k)) + viz.Value.Render(val) + "\n")
		} else {
			b.WriteString(viz.Label.Render(fmt.Sprintf("  %-8s", k)) + viz.Dim.Render(val) + "\n")
		}
	}
	return b.String()
}

func (m Model) viewState() string {
	if m.state == nil {
		return "\n  " + viz.Dim.Render("press space or n to start") + "\n"
	}
	m0 := m.state.Moment0Env()
	rms := m.state.Moment0RMS()
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("  " + viz.Label.Render("Ek ") + viz.Value.Render(fmt.Sprintf("%.4f MeV/u", m.state.Ref.IonEk/1e6)))
	b.WriteString(viz.Label.Render("   phis ") + viz.Value.Render(fmt.Sprintf("%.4f rad", m.state.Ref.Phis)))
	b.WriteString(viz.Label.Render("   states ") + viz.Value.Render(strconv.Itoa(len(m.state.States))) + "\n")
	b.WriteString("  " + viz.Label.Render("x ") + viz.Value.Render(fmt.Sprintf("%+.3f mm", m0[beam.IndexX])))
	b.WriteString(viz.Label.Render("   y ") + viz.Value.Render(fmt.Sprintf("%+.3f mm", m0[beam.IndexY])))
	b.WriteString(viz.Label.Render("   rms ") + viz.Value.Render(fmt.Sprintf("%.3f/%.3f mm", rms[beam.IndexX], rms[beam.IndexY])) + "\n")

	if len(m.history) > 1 {
		orbit := viz.OrbitSeries(m.history, analysis.Horizontal)
		b.WriteString("  " + viz.Label.Render("orbit x ") + viz.Graph.Render(viz.Sparkline(orbit, 32)) + "\n")
	}
	return b.String()
}

func (m Model) viewHelp() string {
	return viz.Help.Render(`
  ╭──────────────────────────────────────╮
  │  space   auto-step through the line  │
  │  n / →   step one element            │
  │  r       rewind to the source        │
  │  ↑ / ↓   select element              │
  │  g       select the next element     │
  │  tab     cycle element parameters    │
  │  enter   type a new parameter value  │
  │  + / -   nudge parameter by 5%       │
  │  ?       toggle this help            │
  │  q       quit                        │
  ╰──────────────────────────────────────╯
`)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// Run starts the stepper in the alternate screen.
func Run(lat *lattice.Lattice, title string) error {
	p := tea.NewProgram(New(lat, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
