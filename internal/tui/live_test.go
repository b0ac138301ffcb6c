package tui

import (
	"context"
	"math"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/track"
)

func stepLattice(t *testing.T) *lattice.Lattice {
	t.Helper()
	mk := func(name string, kind lattice.Kind, props map[string]lattice.Value) *lattice.Element {
		e, err := lattice.NewElement(name, kind, props)
		if err != nil {
			t.Fatalf("element %s: %v", name, err)
		}
		return e
	}
	var m1 linalg.Mat
	for i := 0; i < linalg.Dim; i++ {
		m1[i][i] = 1.0
	}
	lat := lattice.New()
	lat.Name = "test"
	lat.IonEk = 500000.0
	lat.IonZs = []float64{0.5}
	lat.NCharge = []float64{1000}
	lat.Moment0 = []linalg.Vec{{1.0, 0.001, -0.5, 0, 0, 0, 1.0}}
	lat.Moment1 = []linalg.Mat{m1}
	lat.Elements = []*lattice.Element{
		mk("S", lattice.KindSource, nil),
		mk("D1", lattice.KindDrift, map[string]lattice.Value{"L": 0.5}),
		mk("Q1", lattice.KindQuadrupole, map[string]lattice.Value{"L": 0.25, "B2": 0.9}),
		mk("D2", lattice.KindDrift, map[string]lattice.Value{"L": 0.3}),
	}
	if err := lat.Validate(); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return lat
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, s := range keys {
		mm, _ := m.Update(key(s))
		m = mm.(Model)
	}
	return m
}

func TestModelStepMatchesRun(t *testing.T) {
	lat := stepLattice(t)
	m := New(lat, "test")

	for i := 0; i < lat.Len(); i++ {
		m = press(t, m, "n")
	}
	if m.idx != lat.Len() {
		t.Fatalf("idx = %d, want %d", m.idx, lat.Len())
	}
	if len(m.history) != lat.Len() {
		t.Errorf("history = %d records", len(m.history))
	}
	if m.err != nil {
		t.Fatalf("step error: %v", m.err)
	}

	// stepping past the end is a no-op
	m = press(t, m, "n")
	if m.idx != lat.Len() {
		t.Errorf("idx after overrun = %d", m.idx)
	}

	want, err := track.Run(context.Background(), lat, track.Options{})
	if err != nil {
		t.Fatalf("reference run: %v", err)
	}
	if math.Abs(m.state.Pos-want.Final.Pos) > 1e-12 {
		t.Errorf("Pos = %g, want %g", m.state.Pos, want.Final.Pos)
	}
	if !linalg.VecApproxEqual(m.state.States[0].Moment0, want.Final.States[0].Moment0, 1e-12) {
		t.Errorf("centroid %v, want %v", m.state.States[0].Moment0, want.Final.States[0].Moment0)
	}

	m = press(t, m, "r")
	if m.idx != 0 || m.state != nil || len(m.history) != 0 {
		t.Errorf("reset left idx=%d state=%v", m.idx, m.state)
	}
}

func TestModelEditRetunes(t *testing.T) {
	lat := stepLattice(t)
	m := New(lat, "test")
	for i := 0; i < lat.Len(); i++ {
		m = press(t, m, "n")
	}

	// select Q1 and retype B2
	m = press(t, m, "down", "down")
	if m.cursor != 2 {
		t.Fatalf("cursor = %d", m.cursor)
	}
	if len(m.keys) != 2 || m.keys[0] != "B2" {
		t.Fatalf("keys = %v", m.keys)
	}
	m = press(t, m, "enter")
	if !m.editing {
		t.Fatal("enter did not start editing")
	}
	m = press(t, m, "backspace", "backspace", "backspace", "1", ".", "5", "enter")
	if m.editing {
		t.Fatal("edit not committed")
	}

	q1, err := lat.At(2)
	if err != nil {
		t.Fatal(err)
	}
	if got := q1.Float("B2"); got != 1.5 {
		t.Errorf("B2 = %g, want 1.5", got)
	}

	// the replayed prefix matches a fresh run over the edited lattice
	want, err := track.Run(context.Background(), lat, track.Options{})
	if err != nil {
		t.Fatalf("reference run: %v", err)
	}
	if m.err != nil {
		t.Fatalf("rerun error: %v", m.err)
	}
	if !linalg.VecApproxEqual(m.state.States[0].Moment0, want.Final.States[0].Moment0, 1e-12) {
		t.Errorf("centroid %v, want %v", m.state.States[0].Moment0, want.Final.States[0].Moment0)
	}
	if len(m.history) != lat.Len() {
		t.Errorf("history = %d records after rerun", len(m.history))
	}

	// nudge scales the selected key
	m = press(t, m, "+")
	if got := q1.Float("B2"); math.Abs(got-1.5*1.05) > 1e-12 {
		t.Errorf("B2 after nudge = %g", got)
	}
}
