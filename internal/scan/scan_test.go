package scan

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/track"
)

func elem(t *testing.T, name string, kind lattice.Kind, props map[string]lattice.Value) *lattice.Element {
	t.Helper()
	e, err := lattice.NewElement(name, kind, props)
	if err != nil {
		t.Fatalf("element %s: %v", name, err)
	}
	return e
}

func scanLattice(t *testing.T) *lattice.Lattice {
	t.Helper()
	var env linalg.Mat
	for i := 0; i < linalg.Dim; i++ {
		env[i][i] = 1.0
	}
	lat := lattice.New()
	lat.IonEk = 500000.0
	lat.IonZs = []float64{0.5}
	lat.NCharge = []float64{1000}
	lat.Moment0 = []linalg.Vec{{1.0, 0, 0, 0, 0, 0, 1.0}}
	lat.Moment1 = []linalg.Mat{env}
	lat.Elements = []*lattice.Element{
		elem(t, "S", lattice.KindSource, nil),
		elem(t, "D1", lattice.KindDrift, map[string]lattice.Value{"L": 0.5}),
		elem(t, "Q1", lattice.KindQuadrupole, map[string]lattice.Value{"L": 0.25, "B2": 0.9}),
		elem(t, "D2", lattice.KindDrift, map[string]lattice.Value{"L": 0.25}),
	}
	if err := lat.Validate(); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return lat
}

func finalPos(res *track.Result) float64 { return res.Final.Pos }

func TestAxis(t *testing.T) {
	p := Axis("D1", "L", 0.1, 0.5, 5)
	want := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	if len(p.Values) != len(want) {
		t.Fatalf("got %d values, want %d", len(p.Values), len(want))
	}
	for i, v := range want {
		if math.Abs(p.Values[i]-v) > 1e-12 {
			t.Errorf("value %d = %g, want %g", i, p.Values[i], v)
		}
	}

	if single := Axis("D1", "L", 0.7, 0.9, 1); len(single.Values) != 1 || single.Values[0] != 0.7 {
		t.Errorf("single-sample axis = %v", single.Values)
	}
}

func TestGrid1D(t *testing.T) {
	lat := scanLattice(t)
	g := &Grid{Params: []Param{{Element: "D1", Key: "L", Values: []float64{0.2, 0.4, 0.6}}}}

	res, err := g.Run(context.Background(), lat, finalPos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Shape) != 1 || res.Shape[0] != 3 {
		t.Fatalf("Shape = %v", res.Shape)
	}

	// Q1 and D2 contribute a fixed 0.5 m.
	want := []float64{0.7, 0.9, 1.1}
	for i, p := range res.Points {
		if p.Err != nil {
			t.Fatalf("point %d: %v", i, p.Err)
		}
		if math.Abs(p.Values[0]-g.Params[0].Values[i]) > 1e-12 {
			t.Errorf("point %d value = %g", i, p.Values[0])
		}
		if math.Abs(p.Metric-want[i]) > 1e-12 {
			t.Errorf("point %d metric = %g, want %g", i, p.Metric, want[i])
		}
	}
}

func TestGrid2D(t *testing.T) {
	lat := scanLattice(t)
	d1 := []float64{0.2, 0.4, 0.6}
	d2 := []float64{0.1, 0.2}
	g := &Grid{
		Params: []Param{
			{Element: "D1", Key: "L", Values: d1},
			{Element: "D2", Key: "L", Values: d2},
		},
		Workers: 2,
	}

	res, err := g.Run(context.Background(), lat, finalPos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Points) != 6 || res.Shape[0] != 3 || res.Shape[1] != 2 {
		t.Fatalf("shape %v with %d points", res.Shape, len(res.Points))
	}

	for i, p := range res.Points {
		if p.Err != nil {
			t.Fatalf("point %d: %v", i, p.Err)
		}
		wantD1, wantD2 := d1[i/2], d2[i%2]
		if p.Values[0] != wantD1 || p.Values[1] != wantD2 {
			t.Errorf("point %d values = %v, want [%g %g]", i, p.Values, wantD1, wantD2)
		}
		if want := wantD1 + wantD2 + 0.25; math.Abs(p.Metric-want) > 1e-12 {
			t.Errorf("point %d metric = %g, want %g", i, p.Metric, want)
		}
	}
}

func TestGridBest(t *testing.T) {
	lat := scanLattice(t)
	g := &Grid{Params: []Param{Axis("D1", "L", 0.1, 0.5, 5)}}

	res, err := g.Run(context.Background(), lat, func(r *track.Result) float64 {
		return math.Abs(r.Final.Pos - 0.8)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if best := res.Best(); best != 2 {
		t.Errorf("Best = %d, want 2", best)
	}
}

func TestGridInputUntouched(t *testing.T) {
	lat := scanLattice(t)
	g := &Grid{Params: []Param{{Element: "D1", Key: "L", Values: []float64{2.0}}}}
	if _, err := g.Run(context.Background(), lat, finalPos); err != nil {
		t.Fatalf("Run: %v", err)
	}

	e, err := lat.At(1)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Float("L"); got != 0.5 {
		t.Errorf("original D1 length = %g, want 0.5", got)
	}
}

func TestGridConfigErrors(t *testing.T) {
	lat := scanLattice(t)
	tests := []struct {
		name string
		grid Grid
		eval Eval
	}{
		{"no params", Grid{}, finalPos},
		{"nil evaluator", Grid{Params: []Param{Axis("D1", "L", 0.1, 0.2, 2)}}, nil},
		{"empty values", Grid{Params: []Param{{Element: "D1", Key: "L"}}}, finalPos},
		{"unknown element", Grid{Params: []Param{{Element: "QX", Key: "L", Values: []float64{1}}}}, finalPos},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.grid.Run(context.Background(), lat, tt.eval); err == nil {
				t.Error("want error")
			}
		})
	}
}

func TestGridPointErrors(t *testing.T) {
	lat := scanLattice(t)
	// Drifts have no field strength, so every point fails to configure.
	g := &Grid{Params: []Param{{Element: "D1", Key: "B2", Values: []float64{0.1, 0.2}}}}

	res, err := g.Run(context.Background(), lat, finalPos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, p := range res.Points {
		if p.Err == nil {
			t.Errorf("point %d configured a drift field strength", i)
		}
	}
	if res.Best() != -1 {
		t.Errorf("Best = %d over all-failed grid", res.Best())
	}
}

func TestGridCancel(t *testing.T) {
	lat := scanLattice(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &Grid{Params: []Param{Axis("D1", "L", 0.1, 0.5, 3)}}
	res, err := g.Run(ctx, lat, finalPos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, p := range res.Points {
		if !errors.Is(p.Err, context.Canceled) {
			t.Errorf("point %d err = %v", i, p.Err)
		}
	}
}
