package track

import (
	"context"
	"fmt"
	"testing"

	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
)

func benchLattice(b *testing.B, cells int) *lattice.Lattice {
	lat := lattice.New()
	lat.IonEk = 500000.0
	lat.IonZs = []float64{0.5, 0.4}
	lat.NCharge = []float64{600, 400}
	lat.Moment0 = []linalg.Vec{
		{1.0, 0.001, 0.5, -0.002, 0.1, 0.001, 1.0},
		{-0.5, 0.002, 1.0, 0.001, -0.1, -0.001, 1.0},
	}
	lat.Moment1 = []linalg.Mat{diagMat(1.0), diagMat(2.0)}

	add := func(name string, kind lattice.Kind, props map[string]lattice.Value) {
		e, err := lattice.NewElement(name, kind, props)
		if err != nil {
			b.Fatalf("element %s: %v", name, err)
		}
		lat.Elements = append(lat.Elements, e)
	}
	add("S", lattice.KindSource, nil)
	for i := 0; i < cells; i++ {
		add(fmt.Sprintf("QF%d", i), lattice.KindQuadrupole, map[string]lattice.Value{"L": 0.25, "B2": 0.9})
		add(fmt.Sprintf("DA%d", i), lattice.KindDrift, map[string]lattice.Value{"L": 0.5})
		add(fmt.Sprintf("QD%d", i), lattice.KindQuadrupole, map[string]lattice.Value{"L": 0.25, "B2": -0.9})
		add(fmt.Sprintf("DB%d", i), lattice.KindDrift, map[string]lattice.Value{"L": 0.5})
	}
	if err := lat.Validate(); err != nil {
		b.Fatalf("validate: %v", err)
	}
	return lat
}

func BenchmarkPropagateDrift(b *testing.B) {
	lat := benchLattice(b, 1)
	prop := NewPropagator(lat)
	in, err := InitialState(lat)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, _, err := prop.Propagate(2, in)
		if err != nil {
			b.Fatal(err)
		}
		prop.Release(out)
	}
}

func BenchmarkRunFODO10(b *testing.B) {
	lat := benchLattice(b, 10)
	r := NewRunner(lat)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Run(context.Background(), Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRunFODO10History(b *testing.B) {
	lat := benchLattice(b, 10)
	r := NewRunner(lat)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Run(context.Background(), Options{Observe: ObserveAll}); err != nil {
			b.Fatal(err)
		}
	}
}
