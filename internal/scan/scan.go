// Package scan runs parameter grids over cloned lattices.
package scan

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/track"
)

// Param is one scan axis: an element parameter and its sample values.
type Param struct {
	Element string
	Key     string
	Values  []float64
}

// Axis samples n evenly spaced values across [min, max].
func Axis(element, key string, min, max float64, n int) Param {
	vals := make([]float64, n)
	if n == 1 {
		vals[0] = min
	} else {
		step := (max - min) / float64(n-1)
		for i := range vals {
			vals[i] = min + float64(i)*step
		}
	}
	return Param{Element: element, Key: key, Values: vals}
}

// Eval scores one completed run. Lower is better for Best.
type Eval func(res *track.Result) float64

// Point is one grid evaluation.
type Point struct {
	Values []float64 // one per axis, outer axis first
	Metric float64
	Err    error
}

// Result holds every grid point in row-major order, outer axis first.
type Result struct {
	Shape  []int
	Points []Point
}

// Best returns the index of the smallest finite metric, or -1 when every
// point failed.
func (r *Result) Best() int {
	best := -1
	min := math.Inf(1)
	for i := range r.Points {
		p := &r.Points[i]
		if p.Err != nil || math.IsNaN(p.Metric) {
			continue
		}
		if p.Metric < min {
			min = p.Metric
			best = i
		}
	}
	return best
}

// Grid evaluates a metric over the cartesian product of its axes. Each
// point runs on its own clone of the lattice, so the input is never
// mutated. Points run in parallel on a bounded pool; the result order is
// the grid order regardless of scheduling.
type Grid struct {
	Params  []Param
	Options track.Options // range and observation for each point's run
	Workers int           // concurrent points, GOMAXPROCS when 0
}

func (g *Grid) Run(ctx context.Context, lat *lattice.Lattice, eval Eval) (*Result, error) {
	if len(g.Params) == 0 {
		return nil, fmt.Errorf("beamsim: scan needs at least one parameter")
	}
	if eval == nil {
		return nil, fmt.Errorf("beamsim: scan needs an evaluator")
	}
	for _, p := range g.Params {
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("beamsim: parameter %s.%s has no values", p.Element, p.Key)
		}
		if _, err := lat.IndexOf(p.Element); err != nil {
			return nil, err
		}
	}

	shape := make([]int, len(g.Params))
	total := 1
	for i, p := range g.Params {
		shape[i] = len(p.Values)
		total *= len(p.Values)
	}
	res := &Result{Shape: shape, Points: make([]Point, total)}

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for idx := 0; idx < total; idx++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			res.Points[idx] = g.point(ctx, lat, eval, idx)
		}(idx)
	}
	wg.Wait()
	return res, nil
}

func (g *Grid) point(ctx context.Context, lat *lattice.Lattice, eval Eval, idx int) Point {
	pt := Point{Values: g.values(idx)}

	clone := lat.Clone()
	for i, p := range g.Params {
		if err := clone.Reconfigure(p.Element, map[string]lattice.Value{p.Key: pt.Values[i]}); err != nil {
			pt.Err = err
			return pt
		}
	}
	run, err := track.Run(ctx, clone, g.Options)
	if err != nil {
		pt.Err = err
		return pt
	}
	pt.Metric = eval(run)
	return pt
}

// values decodes a row-major point index into one value per axis.
func (g *Grid) values(idx int) []float64 {
	vals := make([]float64, len(g.Params))
	for i := len(g.Params) - 1; i >= 0; i-- {
		n := len(g.Params[i].Values)
		vals[i] = g.Params[i].Values[idx%n]
		idx /= n
	}
	return vals
}
