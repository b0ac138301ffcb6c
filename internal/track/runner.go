package track

import (
	"context"
	"fmt"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
)

// ObserveMode selects which element snapshots a run keeps.
type ObserveMode int

const (
	// ObserveLast keeps only the final state.
	ObserveLast ObserveMode = iota
	// ObserveAll snapshots the state after every element.
	ObserveAll
	// ObserveIndices snapshots only the indices listed in Options.Indices.
	ObserveIndices
)

// Options configures one run over an element range.
type Options struct {
	// From and To bound the half-open element range [From, To).
	// To = 0 means the end of the lattice.
	From, To int

	// Initial resumes from a prior state. Nil starts fresh from the
	// lattice's source parameters.
	Initial *beam.State

	Observe ObserveMode
	Indices []int

	// Callback, when set, runs after every element. Returning false stops
	// the run early without error. The state must not be retained.
	Callback func(index int, s *beam.State) bool

	// Validate aborts the run when a state goes non-finite.
	Validate bool
}

// Record is one observed snapshot.
type Record struct {
	Index int
	Name  string
	Pos   float64
	State *beam.State
}

// Result of a run.
type Result struct {
	// Final is the state after the last element stepped. Set even when the
	// run aborts, holding the last good state.
	Final *beam.State

	History  []Record
	Warnings []Warning
	Steps    int
}

// Runner drives a propagator over element ranges of one lattice. The
// transfer cache persists across runs until the lattice changes.
type Runner struct {
	lat  *lattice.Lattice
	prop *Propagator
}

func NewRunner(lat *lattice.Lattice) *Runner {
	return &Runner{lat: lat, prop: NewPropagator(lat)}
}

// Run is the one-shot form of Runner.Run.
func Run(ctx context.Context, lat *lattice.Lattice, opts Options) (*Result, error) {
	return NewRunner(lat).Run(ctx, opts)
}

// Run propagates through [From, To). A full run and two partial runs
// chained through Initial produce identical states at every shared index.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	n := r.lat.Len()
	from, to := opts.From, opts.To
	if to == 0 {
		to = n
	}
	if from < 0 || to < 0 || to > n || from > to {
		return nil, fmt.Errorf("%w: [%d, %d) of %d elements", ErrRange, opts.From, opts.To, n)
	}

	observed := make(map[int]bool, len(opts.Indices))
	for _, i := range opts.Indices {
		observed[i] = true
	}

	var cur *beam.State
	if opts.Initial != nil {
		cur = opts.Initial.Clone()
	} else {
		var err error
		cur, err = InitialState(r.lat)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{}
	for i := from; i < to; i++ {
		select {
		case <-ctx.Done():
			res.Final = cur
			return res, ctx.Err()
		default:
		}

		e, err := r.lat.At(i)
		if err != nil {
			res.Final = cur
			return res, err
		}
		out, warns, err := r.prop.Propagate(i, cur)
		if err != nil {
			res.Final = cur
			return res, &RunError{Index: i, Element: e.Name, Err: err}
		}
		res.Warnings = append(res.Warnings, warns...)
		res.Steps++

		if opts.Validate && !out.IsValid() {
			res.Final = cur
			r.prop.Release(out)
			return res, &RunError{Index: i, Element: e.Name,
				Err: fmt.Errorf("beamsim: state went non-finite")}
		}

		if opts.Observe == ObserveAll || (opts.Observe == ObserveIndices && observed[i]) {
			res.History = append(res.History, Record{
				Index: i, Name: e.Name, Pos: out.Pos, State: out.Clone(),
			})
		}
		stop := opts.Callback != nil && !opts.Callback(i, out)

		r.prop.Release(cur)
		cur = out
		if stop {
			break
		}
	}

	res.Final = cur
	return res, nil
}
