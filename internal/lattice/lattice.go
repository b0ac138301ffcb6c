// Package lattice models a beamline as an ordered list of typed elements
// plus the machine and initial-beam globals that a simulation needs. It owns
// parameter validation and in-place reconfiguration; propagation lives in
// the track package.
package lattice

import (
	"fmt"
	"path"

	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

// Lattice is a validated beamline description.
type Lattice struct {
	// Name is the beamline name from the file's use statement.
	Name string

	Elements []*Element

	// IonEs and IonEk are the rest and initial kinetic energy in eV/u.
	IonEs float64
	IonEk float64

	// IonZs lists the tracked charge states as charge-to-mass ratios in
	// e/u. NCharge carries the macro-particle weight per charge state.
	IonZs   []float64
	NCharge []float64

	// Moment0 and Moment1 are the initial centroid and envelope per charge
	// state. Empty slices mean a zero beam.
	Moment0 []linalg.Vec
	Moment1 []linalg.Mat

	// SampleFreq is the RF sample frequency in Hz.
	SampleFreq float64

	// MpoleLevel selects which cavity multipole orders are applied: 0 for
	// the accelerating gaps only, 1 adds dipole terms, 2 all terms.
	MpoleLevel int

	// HdipoleFitMode selects the bend design energy: 0 uses the element's
	// own bg parameter, 1 the live reference.
	HdipoleFitMode int

	// DataDir is the directory holding cavity field data files.
	DataDir string

	// Extra preserves globals the engine does not interpret, for faithful
	// serialization.
	Extra map[string]Value

	version uint64
}

// New returns an empty lattice with engine defaults applied.
func New() *Lattice {
	return &Lattice{
		IonEs:          phys.AMU,
		SampleFreq:     phys.SampleFreqDefault,
		MpoleLevel:     2,
		HdipoleFitMode: 1,
		Extra:          map[string]Value{},
	}
}

// Validate checks the cross-field invariants a runner depends on.
func (l *Lattice) Validate() error {
	if len(l.Elements) == 0 {
		return fmt.Errorf("beamsim: lattice has no elements")
	}
	if l.IonEs <= 0 {
		return fmt.Errorf("beamsim: ion rest energy must be positive, got %v", l.IonEs)
	}
	if l.SampleFreq <= 0 {
		return fmt.Errorf("beamsim: sample frequency must be positive, got %v", l.SampleFreq)
	}
	if len(l.IonZs) == 0 {
		return fmt.Errorf("beamsim: lattice defines no charge states")
	}
	if len(l.NCharge) != len(l.IonZs) {
		return fmt.Errorf("beamsim: %d charge weights for %d charge states",
			len(l.NCharge), len(l.IonZs))
	}
	if len(l.Moment0) != 0 && len(l.Moment0) != len(l.IonZs) {
		return fmt.Errorf("beamsim: %d initial centroids for %d charge states",
			len(l.Moment0), len(l.IonZs))
	}
	if len(l.Moment1) != 0 && len(l.Moment1) != len(l.IonZs) {
		return fmt.Errorf("beamsim: %d initial envelopes for %d charge states",
			len(l.Moment1), len(l.IonZs))
	}
	if l.MpoleLevel < 0 || l.MpoleLevel > 2 {
		return fmt.Errorf("beamsim: MpoleLevel must be 0, 1 or 2, got %d", l.MpoleLevel)
	}
	if l.HdipoleFitMode != 0 && l.HdipoleFitMode != 1 {
		return fmt.Errorf("beamsim: HdipoleFitMode must be 0 or 1, got %d", l.HdipoleFitMode)
	}
	return nil
}

func (l *Lattice) Len() int { return len(l.Elements) }

// At returns the element at index i.
func (l *Lattice) At(i int) (*Element, error) {
	if i < 0 || i >= len(l.Elements) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNotFound, i, len(l.Elements))
	}
	return l.Elements[i], nil
}

// FindByName returns the indexes of all elements with the given name, in
// lattice order.
func (l *Lattice) FindByName(name string) []int {
	var out []int
	for i, e := range l.Elements {
		if e.Name == name {
			out = append(out, i)
		}
	}
	return out
}

// IndexOf resolves a name that must identify exactly one element record.
// Repeated references to one shared record resolve to the first occurrence.
func (l *Lattice) IndexOf(name string) (int, error) {
	hits := l.FindByName(name)
	if len(hits) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	first := l.Elements[hits[0]]
	for _, i := range hits[1:] {
		if l.Elements[i] != first {
			return 0, fmt.Errorf("%w: %q matches %d elements", ErrAmbiguous, name, len(hits))
		}
	}
	return hits[0], nil
}

// IndexesByKind returns the indexes of all elements of the given kind.
func (l *Lattice) IndexesByKind(k Kind) []int {
	var out []int
	for i, e := range l.Elements {
		if e.Kind == k {
			out = append(out, i)
		}
	}
	return out
}

// MatchNames returns the indexes of elements whose name matches the glob
// pattern.
func (l *Lattice) MatchNames(pattern string) []int {
	var out []int
	for i, e := range l.Elements {
		if ok, err := path.Match(pattern, e.Name); err == nil && ok {
			out = append(out, i)
		}
	}
	return out
}

// Positions returns the cumulative path length in meters at the exit of
// each element.
func (l *Lattice) Positions() []float64 {
	out := make([]float64, len(l.Elements))
	s := 0.0
	for i, e := range l.Elements {
		s += e.Length()
		out[i] = s
	}
	return out
}

// Length returns the total path length in meters.
func (l *Lattice) Length() float64 {
	s := 0.0
	for _, e := range l.Elements {
		s += e.Length()
	}
	return s
}

// Report is an element census for display.
type Report struct {
	Elements int
	Length   float64
	Kinds    map[Kind]int
}

// InspectReport counts elements by kind and totals the path length.
func (l *Lattice) InspectReport() Report {
	r := Report{Elements: len(l.Elements), Length: l.Length(), Kinds: map[Kind]int{}}
	for _, e := range l.Elements {
		r.Kinds[e.Kind]++
	}
	return r
}

// ReconfigureAt applies parameter changes to the element at index i. A
// rejected batch leaves the lattice untouched.
func (l *Lattice) ReconfigureAt(i int, changes map[string]Value) error {
	e, err := l.At(i)
	if err != nil {
		return err
	}
	return e.Set(changes)
}

// Reconfigure applies parameter changes to the uniquely named element.
func (l *Lattice) Reconfigure(name string, changes map[string]Value) error {
	i, err := l.IndexOf(name)
	if err != nil {
		return err
	}
	return l.Elements[i].Set(changes)
}

// Insert places e before index i. i == Len() appends. A source element at
// index 0 stays first: inserting before it is rejected.
func (l *Lattice) Insert(i int, e *Element) error {
	if i < 0 || i > len(l.Elements) {
		return fmt.Errorf("%w: insert index %d of %d", ErrNotFound, i, len(l.Elements))
	}
	if i == 0 && len(l.Elements) > 0 && l.Elements[0].Kind == KindSource {
		return fmt.Errorf("beamsim: cannot insert before the source element")
	}
	l.Elements = append(l.Elements, nil)
	copy(l.Elements[i+1:], l.Elements[i:])
	l.Elements[i] = e
	l.version++
	return nil
}

// Pop removes and returns the element at index i. The source element cannot
// be removed.
func (l *Lattice) Pop(i int) (*Element, error) {
	e, err := l.At(i)
	if err != nil {
		return nil, err
	}
	if i == 0 && e.Kind == KindSource {
		return nil, fmt.Errorf("beamsim: cannot remove the source element")
	}
	l.Elements = append(l.Elements[:i], l.Elements[i+1:]...)
	l.version++
	return e, nil
}

// Version counts structural edits. Element-level changes are tracked by the
// per-element generation counter instead.
func (l *Lattice) Version() uint64 { return l.version }

// Clone returns a deep copy safe for concurrent use against the original.
// Repeated line references share one element record; the copy preserves
// that sharing so reconfiguration keeps applying at every occurrence.
func (l *Lattice) Clone() *Lattice {
	c := *l
	c.Elements = make([]*Element, len(l.Elements))
	cloned := make(map[*Element]*Element)
	for i, e := range l.Elements {
		ce, ok := cloned[e]
		if !ok {
			ce = e.Clone()
			cloned[e] = ce
		}
		c.Elements[i] = ce
	}
	c.IonZs = append([]float64(nil), l.IonZs...)
	c.NCharge = append([]float64(nil), l.NCharge...)
	c.Moment0 = append([]linalg.Vec(nil), l.Moment0...)
	c.Moment1 = append([]linalg.Mat(nil), l.Moment1...)
	c.Extra = make(map[string]Value, len(l.Extra))
	for k, v := range l.Extra {
		c.Extra[k] = CloneValue(v)
	}
	return &c
}
