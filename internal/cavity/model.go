package cavity

import "fmt"

// SegKind names a thin-lens sub-element inside a cavity model.
type SegKind int

const (
	SegInvalid SegKind = iota
	SegDrift
	SegAccGap
	SegEFocus
	SegEQuad
	SegEDipole
	SegHMono
	SegHFocus
	SegHQuad
)

var segNames = map[SegKind]string{
	SegDrift:   "drift",
	SegAccGap:  "accgap",
	SegEFocus:  "efocus",
	SegEQuad:   "equad",
	SegEDipole: "edipole",
	SegHMono:   "hmono",
	SegHFocus:  "hfocus",
	SegHQuad:   "hquad",
}

func (k SegKind) String() string {
	if n, ok := segNames[k]; ok {
		return n
	}
	return fmt.Sprintf("SegKind(%d)", int(k))
}

// ParseSegKind maps a data-file element type to its kind.
func ParseSegKind(s string) (SegKind, bool) {
	for k, n := range segNames {
		if n == s {
			return k, true
		}
	}
	return SegInvalid, false
}

// Magnetic reports whether the segment is a magnetic multipole term.
func (k SegKind) Magnetic() bool {
	return k == SegHMono || k == SegHFocus || k == SegHQuad
}

// Dipole reports whether the segment is a steering term.
func (k SegKind) Dipole() bool { return k == SegEDipole || k == SegHMono }

// Segment is one thin-lens piece of a cavity: a drift carries only a
// length, every other kind carries an effective voltage and its
// transit-time polynomials.
type Segment struct {
	Name   string
	Kind   SegKind
	Length float64 // m
	V0     float64 // effective voltage, V
	T, S   TTF
}

// Model is a full cavity description loaded from a thin-lens data file.
// Models are immutable after loading and safe to share.
type Model struct {
	Name        string
	Fit         SyncFit
	EnergyLimit [2]float64 // MeV/u, zero value means unchecked
	NormLimit   [2]float64 // drive normalization, zero value means unchecked
	Rm          float64    // aperture radius used during fitting, mm
	Segments    []Segment
}

// Length returns the geometric length of the model in meters.
func (m *Model) Length() float64 {
	var l float64
	for _, s := range m.Segments {
		l += s.Length
	}
	return l
}

func (m *Model) validate() error {
	if err := m.Fit.Validate(); err != nil {
		return fmt.Errorf("%w (cavity %q)", err, m.Name)
	}
	if len(m.Segments) == 0 {
		return fmt.Errorf("beamsim: cavity %q has no segments", m.Name)
	}
	for _, s := range m.Segments {
		if s.Length < 0 {
			return fmt.Errorf("beamsim: cavity %q segment %q has negative length", m.Name, s.Name)
		}
		if s.Kind == SegInvalid {
			return fmt.Errorf("beamsim: cavity %q segment %q has unknown kind", m.Name, s.Name)
		}
	}
	return nil
}
