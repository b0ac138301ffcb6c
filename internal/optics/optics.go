package optics

import (
	"fmt"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
)

// Env carries the lattice-level context a transfer matrix depends on beyond
// the element itself.
type Env struct {
	// Lambda is the RF sample wavelength in mm.
	Lambda float64

	// Ref is the current reference particle.
	Ref beam.Particle

	// HdipoleFitMode selects the bend design energy source: 0 reads the
	// element's bg parameter, 1 follows the reference particle.
	HdipoleFitMode int
}

// Transfer returns the transfer matrix of a static element for one charge
// state. RF cavities, strippers and sources are not matrix elements and are
// rejected here.
func Transfer(e *lattice.Element, env Env, p beam.Particle) (linalg.Mat, error) {
	var m linalg.Mat
	switch e.Kind {
	case lattice.KindMarker, lattice.KindBPM:
		m = linalg.Identity()
	case lattice.KindDrift:
		m = Drift(e.Length(), env, p)
	case lattice.KindSolenoid:
		m = Solenoid(e, env, p)
	case lattice.KindQuadrupole:
		m = Quadrupole(e, env, p)
	case lattice.KindSextupole:
		m = SextupoleLinear(e, env, p)
	case lattice.KindEQuad:
		m = EQuad(e, env, p)
	case lattice.KindSBend:
		m = SBend(e, env, p)
	case lattice.KindEDipole:
		m = EDipole(e, env, p)
	case lattice.KindOrbTrim:
		m = OrbTrim(e, env, p)
	case lattice.KindTMatrix:
		var err error
		m, err = linalg.MatFromSlice(e.Vector("matrix"))
		if err != nil {
			return m, fmt.Errorf("element %q: %w", e.Name, err)
		}
	default:
		return m, fmt.Errorf("element %q: kind %s has no static transfer matrix", e.Name, e.Kind)
	}
	return Misalign(e, m), nil
}
