package optics

import (
	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

// SextStrength returns the sextupole strength K in 1/mm^3 for one charge
// state. B3 is in T/m^2.
func SextStrength(e *lattice.Element, p beam.Particle) float64 {
	return e.Float("B3") / p.Brho() / (phys.MtoMM * phys.MtoMM * phys.MtoMM)
}

// SextupoleLinear returns the first-order part of the sextupole, a drift.
// The nonlinear centroid kick is applied separately between step slices.
func SextupoleLinear(e *lattice.Element, env Env, p beam.Particle) linalg.Mat {
	return Drift(e.Length(), env, p)
}

// SextSteps returns the number of thin-kick slices.
func SextSteps(e *lattice.Element) int {
	n := int(e.Float("step"))
	if n < 1 {
		n = 1
	}
	return n
}

// SextKick returns the thin-lens angle kicks for a slice of length ls (mm)
// at the given centroid position (mm).
func SextKick(k, ls, x, y float64) (dxp, dyp float64) {
	dxp = -k / 2 * ls * (x*x - y*y)
	dyp = k * ls * x * y
	return dxp, dyp
}
