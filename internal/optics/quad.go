package optics

import (
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

// setFocusBlock writes the 2x2 transport block for focusing strength k
// (1/mm^2) over length lmm into rows ind, ind+1. Positive k focuses, the
// k == 0 limit is a drift.
func setFocusBlock(m *linalg.Mat, k, lmm float64, ind int) {
	switch {
	case k > 0:
		sk := math.Sqrt(k)
		psi := sk * lmm
		cs, sn := math.Cos(psi), math.Sin(psi)
		m[ind][ind] = cs
		m[ind][ind+1] = sn / sk
		m[ind+1][ind] = -sk * sn
		m[ind+1][ind+1] = cs
	case k < 0:
		sk := math.Sqrt(-k)
		psi := sk * lmm
		ch, sh := math.Cosh(psi), math.Sinh(psi)
		m[ind][ind] = ch
		m[ind][ind+1] = sh / sk
		m[ind+1][ind] = sk * sh
		m[ind+1][ind+1] = ch
	default:
		m[ind][ind] = 1
		m[ind][ind+1] = lmm
		m[ind+1][ind] = 0
		m[ind+1][ind+1] = 1
	}
}

func quadMat(k, lmm, lambda float64, p beam.Particle) linalg.Mat {
	m := linalg.Identity()
	setFocusBlock(&m, k, lmm, 0)
	setFocusBlock(&m, -k, lmm, 2)
	m[4][5] = driftPhase(lmm, lambda, p)
	return m
}

// composeCurve slices the element into n segments with the strength scaled
// by the measured field profile, entrance first.
func composeCurve(k, lmm, lambda float64, p beam.Particle, curve []float64, n int,
	slice func(k, lmm, lambda float64, p beam.Particle) linalg.Mat) linalg.Mat {

	ls := lmm / float64(n)
	m := linalg.Identity()
	for i := 0; i < n; i++ {
		m = slice(k*curve[i], ls, lambda, p).Mul(m)
	}
	return m
}

// Quadrupole returns the magnetic quadrupole matrix. The gradient B2 is in
// T/m; the focusing strength scales with this charge state's rigidity.
func Quadrupole(e *lattice.Element, env Env, p beam.Particle) linalg.Mat {
	lmm := e.Length() * phys.MtoMM
	k := e.Float("B2") / p.Brho() / (phys.MtoMM * phys.MtoMM)
	if n := int(e.Float("ncurve")); n > 0 {
		return composeCurve(k, lmm, env.Lambda, p, e.Vector("curve"), n, quadMat)
	}
	return quadMat(k, lmm, env.Lambda, p)
}

// EQuad returns the electrostatic quadrupole matrix. V is the electrode
// voltage in volts, radius the aperture radius in meters.
func EQuad(e *lattice.Element, env Env, p beam.Particle) linalg.Mat {
	lmm := e.Length() * phys.MtoMM
	r := e.Float("radius")
	k := 2 * e.Float("V") / (phys.C0 * p.Beta() * r * r) / p.Brho() / (phys.MtoMM * phys.MtoMM)
	if n := int(e.Float("ncurve")); n > 0 {
		return composeCurve(k, lmm, env.Lambda, p, e.Vector("curve"), n, quadMat)
	}
	return quadMat(k, lmm, env.Lambda, p)
}
