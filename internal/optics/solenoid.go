package optics

import (
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

func solenoidMat(k, lmm, lambda float64, p beam.Particle) linalg.Mat {
	c := math.Cos(k * lmm)
	s := math.Sin(k * lmm)

	m := linalg.Identity()
	m[0][0], m[1][1], m[2][2], m[3][3] = c*c, c*c, c*c, c*c

	if k != 0 {
		m[0][1] = s * c / k
		m[2][3] = s * c / k
		m[0][3] = s * s / k
		m[2][1] = -s * s / k
	} else {
		m[0][1] = lmm
		m[2][3] = lmm
	}
	m[0][2] = s * c
	m[2][0] = -s * c
	m[1][0] = -k * s * c
	m[3][2] = -k * s * c
	m[1][2] = -k * s * s
	m[3][0] = k * s * s
	m[1][3] = s * c
	m[3][1] = -s * c

	m[4][5] = driftPhase(lmm, lambda, p)
	return m
}

// Solenoid returns the coupled-plane solenoid matrix. B is the axial field
// in T; the Larmor focusing strength is B/(2*Brho).
func Solenoid(e *lattice.Element, env Env, p beam.Particle) linalg.Mat {
	lmm := e.Length() * phys.MtoMM
	k := e.Float("B") / (2 * p.Brho()) / phys.MtoMM
	if n := int(e.Float("ncurve")); n > 0 {
		return composeCurve(k, lmm, env.Lambda, p, e.Vector("curve"), n, solenoidMat)
	}
	return solenoidMat(k, lmm, env.Lambda, p)
}
