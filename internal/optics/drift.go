package optics

import (
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

// Drift returns the field-free transfer matrix for a length in meters.
func Drift(length float64, env Env, p beam.Particle) linalg.Mat {
	lmm := length * phys.MtoMM
	m := linalg.Identity()
	m[0][1] = lmm
	m[2][3] = lmm
	m[4][5] = driftPhase(lmm, env.Lambda, p)
	return m
}

// driftPhase is the longitudinal phase slip per unit energy deviation over
// a field-free length lmm. Every thick element carries it.
func driftPhase(lmm, lambda float64, p beam.Particle) float64 {
	bg := p.BG()
	return -2 * math.Pi * lmm / (lambda * p.IonEs / phys.MeVtoEV * bg * bg * bg)
}
