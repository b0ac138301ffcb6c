package optics

import (
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

// EDipole returns the electrostatic deflector matrix for one charge state.
// The electrode shape enters through spher (spherical vs cylindrical
// focusing split) and asym_fac; beta is the design velocity ratio the plate
// voltage was set for.
func EDipole(e *lattice.Element, env Env, p beam.Particle) linalg.Mat {
	lmm := e.Length() * phys.MtoMM
	phi := e.Float("phi") * math.Pi / 180
	spher := e.Float("spher")
	asym := e.Float("asym_fac")

	rho := lmm / phi
	kx := (1 + asym) * (2 - spher - dipBetaSqr(e)) / (rho * rho)
	ky := spher / (rho * rho)

	dipBeta := e.Float("beta")
	dipGamma := 1 / math.Sqrt(1-dipBeta*dipBeta)
	dipIonK := 2 * math.Pi / (dipBeta * env.Lambda)

	// Electrostatic deflection scales with kinetic energy, not momentum.
	scl := (dipGamma - 1) * env.Ref.IonEs / phys.MeVtoEV
	qmrel := (p.IonZ - env.Ref.IonZ) / env.Ref.IonZ
	d := -qmrel

	m := linalg.Identity()
	setFocusBlock(&m, kx, lmm, 0)
	setFocusBlock(&m, ky, lmm, 2)

	dx, sx := dispersionTerms(kx, lmm)
	ld := longDispersion(kx, lmm, sx, rho)

	m[0][5] = dx / (rho * scl)
	m[1][5] = sx / (rho * scl)

	m[4][0] = sx / rho * dipIonK
	m[4][1] = dx / rho * dipIonK
	m[4][5] = (ld - lmm/(dipGamma*dipGamma)) * dipIonK / scl

	m[0][6] = dx / rho * d
	m[1][6] = sx / rho * d
	m[4][6] = (ld*d - lmm/(dipGamma*dipGamma)*d) * dipIonK

	// Linear fringe field kicks at both boundaries.
	if fx, fy := e.Float("fringe_x"), e.Float("fringe_y"); fx != 0 || fy != 0 {
		f := linalg.Identity()
		f[1][0] = fx
		f[3][2] = fy
		m = f.Mul(m).Mul(f)
	}

	// Vertical deflector: conjugate by a quarter-turn roll.
	if e.Float("ver") != 0 {
		m = RotateXY(-math.Pi / 2).Mul(m).Mul(RotateXY(math.Pi / 2))
	}
	return m
}

func dipBetaSqr(e *lattice.Element) float64 {
	b := e.Float("beta")
	return b * b
}
