package optics

import (
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

// edgeMat is the hard-edge focusing at a bend boundary with pole face
// rotation phi (rad) and bending radius rho (mm).
func edgeMat(rho, phi float64) linalg.Mat {
	m := linalg.Identity()
	m[1][0] = math.Tan(phi) / rho
	m[3][2] = -math.Tan(phi) / rho
	return m
}

// dispersionTerms returns the bend dispersion integrals for horizontal
// focusing kx over length lmm: dx couples energy into position, sx into
// angle.
func dispersionTerms(kx, lmm float64) (dx, sx float64) {
	switch {
	case kx > 0:
		sk := math.Sqrt(kx)
		dx = (1 - math.Cos(sk*lmm)) / kx
		sx = math.Sin(sk*lmm) / sk
	case kx < 0:
		sk := math.Sqrt(-kx)
		dx = (1 - math.Cosh(sk*lmm)) / kx
		sx = math.Sinh(sk*lmm) / sk
	default:
		dx = lmm * lmm / 2
		sx = lmm
	}
	return dx, sx
}

// longDispersion is the (L-sx)/(Kx*rho^2) integral with its Kx -> 0 limit.
func longDispersion(kx, lmm, sx, rho float64) float64 {
	if kx == 0 {
		return lmm * lmm * lmm / (6 * rho * rho)
	}
	return (lmm - sx) / (kx * rho * rho)
}

// SBend returns the sector bend matrix for one charge state. The bend
// geometry is fixed by L and phi; energy mismatch against the design
// momentum and the charge offset against the reference enter through the
// dispersion column.
func SBend(e *lattice.Element, env Env, p beam.Particle) linalg.Mat {
	lmm := e.Length() * phys.MtoMM
	phi := e.Float("phi") * math.Pi / 180
	phi1 := e.Float("phi1") * math.Pi / 180
	phi2 := e.Float("phi2") * math.Pi / 180
	k := e.Float("K") / (phys.MtoMM * phys.MtoMM)

	rho := lmm / phi
	kx := k + 1/(rho*rho)
	ky := -k

	qmrel := (p.IonZ - env.Ref.IonZ) / env.Ref.IonZ

	// Design energy of the bend field.
	var dipBeta, dipGamma, d float64
	if env.HdipoleFitMode == 0 && e.Float("bg") > 0 {
		dipBG := e.Float("bg")
		dipGamma = math.Sqrt(dipBG*dipBG + 1)
		dipBeta = dipBG / dipGamma
		refGamma := env.Ref.Gamma()
		d = (refGamma-dipGamma)/(dipBeta*dipBeta*dipGamma) - qmrel
	} else {
		dipBeta = env.Ref.Beta()
		dipGamma = env.Ref.Gamma()
		d = -qmrel
	}
	dipIonK := 2 * math.Pi / (dipBeta * env.Lambda)
	esMeV := env.Ref.IonEs / phys.MeVtoEV

	m := linalg.Identity()
	setFocusBlock(&m, kx, lmm, 0)
	setFocusBlock(&m, ky, lmm, 2)

	dx, sx := dispersionTerms(kx, lmm)
	ld := longDispersion(kx, lmm, sx, rho)

	m[0][5] = dx / (rho * dipBeta * dipBeta * dipGamma * esMeV)
	m[1][5] = sx / (rho * dipBeta * dipBeta * dipGamma * esMeV)

	m[4][0] = sx / rho * dipIonK
	m[4][1] = dx / rho * dipIonK
	m[4][5] = (ld - lmm/(dipGamma*dipGamma)) * dipIonK / (dipBeta * dipBeta * dipGamma * esMeV)

	m[4][6] = (ld*d - lmm/(dipGamma*dipGamma)*(d+qmrel)) * dipIonK
	m[0][6] = dx / rho * d
	m[1][6] = sx / rho * d

	return edgeMat(rho, phi2).Mul(m).Mul(edgeMat(rho, phi1))
}
