package optics

import (
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
)

// OrbTrim returns the corrector matrix: an optional coordinate rotation
// followed by angle kicks. With realpara set the kicks are given as field
// integrals in T*m and divided by this state's rigidity; otherwise theta_x
// and theta_y are reference angles scaled by the charge ratio.
func OrbTrim(e *lattice.Element, env Env, p beam.Particle) linalg.Mat {
	var thetaX, thetaY float64
	if e.Float("realpara") == 1 {
		thetaX = e.Float("tm_xkick") / p.Brho()
		thetaY = e.Float("tm_ykick") / p.Brho()
	} else {
		scale := p.IonZ / env.Ref.IonZ
		thetaX = e.Float("theta_x") * scale
		thetaY = e.Float("theta_y") * scale
	}

	kick := linalg.Identity()
	kick[1][6] = thetaX
	kick[3][6] = thetaY

	if deg := e.Float("xyrotate"); deg != 0 {
		return kick.Mul(RotateXY(deg * math.Pi / 180))
	}
	return kick
}
