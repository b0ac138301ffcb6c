// Package correct fits steering kicks against tracked orbits.
package correct

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/track"
)

// ErrNoConvergence reports a steering fit that ran out of iterations.
var ErrNoConvergence = errors.New("beamsim: steering did not converge")

// probe is the first secant offset, rad.
const probe = 1e-4

// Config selects the trim to fit and the marker whose exit centroid is
// zeroed.
type Config struct {
	Trim    string
	Marker  string
	MaxIter int     // default 20
	Tol     float64 // residual bound, mm, default 1e-6
}

// Kick is a fitted pair of trim angles.
type Kick struct {
	ThetaX     float64 // rad
	ThetaY     float64 // rad
	Iterations int
	Residual   float64 // largest centroid component left at the marker, mm
}

// Steer fits the trim's theta_x and theta_y by per-plane secant iteration
// until the combined centroid at the marker exit is within tolerance. The
// input lattice is never mutated; every trial runs on a clone. On
// ErrNoConvergence the returned kick is the last candidate.
func Steer(ctx context.Context, lat *lattice.Lattice, cfg Config) (Kick, error) {
	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 20
	}
	tol := cfg.Tol
	if tol <= 0 {
		tol = 1e-6
	}

	ti, err := lat.IndexOf(cfg.Trim)
	if err != nil {
		return Kick{}, err
	}
	mi, err := lat.IndexOf(cfg.Marker)
	if err != nil {
		return Kick{}, err
	}
	trim, err := lat.At(ti)
	if err != nil {
		return Kick{}, err
	}
	if trim.Kind != lattice.KindOrbTrim {
		return Kick{}, fmt.Errorf("beamsim: element %q is %s, not %s", cfg.Trim, trim.Kind, lattice.KindOrbTrim)
	}
	if mi <= ti {
		return Kick{}, fmt.Errorf("beamsim: marker %q is not downstream of trim %q", cfg.Marker, cfg.Trim)
	}

	clone := lat.Clone()
	measure := func(tx, ty float64) (float64, float64, error) {
		err := clone.ReconfigureAt(ti, map[string]lattice.Value{"theta_x": tx, "theta_y": ty})
		if err != nil {
			return 0, 0, err
		}
		res, err := track.Run(ctx, clone, track.Options{To: mi + 1})
		if err != nil {
			return 0, 0, err
		}
		m := res.Final.Moment0Env()
		return m[beam.IndexX], m[beam.IndexY], nil
	}

	tx0, ty0 := trim.Float("theta_x"), trim.Float("theta_y")
	x0, y0, err := measure(tx0, ty0)
	if err != nil {
		return Kick{}, err
	}
	k := Kick{ThetaX: tx0, ThetaY: ty0, Residual: math.Max(math.Abs(x0), math.Abs(y0))}
	if k.Residual <= tol {
		return k, nil
	}

	tx1, ty1 := tx0+probe, ty0+probe
	for i := 1; i <= maxIter; i++ {
		x1, y1, err := measure(tx1, ty1)
		if err != nil {
			return Kick{}, err
		}
		k.ThetaX, k.ThetaY = tx1, ty1
		k.Iterations = i
		k.Residual = math.Max(math.Abs(x1), math.Abs(y1))
		if k.Residual <= tol {
			return k, nil
		}
		tx0, tx1, x0 = secantStep(tx0, tx1, x0, x1)
		ty0, ty1, y0 = secantStep(ty0, ty1, y0, y1)
	}
	return k, fmt.Errorf("%w: residual %.3g mm after %d iterations", ErrNoConvergence, k.Residual, k.Iterations)
}

// secantStep advances one plane. A flat response keeps the candidate in
// place instead of dividing by zero.
func secantStep(t0, t1, f0, f1 float64) (float64, float64, float64) {
	df := f1 - f0
	if df == 0 {
		return t1, t1, f1
	}
	return t1, t1 - f1*(t1-t0)/df, f1
}
