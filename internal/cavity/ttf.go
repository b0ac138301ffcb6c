// Package cavity models RF cavities through their fitted thin-lens data:
// transit-time-factor polynomials per sub-element, a synchronous phase fit,
// and the ordered kick sequence those feed. No 3-D field integration
// happens here; everything rides on coefficients fitted offline.
package cavity

import (
	"fmt"
	"math"
)

// TTFDegree is the transit-time polynomial degree.
const TTFDegree = 9

// TTF holds the ten coefficients of a 9th-degree transit-time polynomial
// in the phase-velocity factor k, highest power first.
type TTF [TTFDegree + 1]float64

// Eval evaluates the polynomial at k (1/mm) by Horner's rule.
func (t TTF) Eval(k float64) float64 {
	s := 0.0
	for _, c := range t {
		s = s*k + c
	}
	return s
}

// SyncFit computes the phase-transfer correction phi_c from the reference
// kinetic energy. Two fits exist: a three-coefficient sinusoidal model
// p0*E^p1 + p2, and a multi-term model in powers of the drive
// normalization g, five coefficients per term. The multi-term model is
// only legal with a reference normalization.
type SyncFit struct {
	Coef    []float64
	RefNorm float64
}

// Complex reports whether the multi-term fit is active.
func (s SyncFit) Complex() bool { return len(s.Coef) > 3 && s.RefNorm > 0 }

// Validate checks the coefficient arity against the active mode.
func (s SyncFit) Validate() error {
	switch {
	case len(s.Coef) == 0:
		return fmt.Errorf("beamsim: cavity has no synchronous phase fit")
	case len(s.Coef) == 3:
		return nil
	case len(s.Coef)%5 == 0:
		if s.RefNorm <= 0 {
			return fmt.Errorf("beamsim: multi-term phase fit requires RefNorm")
		}
		return nil
	default:
		return fmt.Errorf("beamsim: phase fit needs 3 or a multiple of 5 coefficients, got %d", len(s.Coef))
	}
}

// PhiC returns the phase correction in rad for kinetic energy ek (MeV/u)
// and drive normalization g.
func (s SyncFit) PhiC(ek, g float64) float64 {
	if !s.Complex() {
		return s.Coef[0]*math.Pow(ek, s.Coef[1]) + s.Coef[2]
	}
	sum := 0.0
	gi := 1.0
	for i := 0; i+4 < len(s.Coef); i += 5 {
		term := s.Coef[i]*math.Pow(ek, s.Coef[i+1]) +
			s.Coef[i+2]*math.Log(ek) +
			s.Coef[i+3]*math.Exp(ek) +
			s.Coef[i+4]
		sum += term * gi
		gi *= g
	}
	return sum
}
