package phys

import "math"

// Gamma returns the Lorentz factor for kinetic energy ek and rest energy es,
// both in eV/u.
func Gamma(ek, es float64) float64 {
	return 1 + ek/es
}

// Beta returns the velocity ratio v/c for a given Lorentz factor.
func Beta(gamma float64) float64 {
	return math.Sqrt(1 - 1/(gamma*gamma))
}

// BetaGamma returns beta*gamma for a given Lorentz factor.
func BetaGamma(gamma float64) float64 {
	return math.Sqrt(gamma*gamma - 1)
}

// Brho returns the magnetic rigidity in T*m. ionW is the total energy in
// eV/u and ionZ the charge-to-mass ratio in e/u.
func Brho(beta, ionW, ionZ float64) float64 {
	return beta * ionW / (C0 * ionZ)
}

// SampleLambda returns the RF sample wavelength in mm for frequency f in Hz.
func SampleLambda(f float64) float64 {
	return C0 / f * MtoMM
}

// WaveNumber returns 2*pi/(lambda*beta) in 1/mm, the phase advance per mm of
// path for a particle with velocity ratio beta.
func WaveNumber(lambda, beta float64) float64 {
	return 2 * math.Pi / (lambda * beta)
}
