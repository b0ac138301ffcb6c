package beam

import "github.com/san-kum/beamsim/internal/phys"

// Particle is the scalar kinematic record shared by the reference particle
// and every tracked charge state. IonZ is the charge-to-mass ratio in e/u
// and doubles as the identity key of a charge state. Energies are eV/u,
// phases radians.
type Particle struct {
	IonZ  float64
	IonQ  float64
	IonEk float64
	IonEs float64
	Phis  float64
}

// IonW returns the total energy per nucleon in eV/u.
func (p Particle) IonW() float64 { return p.IonEs + p.IonEk }

func (p Particle) Gamma() float64 { return phys.Gamma(p.IonEk, p.IonEs) }

func (p Particle) Beta() float64 { return phys.Beta(p.Gamma()) }

// BG returns beta*gamma.
func (p Particle) BG() float64 { return phys.BetaGamma(p.Gamma()) }

// Brho returns the magnetic rigidity in T*m.
func (p Particle) Brho() float64 { return phys.Brho(p.Beta(), p.IonW(), p.IonZ) }

// SampleIonK returns the longitudinal phase advance per mm for the RF
// sample wavelength lambda (mm).
func (p Particle) SampleIonK(lambda float64) float64 {
	return phys.WaveNumber(lambda, p.Beta())
}
