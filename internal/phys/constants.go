// Package phys holds physical constants and the relativistic kinematics
// helpers shared across the transport engine. Energies are per nucleon in
// eV/u unless noted, lengths in the transfer matrices are millimeters.
package phys

const (
	// C0 is the speed of light in m/s.
	C0 = 2.99792458e8

	// AMU is the atomic mass unit in eV/u, the default ion rest energy.
	AMU = 931.49432e6

	// MtoMM converts meters to millimeters.
	MtoMM = 1e3

	// MeVtoEV converts MeV to eV.
	MeVtoEV = 1e6

	// SampleFreqDefault is the reference RF sample frequency in Hz.
	SampleFreqDefault = 80.5e6
)
