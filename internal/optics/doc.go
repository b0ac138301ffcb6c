// Package optics builds the first-order transfer matrices of beamline
// elements.
//
// Matrices act on the seven-component phase-space vector
// (x, x', y, y', phi, dEk, 1) with lengths in mm, angles in rad, phase in
// rad and energy deviation in MeV/u. The homogeneous seventh component lets
// dipole kicks and misalignment offsets ride in the last column.
//
// Each matrix is specific to one charge state: magnetic strengths scale
// with that state's rigidity, so a multi charge state beam sees a different
// matrix per state. The [Transfer] dispatcher covers every static element;
// RF cavities carry beam-dependent energy gain and live in the cavity
// package, charge strippers rewrite the charge state list and live in the
// track package.
package optics
