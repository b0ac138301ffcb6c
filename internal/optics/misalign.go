package optics

import (
	"math"

	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

// RotateXY returns the phase-space rotation about the beam axis by angle
// theta in radians. Positive theta turns x toward y.
func RotateXY(theta float64) linalg.Mat {
	c, s := math.Cos(theta), math.Sin(theta)
	m := linalg.Identity()
	m[0][0], m[0][2] = c, s
	m[2][0], m[2][2] = -s, c
	m[1][1], m[1][3] = c, s
	m[3][1], m[3][3] = -s, c
	return m
}

// Frames returns the entry and exit frame transforms of a misaligned
// element. ok is false when every offset is zero and the frames are
// identity.
func Frames(e *lattice.Element) (in, out linalg.Mat, ok bool) {
	if !e.Misaligned() {
		return linalg.Identity(), linalg.Identity(), false
	}
	dx, dy, pitch, yaw, roll := e.Misalignment()

	in = linalg.Identity()
	in[0][6] = -dx * phys.MtoMM
	in[2][6] = -dy * phys.MtoMM
	in[1][6] = -yaw
	in[3][6] = -pitch
	if roll != 0 {
		in = RotateXY(roll).Mul(in)
	}
	out, err := in.Inverse()
	if err != nil {
		// Rotations and translations are always invertible.
		out = linalg.Identity()
	}
	return in, out, true
}

// Misalign wraps the body matrix with the element's rigid-body offsets:
// entering the element frame applies the translation and tilt, leaving
// applies the exact inverse, so zero offsets reproduce the body matrix.
func Misalign(e *lattice.Element, body linalg.Mat) linalg.Mat {
	in, out, ok := Frames(e)
	if !ok {
		return body
	}
	return out.Mul(body).Mul(in)
}
