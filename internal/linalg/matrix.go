// Package linalg provides the fixed-size vector and matrix arithmetic used
// by the beam transport engine.
//
// Phase space is seven dimensional: horizontal position and angle, vertical
// position and angle, longitudinal phase, kinetic energy deviation, and a
// constant homogeneous component that lets transfer matrices carry
// translations. Vec and Mat are value types so that snapshots of beam
// moments are cheap and never alias.
package linalg

import (
	"errors"
	"fmt"
	"math"
)

// Dim is the phase-space dimension including the homogeneous component.
const Dim = 7

type Vec [Dim]float64

type Mat [Dim][Dim]float64

var ErrSingular = errors.New("beamsim: singular matrix")

// Identity returns the identity transfer matrix.
func Identity() Mat {
	var m Mat
	for i := 0; i < Dim; i++ {
		m[i][i] = 1
	}
	return m
}

// VecFromSlice builds a Vec from exactly Dim values.
func VecFromSlice(vals []float64) (Vec, error) {
	var v Vec
	if len(vals) != Dim {
		return v, fmt.Errorf("vector needs %d values, got %d", Dim, len(vals))
	}
	copy(v[:], vals)
	return v, nil
}

// MatFromSlice builds a Mat from exactly Dim*Dim values in row-major order.
func MatFromSlice(vals []float64) (Mat, error) {
	var m Mat
	if len(vals) != Dim*Dim {
		return m, fmt.Errorf("matrix needs %d values, got %d", Dim*Dim, len(vals))
	}
	for i := 0; i < Dim; i++ {
		copy(m[i][:], vals[i*Dim:(i+1)*Dim])
	}
	return m, nil
}

func (v Vec) Add(o Vec) Vec {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

func (v Vec) Sub(o Vec) Vec {
	for i := range v {
		v[i] -= o[i]
	}
	return v
}

func (v Vec) Scale(f float64) Vec {
	for i := range v {
		v[i] *= f
	}
	return v
}

// Outer returns the outer product v*o^T.
func (v Vec) Outer(o Vec) Mat {
	var m Mat
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			m[i][j] = v[i] * o[j]
		}
	}
	return m
}

func (v Vec) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (m Mat) Add(o Mat) Mat {
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			m[i][j] += o[i][j]
		}
	}
	return m
}

func (m Mat) Scale(f float64) Mat {
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			m[i][j] *= f
		}
	}
	return m
}

// Mul returns the matrix product m*o.
func (m Mat) Mul(o Mat) Mat {
	var r Mat
	for i := 0; i < Dim; i++ {
		for k := 0; k < Dim; k++ {
			a := m[i][k]
			if a == 0 {
				continue
			}
			for j := 0; j < Dim; j++ {
				r[i][j] += a * o[k][j]
			}
		}
	}
	return r
}

// MulVec returns m*v.
func (m Mat) MulVec(v Vec) Vec {
	var r Vec
	for i := 0; i < Dim; i++ {
		s := 0.0
		for j := 0; j < Dim; j++ {
			s += m[i][j] * v[j]
		}
		r[i] = s
	}
	return r
}

func (m Mat) Transpose() Mat {
	var r Mat
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			r[j][i] = m[i][j]
		}
	}
	return r
}

// Conjugate returns m*s*m^T, the congruence transform that advances a
// second-moment matrix through the transfer matrix m.
func (m Mat) Conjugate(s Mat) Mat {
	return m.Mul(s).Mul(m.Transpose())
}

// Diagonal returns the main diagonal of m.
func (m Mat) Diagonal() Vec {
	var v Vec
	for i := 0; i < Dim; i++ {
		v[i] = m[i][i]
	}
	return v
}

func (m Mat) IsValid() bool {
	for i := range m {
		for _, x := range m[i] {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}

// Inverse computes the matrix inverse by Gauss-Jordan elimination with
// partial pivoting. Returns ErrSingular when no pivot can be found.
func (m Mat) Inverse() (Mat, error) {
	a := m
	inv := Identity()
	for col := 0; col < Dim; col++ {
		pivot := col
		for r := col + 1; r < Dim; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-300 {
			return Mat{}, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		d := 1 / a[col][col]
		for j := 0; j < Dim; j++ {
			a[col][j] *= d
			inv[col][j] *= d
		}
		for r := 0; r < Dim; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for j := 0; j < Dim; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv, nil
}

// VecApproxEqual reports whether every component of a and b agrees within tol.
func VecApproxEqual(a, b Vec, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// MatApproxEqual reports whether every entry of a and b agrees within tol.
func MatApproxEqual(a, b Mat, tol float64) bool {
	for i := range a {
		for j := range a[i] {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
