package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/beamsim/internal/linalg"
)

// ErrDegenerate reports an envelope block with no phase-space area.
var ErrDegenerate = errors.New("beamsim: degenerate envelope block")

// Plane selects one 2x2 block of the 7x7 envelope.
type Plane int

const (
	Horizontal Plane = iota // (x, x')
	Vertical                // (y, y')
	Longitudinal            // (phi, dEk)
)

func (p Plane) String() string {
	switch p {
	case Horizontal:
		return "x"
	case Vertical:
		return "y"
	case Longitudinal:
		return "z"
	}
	return fmt.Sprintf("Plane(%d)", int(p))
}

// Index returns the position row of the plane's block.
func (p Plane) Index() int { return 2 * int(p) }

// Twiss holds the Courant-Snyder parameters of one plane. Any block
// extracted from a real envelope satisfies Beta*Gamma - Alpha^2 == 1.
type Twiss struct {
	Alpha     float64
	Beta      float64 // mm/rad
	Gamma     float64 // rad/mm
	Emittance float64 // mm*rad, rms
}

// Extract computes the Twiss parameters of one plane from an envelope.
func Extract(sigma linalg.Mat, p Plane) (Twiss, error) {
	i := p.Index()
	s11, s12, s22 := sigma[i][i], sigma[i][i+1], sigma[i+1][i+1]
	det := s11*s22 - s12*s12
	if det <= 0 {
		return Twiss{}, fmt.Errorf("%w: %s determinant %g", ErrDegenerate, p, det)
	}
	eps := math.Sqrt(det)
	return Twiss{
		Alpha:     -s12 / eps,
		Beta:      s11 / eps,
		Gamma:     s22 / eps,
		Emittance: eps,
	}, nil
}

// Envelope builds the 2x2 block back from the Twiss parameters, placed
// in an otherwise zero envelope. Extract inverts it.
func (tw Twiss) Envelope(p Plane) linalg.Mat {
	i := p.Index()
	var m linalg.Mat
	m[i][i] = tw.Emittance * tw.Beta
	m[i][i+1] = -tw.Emittance * tw.Alpha
	m[i+1][i] = m[i][i+1]
	m[i+1][i+1] = tw.Emittance * tw.Gamma
	return m
}

// Point is one phase-space sample.
type Point struct {
	X, Y float64
}

// Ellipse samples n points of the rms ellipse
// gamma*x^2 + 2*alpha*x*x' + beta*x'^2 = emittance.
func (tw Twiss) Ellipse(n int) []Point {
	if n <= 0 || tw.Beta <= 0 || tw.Emittance <= 0 {
		return nil
	}
	pts := make([]Point, n)
	for k := range pts {
		th := 2 * math.Pi * float64(k) / float64(n)
		c, s := math.Cos(th), math.Sin(th)
		pts[k] = Point{
			X: math.Sqrt(tw.Emittance*tw.Beta) * c,
			Y: -math.Sqrt(tw.Emittance/tw.Beta) * (tw.Alpha*c + s),
		}
	}
	return pts
}

// Size returns the rms beam size of one plane, the square root of the
// position variance.
func Size(sigma linalg.Mat, p Plane) float64 {
	v := sigma[p.Index()][p.Index()]
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
