package viz

import "github.com/san-kum/beamsim/internal/analysis"

// PhaseEllipse renders the rms ellipse of a Twiss triplet on a Braille
// canvas, with the phase-space axes drawn through the origin. width and
// height are in characters. Degenerate parameters yield an empty string.
func PhaseEllipse(tw analysis.Twiss, width, height int) string {
	pts := tw.Ellipse(4 * width)
	if len(pts) == 0 {
		return ""
	}

	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	c := NewCanvas(width, height)
	cw, ch := c.DotWidth(), c.DotHeight()
	toDot := func(p analysis.Point) (int, int) {
		x := int((p.X - minX) / rangeX * float64(cw-1))
		y := ch - 1 - int((p.Y-minY)/rangeY*float64(ch-1))
		return x, y
	}

	ox, oy := toDot(analysis.Point{})
	c.Line(0, oy, cw-1, oy)
	c.Line(ox, 0, ox, ch-1)

	px, py := toDot(pts[len(pts)-1])
	for _, p := range pts {
		x, y := toDot(p)
		c.Line(px, py, x, y)
		px, py = x, y
	}
	return c.String()
}
