package viz

import "strings"

// Braille cells pack 2x4 dots per character, unicode offset 0x2800.
var brailleDots = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// Canvas is a Braille pixel buffer. Coordinates are sub-pixel: a canvas of
// w x h characters spans 2w x 4h dots with the origin top-left.
type Canvas struct {
	w, h  int
	cells [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{w: w, h: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

func (c *Canvas) DotWidth() int  { return c.w * 2 }
func (c *Canvas) DotHeight() int { return c.h * 4 }

// Set turns on the dot at sub-pixel (x, y). Out-of-range dots are dropped.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.w || row >= c.h {
		return
	}
	c.cells[row][col] |= brailleDots[y%4][x%2]
}

// Line draws a Bresenham line between two sub-pixel points.
func (c *Canvas) Line(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) Clear() {
	for i := range c.cells {
		for j := range c.cells[i] {
			c.cells[i][j] = 0x2800
		}
	}
}

func (c *Canvas) String() string {
	var sb strings.Builder
	for _, row := range c.cells {
		sb.WriteString(string(row))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
