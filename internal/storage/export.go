package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/track"
)

var csvHeader = []string{
	"index", "name", "pos_m", "energy_ev_u", "phase_rad",
	"x_mm", "xp_rad", "y_mm", "yp_rad",
	"rms_x_mm", "rms_y_mm",
}

// WriteCSV writes one orbit/envelope row per history record.
func WriteCSV(w io.Writer, history []track.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range history {
		m0 := rec.State.Moment0Env()
		rms := rec.State.Moment0RMS()
		row := []string{
			strconv.Itoa(rec.Index),
			rec.Name,
			strconv.FormatFloat(rec.Pos, 'f', 6, 64),
			strconv.FormatFloat(rec.State.Ref.IonEk, 'f', 6, 64),
			strconv.FormatFloat(rec.State.Ref.Phis, 'f', 6, 64),
			strconv.FormatFloat(m0[beam.IndexX], 'f', 6, 64),
			strconv.FormatFloat(m0[beam.IndexPX], 'f', 6, 64),
			strconv.FormatFloat(m0[beam.IndexY], 'f', 6, 64),
			strconv.FormatFloat(m0[beam.IndexPY], 'f', 6, 64),
			strconv.FormatFloat(rms[beam.IndexX], 'f', 6, 64),
			strconv.FormatFloat(rms[beam.IndexY], 'f', 6, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the history to a file.
func ExportCSV(path string, history []track.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteCSV(f, history)
}

// ExportData is the JSON export layout: the run summary plus every
// snapshot in full.
type ExportData struct {
	Lattice string         `json:"lattice"`
	From    int            `json:"from"`
	To      int            `json:"to"`
	Steps   int            `json:"steps"`
	Records []track.Record `json:"records"`
}

// WriteJSON writes an indented full-snapshot export.
func WriteJSON(w io.Writer, lattice string, from, to int, res *track.Result) error {
	data := ExportData{
		Lattice: lattice,
		From:    from,
		To:      to,
		Steps:   res.Steps,
		Records: res.History,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportJSON writes the export to a file.
func ExportJSON(path, lattice string, from, to int, res *track.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteJSON(f, lattice, from, to, res)
}

// XY is one sample of a plotted curve.
type XY struct {
	X, Y float64
}

// TrajectorySVG renders samples as a single polyline on a dark canvas,
// scaled to the viewport with 10% padding. Fewer than two points yield an
// empty string.
func TrajectorySVG(points []XY, width, height int, stroke string) string {
	if len(points) < 2 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
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
	rangeX := maxX - minX
	rangeY := maxY - minY
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

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, stroke))

	for i, p := range points {
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}
