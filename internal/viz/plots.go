package viz

import (
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/beamsim/internal/analysis"
	"github.com/san-kum/beamsim/internal/track"
)

// Series extracts one scalar per history record.
func Series(history []track.Record, f func(track.Record) float64) []float64 {
	out := make([]float64, len(history))
	for i, rec := range history {
		out[i] = f(rec)
	}
	return out
}

// EnvelopeSeries returns the rms beam size in mm along the line.
func EnvelopeSeries(history []track.Record, p analysis.Plane) []float64 {
	return Series(history, func(rec track.Record) float64 {
		return analysis.Size(rec.State.Moment1Env(), p)
	})
}

// OrbitSeries returns the weighted centroid coordinate along the line.
func OrbitSeries(history []track.Record, p analysis.Plane) []float64 {
	return Series(history, func(rec track.Record) float64 {
		return rec.State.Moment0Env()[p.Index()]
	})
}

// EnergySeries returns the reference kinetic energy in eV/u along the line.
func EnergySeries(history []track.Record) []float64 {
	return Series(history, func(rec track.Record) float64 {
		return rec.State.Ref.IonEk
	})
}

// PositionSeries returns the path position in m along the line.
func PositionSeries(history []track.Record) []float64 {
	return Series(history, func(rec track.Record) float64 {
		return rec.Pos
	})
}

// Plot renders a captioned line chart. Fewer than two samples yield an
// empty string.
func Plot(data []float64, caption string, width, height int) string {
	if len(data) < 2 {
		return ""
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
