package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Shared styles for the CLI and the live view.
var (
	Header   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	Label    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	Value    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	Selected = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	Graph    = lipgloss.NewStyle().Foreground(lipgloss.Color("49"))
	Help     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	Good     = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// ProgressBar renders a fraction as a filled bar.
func ProgressBar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	return Header.Render(strings.Repeat("━", filled)) +
		Dim.Render(strings.Repeat("─", width-filled))
}

// Sparkline compresses a series into one row of block glyphs.
func Sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - lo) / rng * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}
