// Package viz renders run histories for the terminal.
//
// The package wraps asciigraph for longitudinal profiles and provides a
// Braille pixel canvas for phase-space ellipses:
//
//   - [Series] and friends: extract one scalar per history record
//   - [Plot]: captioned ASCII line chart
//   - [PhaseEllipse]: Braille rendering of a Twiss ellipse
//   - [Sparkline], [ProgressBar]: compact widgets for the live view
//
// Styles are exported so the CLI and the live TUI share one look.
package viz
