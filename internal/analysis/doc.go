// Package analysis extracts beam-quality figures from envelopes and run
// histories.
//
//   - [Extract]: Courant-Snyder (Twiss) parameters of one plane
//   - [Twiss.Envelope]: rebuild the envelope block from Twiss parameters
//   - [Twiss.Ellipse]: sample the rms phase-space ellipse
//   - [Metric]: history accumulators (max envelope, energy gain,
//     centroid drift)
//
// # Emittance
//
// The rms emittance is the phase-space area of one 2x2 envelope block:
//
//	tw, err := analysis.Extract(s.Moment1Env(), analysis.Horizontal)
//	if err == nil {
//	    fmt.Println(tw.Emittance)
//	}
package analysis
