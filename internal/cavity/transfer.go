package cavity

import (
	"fmt"
	"math"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/optics"
	"github.com/san-kum/beamsim/internal/phys"
)

// Drive collects the lattice-level knobs of one cavity instance.
type Drive struct {
	Freq       float64 // RF frequency, Hz
	PhiDeg     float64 // synchronous phase, deg
	Scl        float64 // field amplitude scale
	SampleFreq float64 // Hz, for the harmonic number and phase bookkeeping
	MpoleLevel int
}

// Result is one particle's pass through a cavity.
type Result struct {
	M         linalg.Mat
	DeltaEk   float64 // energy gain, eV/u
	PhaseAdv  float64 // absolute phase advance at the sample frequency, rad
	DrivenDeg float64 // driven phase, deg
	Warnings  []string
}

// Transfer walks the thin-lens model for one particle. The particle's
// energy evolves through the acceleration gaps, so later segments see
// refreshed wave numbers. The matrix uses the cavity wave number for the
// longitudinal pair; transverse kicks follow the multipole level.
func (mod *Model) Transfer(d Drive, p beam.Particle) (Result, error) {
	if d.Freq <= 0 {
		return Result{}, fmt.Errorf("beamsim: cavity %q has no RF frequency", mod.Name)
	}
	if d.SampleFreq <= 0 {
		return Result{}, fmt.Errorf("beamsim: cavity %q needs a sample frequency", mod.Name)
	}

	var res Result
	ekMeV := p.IonEk / phys.MeVtoEV
	if lim := mod.EnergyLimit; lim != [2]float64{} && (ekMeV < lim[0] || ekMeV > lim[1]) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("energy %.6g MeV/u outside fit range [%g, %g], extrapolating", ekMeV, lim[0], lim[1]))
	}
	g := 0.0
	norm := d.Scl
	if mod.Fit.RefNorm > 0 {
		g = d.Scl * p.IonZ / mod.Fit.RefNorm
		norm = g
	}
	if lim := mod.NormLimit; lim != [2]float64{} && (norm < lim[0] || norm > lim[1]) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("drive normalization %.6g outside fit range [%g, %g], extrapolating", norm, lim[0], lim[1]))
	}

	phiC := mod.Fit.PhiC(ekMeV, g)
	phiS := d.PhiDeg * math.Pi / 180
	phiD := phiS - phiC - d.Freq/d.SampleFreq*p.Phis
	res.DrivenDeg = phiD * 180 / math.Pi

	w := walker{
		cur:    p,
		m:      linalg.Identity(),
		phi:    phiD,
		scl:    d.Scl,
		lamCav: phys.SampleLambda(d.Freq),
		lamSmp: phys.SampleLambda(d.SampleFreq),
	}
	for _, seg := range gate(mod.Segments, d.MpoleLevel) {
		if err := w.step(seg, mod.Name); err != nil {
			return Result{}, err
		}
	}

	res.M = w.m
	res.DeltaEk = w.cur.IonEk - p.IonEk
	res.PhaseAdv = w.adv
	return res, nil
}

// walker carries the evolving particle and composed matrix through the
// segment list.
type walker struct {
	cur    beam.Particle
	m      linalg.Mat
	phi    float64 // local cavity phase, rad
	adv    float64 // accumulated sample phase, rad
	scl    float64
	lamCav float64 // mm
	lamSmp float64 // mm
}

// gate rewrites gated-out kicks as plain drifts so their length is kept.
func gate(segs []Segment, level int) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if !levelAllows(level, s.Kind) {
			out = append(out, Segment{Name: s.Name, Kind: SegDrift, Length: s.Length})
			continue
		}
		out = append(out, s)
	}
	return out
}

func levelAllows(level int, k SegKind) bool {
	switch k {
	case SegDrift, SegAccGap:
		return true
	case SegEDipole, SegHMono:
		return level >= 1
	default:
		return level >= 2
	}
}

func (w *walker) step(seg Segment, name string) error {
	if seg.Kind == SegDrift {
		w.drift(seg.Length)
		return nil
	}
	w.drift(seg.Length / 2)
	if err := w.kick(seg, name); err != nil {
		return err
	}
	w.drift(seg.Length / 2)
	return nil
}

func (w *walker) drift(length float64) {
	if length == 0 {
		return
	}
	lmm := length * phys.MtoMM
	w.m = optics.Drift(length, optics.Env{Lambda: w.lamCav}, w.cur).Mul(w.m)
	beta := w.cur.Beta()
	w.phi += phys.WaveNumber(w.lamCav, beta) * lmm
	w.adv += phys.WaveNumber(w.lamSmp, beta) * lmm
}

func (w *walker) kick(seg Segment, name string) error {
	k := phys.WaveNumber(w.lamCav, w.cur.Beta())
	t := seg.T.Eval(k)
	s := seg.S.Eval(k)
	sin, cos := math.Sincos(w.phi)
	amp := w.cur.IonZ * seg.V0 * w.scl // eV/u at unit transit time

	gamma := w.cur.Gamma()
	beta := w.cur.Beta()
	rigid := beta * beta * gamma * w.cur.IonEs // eV/u

	kick := linalg.Identity()
	switch seg.Kind {
	case SegAccGap:
		dw := amp * (t*cos - s*sin)
		kick[5][4] = -amp * k * (t*sin + s*cos) / phys.MeVtoEV
		w.cur.IonEk += dw
		if w.cur.IonEk <= 0 {
			return fmt.Errorf("beamsim: cavity %q gap %q drove kinetic energy to %g eV/u",
				name, seg.Name, w.cur.IonEk)
		}
	case SegEFocus:
		gE := amp * k * (t*sin + s*cos) / (2 * rigid)
		kick[1][0] = -gE
		kick[3][2] = -gE
	case SegEQuad:
		gE := amp * k * (t*sin + s*cos) / (2 * rigid)
		kick[1][0] = -gE
		kick[3][2] = gE
	case SegEDipole:
		kick[1][6] = amp * (t*cos - s*sin) / rigid
	case SegHMono:
		kick[3][6] = amp * beta * (t*cos - s*sin) / rigid
	case SegHFocus:
		gB := amp * k * beta * (t*cos - s*sin) / (2 * rigid)
		kick[1][0] = -gB
		kick[3][2] = -gB
	case SegHQuad:
		gB := amp * k * beta * (t*cos - s*sin) / (2 * rigid)
		kick[1][0] = -gB
		kick[3][2] = gB
	default:
		return fmt.Errorf("beamsim: cavity %q segment %q has unexpected kind %v", name, seg.Name, seg.Kind)
	}
	w.m = kick.Mul(w.m)
	return nil
}
