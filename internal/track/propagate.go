// Package track advances a beam state element by element through a
// lattice: per-charge-state transfer matrices for static elements, the
// thin-lens walk for RF cavities, charge-set surgery for strippers, and a
// segment runner with history capture on top.
package track

import (
	"fmt"
	"sync"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/cavity"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/optics"
	"github.com/san-kum/beamsim/internal/phys"
)

// Propagator steps beam states through single elements. Transfer matrices
// of static elements are cached; the cache keys carry the element
// generation and the particle energy, so reconfiguration and acceleration
// both invalidate naturally.
type Propagator struct {
	lat    *lattice.Lattice
	loader *cavity.Loader
	pool   statePool

	mu      sync.Mutex
	cache   map[transferKey]linalg.Mat
	version uint64
}

type transferKey struct {
	index int
	gen   uint64
	ionZ  float64
	ionEk float64
}

func NewPropagator(lat *lattice.Lattice) *Propagator {
	return &Propagator{
		lat:     lat,
		loader:  cavity.NewLoader(),
		cache:   make(map[transferKey]linalg.Mat),
		version: lat.Version(),
	}
}

// Propagate carries the state through element i and returns the new state.
// The input is never mutated; strippers may change the charge-state count.
func (p *Propagator) Propagate(i int, in *beam.State) (*beam.State, []Warning, error) {
	e, err := p.lat.At(i)
	if err != nil {
		return nil, nil, err
	}
	p.syncVersion()

	switch e.Kind {
	case lattice.KindSource:
		out, err := InitialState(p.lat)
		if err != nil {
			return nil, nil, err
		}
		out.Pos = in.Pos
		return out, nil, nil
	case lattice.KindStripper:
		out, err := stripState(e, in)
		return out, nil, err
	case lattice.KindRFCavity:
		return p.cavityStep(i, e, in)
	case lattice.KindSextupole:
		out, err := p.sextupoleStep(e, in)
		return out, nil, err
	default:
		out, err := p.linearStep(i, e, in)
		return out, nil, err
	}
}

// Release returns a state obtained from Propagate to the snapshot pool.
// Never release a state that is still referenced.
func (p *Propagator) Release(s *beam.State) { p.pool.put(s) }

func (p *Propagator) syncVersion() {
	if v := p.lat.Version(); v != p.version {
		p.mu.Lock()
		p.cache = make(map[transferKey]linalg.Mat)
		p.version = v
		p.mu.Unlock()
	}
}

// clone copies the state through the pool so discarded snapshots recycle
// their charge-state slices.
func (p *Propagator) clone(in *beam.State) *beam.State {
	out := p.pool.get()
	states := out.States
	*out = *in
	out.States = append(states[:0], in.States...)
	return out
}

func (p *Propagator) env(in *beam.State) optics.Env {
	return optics.Env{
		Lambda:         in.SampleLambda,
		Ref:            in.Ref,
		HdipoleFitMode: p.lat.HdipoleFitMode,
	}
}

func (p *Propagator) linearStep(i int, e *lattice.Element, in *beam.State) (*beam.State, error) {
	out := p.clone(in)
	env := p.env(in)
	lmm := e.Length() * phys.MtoMM

	err := eachState(out, func(cs *beam.ChargeState) error {
		m, err := p.transfer(i, e, env, cs.Particle)
		if err != nil {
			return err
		}
		cs.Moment0 = m.MulVec(cs.Moment0)
		cs.Moment1 = m.Conjugate(cs.Moment1)
		cs.Phis += cs.SampleIonK(in.SampleLambda) * lmm
		return nil
	})
	if err != nil {
		p.Release(out)
		return nil, err
	}

	out.Ref.Phis += out.Ref.SampleIonK(in.SampleLambda) * lmm
	out.Pos += e.Length()
	return out, nil
}

func (p *Propagator) transfer(i int, e *lattice.Element, env optics.Env, part beam.Particle) (linalg.Mat, error) {
	key := transferKey{index: i, gen: e.Generation(), ionZ: part.IonZ, ionEk: part.IonEk}
	p.mu.Lock()
	m, ok := p.cache[key]
	p.mu.Unlock()
	if ok {
		return m, nil
	}

	m, err := optics.Transfer(e, env, part)
	if err != nil {
		return m, err
	}
	p.mu.Lock()
	p.cache[key] = m
	p.mu.Unlock()
	return m, nil
}

// sextupoleStep slices the magnet into thin drift-kick steps. The envelope
// sees only the drifts; the centroid picks up the nonlinear kick at each
// slice boundary when dstkick is set.
func (p *Propagator) sextupoleStep(e *lattice.Element, in *beam.State) (*beam.State, error) {
	out := p.clone(in)
	env := p.env(in)
	n := optics.SextSteps(e)
	ls := e.Length() / float64(n)
	lsmm := ls * phys.MtoMM
	lmm := e.Length() * phys.MtoMM
	kick := e.Float("dstkick") != 0
	fin, fout, mis := optics.Frames(e)

	err := eachState(out, func(cs *beam.ChargeState) error {
		if mis {
			cs.Moment0 = fin.MulVec(cs.Moment0)
			cs.Moment1 = fin.Conjugate(cs.Moment1)
		}
		k := optics.SextStrength(e, cs.Particle)
		d := optics.Drift(ls, env, cs.Particle)
		for s := 0; s < n; s++ {
			cs.Moment0 = d.MulVec(cs.Moment0)
			cs.Moment1 = d.Conjugate(cs.Moment1)
			if kick {
				dxp, dyp := optics.SextKick(k, lsmm, cs.Moment0[beam.IndexX], cs.Moment0[beam.IndexY])
				cs.Moment0[beam.IndexPX] += dxp
				cs.Moment0[beam.IndexPY] += dyp
			}
		}
		if mis {
			cs.Moment0 = fout.MulVec(cs.Moment0)
			cs.Moment1 = fout.Conjugate(cs.Moment1)
		}
		cs.Phis += cs.SampleIonK(in.SampleLambda) * lmm
		return nil
	})
	if err != nil {
		p.Release(out)
		return nil, err
	}

	out.Ref.Phis += out.Ref.SampleIonK(in.SampleLambda) * lmm
	out.Pos += e.Length()
	return out, nil
}

func (p *Propagator) cavityStep(i int, e *lattice.Element, in *beam.State) (*beam.State, []Warning, error) {
	model, err := p.loader.Load(p.lat.DataDir, e.Str("cavtype"), e.Str("datafile"))
	if err != nil {
		return nil, nil, err
	}
	if in.SampleLambda <= 0 {
		return nil, nil, fmt.Errorf("beamsim: state has no sample wavelength")
	}
	drive := cavity.Drive{
		Freq:       e.Float("f"),
		PhiDeg:     e.Float("phi"),
		Scl:        e.Float("scl_fac"),
		SampleFreq: phys.C0 * phys.MtoMM / in.SampleLambda,
		MpoleLevel: p.lat.MpoleLevel,
	}

	out := p.clone(in)
	var warns []Warning
	seen := make(map[string]bool)
	collect := func(msgs []string) {
		for _, m := range msgs {
			if !seen[m] {
				seen[m] = true
				warns = append(warns, Warning{Index: i, Element: e.Name, Message: m})
			}
		}
	}

	refRes, err := model.Transfer(drive, in.Ref)
	if err != nil {
		p.Release(out)
		return nil, nil, err
	}
	collect(refRes.Warnings)
	out.Ref.IonEk += refRes.DeltaEk
	out.Ref.Phis += refRes.PhaseAdv
	out.LastCaviPhi0 = refRes.DrivenDeg

	fin, fout, mis := optics.Frames(e)
	for idx := range out.States {
		cs := &out.States[idx]
		res, err := model.Transfer(drive, cs.Particle)
		if err != nil {
			p.Release(out)
			return nil, nil, fmt.Errorf("charge state %.6g: %w", cs.IonZ, err)
		}
		collect(res.Warnings)
		m := res.M
		if mis {
			m = fout.Mul(m).Mul(fin)
		}
		cs.Moment0 = m.MulVec(cs.Moment0)
		cs.Moment1 = m.Conjugate(cs.Moment1)
		cs.IonEk += res.DeltaEk
		cs.Phis += res.PhaseAdv
	}

	out.Pos += e.Length()
	return out, warns, nil
}
