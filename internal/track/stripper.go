package track

import (
	"fmt"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/optics"
)

// stripState rebuilds the charge-state set behind a stripper foil. Species
// that survive into the new set keep their moments; new species start from
// the incoming beam's combined centroid and envelope. The reference
// particle switches to the declared post-foil charge.
func stripState(e *lattice.Element, in *beam.State) (*beam.State, error) {
	newZs := e.Vector("IonChargeStates")
	if len(newZs) == 0 {
		return nil, fmt.Errorf("element %q: stripper has no outgoing charge states", e.Name)
	}

	weights, err := stripperWeights(e, in, newZs)
	if err != nil {
		return nil, err
	}

	// Seeds for species the incoming beam did not carry, taken before the
	// foil energy loss so the loss applies uniformly below.
	seed0 := in.Moment0Env()
	seed1 := in.Moment1Env()
	seedEk, seedPhis := in.Ref.IonEk, in.Ref.Phis
	if w := in.TotalWeight(); w > 0 {
		seedEk, seedPhis = 0, 0
		for idx := range in.States {
			cs := &in.States[idx]
			seedEk += cs.IonQ * cs.IonEk
			seedPhis += cs.IonQ * cs.Phis
		}
		seedEk /= w
		seedPhis /= w
	}

	drop := e.Float("Stripper_E1Para")
	out := &beam.State{
		Pos:          in.Pos,
		SampleLambda: in.SampleLambda,
		Ref:          in.Ref,
		LastCaviPhi0: in.LastCaviPhi0,
	}
	out.Ref.IonZ = e.Float("Stripper_IonZ")
	out.Ref.IonEk -= drop
	if out.Ref.IonEk <= 0 {
		return nil, fmt.Errorf("element %q: foil energy loss %g eV/u exceeds beam energy", e.Name, drop)
	}

	out.States = make([]beam.ChargeState, len(newZs))
	for i, z := range newZs {
		cs := &out.States[i]
		if old := in.Find(z); old != nil {
			cs.Particle = old.Particle
			cs.Moment0 = old.Moment0
			cs.Moment1 = old.Moment1
		} else {
			cs.Particle = beam.Particle{IonEk: seedEk, IonEs: in.Ref.IonEs, Phis: seedPhis}
			cs.Moment0 = seed0
			cs.Moment1 = seed1
		}
		cs.IonZ = z
		cs.IonQ = weights[i]
		cs.IonEk -= drop
	}
	return out, nil
}

func stripperWeights(e *lattice.Element, in *beam.State, newZs []float64) ([]float64, error) {
	switch model := e.Str("charge_model"); model {
	case "off":
		nch := e.Vector("NCharge")
		if len(nch) != len(newZs) {
			return nil, fmt.Errorf("element %q: %w: NCharge has %d entries for %d charge states",
				e.Name, lattice.ErrStripperWeights, len(nch), len(newZs))
		}
		return append([]float64(nil), nch...), nil
	case "baron":
		w := optics.BaronWeights(in.Ref.Beta(),
			e.Float("Stripper_IonMass"), e.Float("Stripper_IonProton"), newZs)
		total := in.TotalWeight()
		if total <= 0 {
			total = 1
		}
		for i := range w {
			w[i] *= total
		}
		return w, nil
	default:
		return nil, fmt.Errorf("element %q: unknown charge model %q", e.Name, model)
	}
}
