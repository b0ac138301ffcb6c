package lattice

import (
	"fmt"
	"math"

	"github.com/san-kum/beamsim/internal/linalg"
)

type paramType int

const (
	paramFloat paramType = iota
	paramVector
	paramString
)

func (t paramType) String() string {
	switch t {
	case paramFloat:
		return "scalar"
	case paramVector:
		return "vector"
	case paramString:
		return "string"
	}
	return "unknown"
}

type paramSpec struct {
	typ      paramType
	required bool
	def      Value
}

type schema struct {
	params map[string]paramSpec
	check  func(e *Element) error
}

func fl(required bool, def float64) paramSpec {
	if required {
		return paramSpec{typ: paramFloat, required: true}
	}
	return paramSpec{typ: paramFloat, def: def}
}

func vec() paramSpec { return paramSpec{typ: paramVector} }

func str(def string) paramSpec { return paramSpec{typ: paramString, def: def} }

// alignable adds the rigid-body misalignment parameters and the aperture
// shared by every beamline element.
func alignable(params map[string]paramSpec) map[string]paramSpec {
	for _, k := range []string{"dx", "dy", "pitch", "yaw", "roll"} {
		params[k] = fl(false, 0)
	}
	params["aper"] = fl(false, 0)
	return params
}

var schemas map[Kind]schema

// The map is populated in init rather than a var initializer: the check
// functions call Element accessors that read schemas, which the compiler
// rejects as an initialization cycle.
func init() {
	schemas = map[Kind]schema{
		KindSource: {
			params: map[string]paramSpec{
				"vector_variable": str("P"),
				"matrix_variable": str("S"),
			},
		},
		KindMarker: {params: alignable(map[string]paramSpec{})},
		KindBPM:    {params: alignable(map[string]paramSpec{})},
		KindDrift: {
			params: alignable(map[string]paramSpec{
				"L": fl(true, 0),
			}),
			check: requirePositiveLength,
		},
		KindSolenoid: {
			params: alignable(map[string]paramSpec{
				"L":      fl(true, 0),
				"B":      fl(true, 0),
				"ncurve": fl(false, 0),
				"curve":  vec(),
			}),
			check: checkAll(requirePositiveLength, checkCurve),
		},
		KindQuadrupole: {
			params: alignable(map[string]paramSpec{
				"L":      fl(true, 0),
				"B2":     fl(true, 0),
				"ncurve": fl(false, 0),
				"curve":  vec(),
			}),
			check: checkAll(requirePositiveLength, checkCurve),
		},
		KindSextupole: {
			params: alignable(map[string]paramSpec{
				"L":       fl(true, 0),
				"B3":      fl(true, 0),
				"step":    fl(false, 1),
				"dstkick": fl(false, 1),
			}),
			check: checkAll(requirePositiveLength, checkSextStep),
		},
		KindEQuad: {
			params: alignable(map[string]paramSpec{
				"L":      fl(true, 0),
				"V":      fl(true, 0),
				"radius": fl(true, 0),
				"ncurve": fl(false, 0),
				"curve":  vec(),
			}),
			check: checkAll(requirePositiveLength, checkEQuadRadius, checkCurve),
		},
		KindSBend: {
			params: alignable(map[string]paramSpec{
				"L":    fl(true, 0),
				"phi":  fl(true, 0),
				"phi1": fl(false, 0),
				"phi2": fl(false, 0),
				"K":    fl(false, 0),
				"bg":   fl(false, 0),
			}),
			check: checkAll(requirePositiveLength, checkBendAngle),
		},
		KindEDipole: {
			params: alignable(map[string]paramSpec{
				"L":        fl(true, 0),
				"phi":      fl(true, 0),
				"beta":     fl(true, 0),
				"spher":    fl(false, 0),
				"fringe_x": fl(false, 0),
				"fringe_y": fl(false, 0),
				"asym_fac": fl(false, 0),
				"ver":      fl(false, 0),
			}),
			check: checkAll(requirePositiveLength, checkBendAngle, checkEDipoleBeta),
		},
		KindOrbTrim: {
			params: alignable(map[string]paramSpec{
				"L":        fl(false, 0),
				"theta_x":  fl(false, 0),
				"theta_y":  fl(false, 0),
				"realpara": fl(false, 0),
				"tm_xkick": fl(false, 0),
				"tm_ykick": fl(false, 0),
				"xyrotate": fl(false, 0),
			}),
		},
		KindStripper: {
			params: alignable(map[string]paramSpec{
				"IonChargeStates":    {typ: paramVector, required: true},
				"NCharge":            vec(),
				"charge_model":       str("baron"),
				"Stripper_IonZ":      fl(true, 0),
				"Stripper_IonMass":   fl(true, 0),
				"Stripper_IonProton": fl(true, 0),
				"Stripper_E1Para":    fl(false, 0),
			}),
			check: checkStripper,
		},
		KindTMatrix: {
			params: alignable(map[string]paramSpec{
				"matrix": {typ: paramVector, required: true},
			}),
			check: checkTMatrix,
		},
		KindRFCavity: {
			params: alignable(map[string]paramSpec{
				"L":        fl(true, 0),
				"cavtype":  {typ: paramString, required: true},
				"f":        fl(true, 0),
				"phi":      fl(true, 0),
				"scl_fac":  fl(true, 0),
				"datafile": str(""),
			}),
			check: checkAll(requirePositiveLength, checkCavity),
		},
	}
}

func checkAll(checks ...func(e *Element) error) func(e *Element) error {
	return func(e *Element) error {
		for _, c := range checks {
			if err := c(e); err != nil {
				return err
			}
		}
		return nil
	}
}

func requirePositiveLength(e *Element) error {
	if l := e.Float("L"); l < 0 || math.IsNaN(l) {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "L",
			Reason: fmt.Sprintf("length must be non-negative, got %v", l)}
	}
	return nil
}

func checkCurve(e *Element) error {
	n := int(e.Float("ncurve"))
	if n < 0 {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "ncurve",
			Reason: "must be non-negative"}
	}
	if n == 0 {
		return nil
	}
	curve := e.Vector("curve")
	if len(curve) < n {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "curve",
			Reason: fmt.Sprintf("needs at least ncurve=%d entries, got %d", n, len(curve))}
	}
	return nil
}

func checkSextStep(e *Element) error {
	if s := e.Float("step"); s < 1 {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "step",
			Reason: fmt.Sprintf("must be at least 1, got %v", s)}
	}
	return nil
}

func checkEQuadRadius(e *Element) error {
	if r := e.Float("radius"); r <= 0 {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "radius",
			Reason: fmt.Sprintf("must be positive, got %v", r)}
	}
	return nil
}

func checkBendAngle(e *Element) error {
	if phi := e.Float("phi"); phi == 0 {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "phi",
			Reason: "bend angle must be non-zero"}
	}
	return nil
}

func checkEDipoleBeta(e *Element) error {
	if b := e.Float("beta"); b <= 0 || b >= 1 {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "beta",
			Reason: fmt.Sprintf("design beta must be in (0,1), got %v", b)}
	}
	return nil
}

// checkStripper enforces the weight-list agreement for the fixed-weight
// charge model. Weights for the default model come from a fit, so NCharge
// is only consulted when charge_model is "off".
func checkStripper(e *Element) error {
	states := e.Vector("IonChargeStates")
	if len(states) == 0 {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "IonChargeStates",
			Reason: "needs at least one charge state"}
	}
	switch model := e.Str("charge_model"); model {
	case "baron":
		if e.Float("Stripper_IonMass") <= 0 {
			return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "Stripper_IonMass",
				Reason: "must be positive"}
		}
		if e.Float("Stripper_IonProton") <= 0 {
			return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "Stripper_IonProton",
				Reason: "must be positive"}
		}
	case "off":
		if got := len(e.Vector("NCharge")); got != len(states) {
			return fmt.Errorf("element %q: %w: NCharge has %d entries for %d charge states",
				e.Name, ErrStripperWeights, got, len(states))
		}
	default:
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "charge_model",
			Reason: fmt.Sprintf("unknown model %q", model)}
	}
	return nil
}

func checkTMatrix(e *Element) error {
	if got := len(e.Vector("matrix")); got != linalg.Dim*linalg.Dim {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "matrix",
			Reason: fmt.Sprintf("needs %d entries, got %d", linalg.Dim*linalg.Dim, got)}
	}
	return nil
}

func checkCavity(e *Element) error {
	if f := e.Float("f"); f <= 0 {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "f",
			Reason: fmt.Sprintf("frequency must be positive, got %v", f)}
	}
	if e.Str("cavtype") == "Generic" && e.Str("datafile") == "" {
		return &ParameterError{Element: e.Name, Kind: e.Kind, Key: "datafile",
			Reason: `required for cavtype "Generic"`}
	}
	return nil
}
