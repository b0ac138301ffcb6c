package lattice

import (
	"fmt"
	"sort"
)

// Element is one beamline component. Properties live in a typed map checked
// against the per-kind schema, so the propagator can trust what it reads.
type Element struct {
	Name string
	Kind Kind

	props map[string]Value
	gen   uint64
}

// NewElement validates props against the kind schema and builds the
// element. Defaults are not materialized into the map; accessors apply
// them, which keeps serialization faithful to what was written.
func NewElement(name string, kind Kind, props map[string]Value) (*Element, error) {
	sch, ok := schemas[kind]
	if !ok {
		return nil, &ParameterError{Element: name, Kind: kind, Reason: "unknown element kind"}
	}
	e := &Element{Name: name, Kind: kind, props: make(map[string]Value, len(props))}
	for k, v := range props {
		spec, ok := sch.params[k]
		if !ok {
			return nil, &ParameterError{Element: name, Kind: kind, Key: k,
				Reason: "not a parameter of this element kind"}
		}
		if err := checkType(name, kind, k, spec, v); err != nil {
			return nil, err
		}
		e.props[k] = CloneValue(v)
	}
	for k, spec := range sch.params {
		if spec.required {
			if _, ok := e.props[k]; !ok {
				return nil, &ParameterError{Element: name, Kind: kind, Key: k,
					Reason: "required parameter missing"}
			}
		}
	}
	if sch.check != nil {
		if err := sch.check(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func checkType(name string, kind Kind, key string, spec paramSpec, v Value) error {
	var ok bool
	switch spec.typ {
	case paramFloat:
		_, ok = AsFloat(v)
	case paramVector:
		_, ok = AsVector(v)
	case paramString:
		_, ok = AsString(v)
	}
	if !ok {
		return &ParameterError{Element: name, Kind: kind, Key: key,
			Reason: fmt.Sprintf("expects a %s, got %s", spec.typ, valueTypeName(v))}
	}
	return nil
}

// Float returns the scalar parameter, falling back to the schema default.
func (e *Element) Float(key string) float64 {
	if v, ok := e.props[key]; ok {
		if f, ok := AsFloat(v); ok {
			return f
		}
	}
	if spec, ok := schemas[e.Kind].params[key]; ok && spec.def != nil {
		if f, ok := AsFloat(spec.def); ok {
			return f
		}
	}
	return 0
}

// Vector returns the vector parameter or nil. Callers must not mutate it.
func (e *Element) Vector(key string) []float64 {
	if v, ok := e.props[key]; ok {
		if s, ok := AsVector(v); ok {
			return s
		}
	}
	return nil
}

// Str returns the string parameter, falling back to the schema default.
func (e *Element) Str(key string) string {
	if v, ok := e.props[key]; ok {
		if s, ok := AsString(v); ok {
			return s
		}
	}
	if spec, ok := schemas[e.Kind].params[key]; ok && spec.def != nil {
		if s, ok := AsString(spec.def); ok {
			return s
		}
	}
	return ""
}

func (e *Element) Has(key string) bool {
	_, ok := e.props[key]
	return ok
}

// Length returns the element length in meters.
func (e *Element) Length() float64 { return e.Float("L") }

// Misalignment returns the rigid-body offsets: dx, dy in meters, pitch,
// yaw, roll in radians.
func (e *Element) Misalignment() (dx, dy, pitch, yaw, roll float64) {
	return e.Float("dx"), e.Float("dy"), e.Float("pitch"), e.Float("yaw"), e.Float("roll")
}

// Misaligned reports whether any rigid-body offset is set and non-zero.
func (e *Element) Misaligned() bool {
	dx, dy, pitch, yaw, roll := e.Misalignment()
	return dx != 0 || dy != 0 || pitch != 0 || yaw != 0 || roll != 0
}

// Generation counts applied parameter changes. Transfer matrix caches key
// on it to notice reconfiguration.
func (e *Element) Generation() uint64 { return e.gen }

// Keys returns the set parameter names, sorted.
func (e *Element) Keys() []string {
	keys := make([]string, 0, len(e.props))
	for k := range e.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Params returns a deep copy of the set parameters.
func (e *Element) Params() map[string]Value {
	out := make(map[string]Value, len(e.props))
	for k, v := range e.props {
		out[k] = CloneValue(v)
	}
	return out
}

// Set applies a batch of parameter changes. Validation runs against a
// scratch copy first, so a rejected batch leaves the element untouched.
func (e *Element) Set(changes map[string]Value) error {
	if len(changes) == 0 {
		return nil
	}
	sch := schemas[e.Kind]
	trial := e.shallowTrial()
	for k, v := range changes {
		spec, ok := sch.params[k]
		if !ok {
			return &ParameterError{Element: e.Name, Kind: e.Kind, Key: k,
				Reason: "not a parameter of this element kind"}
		}
		if err := checkType(e.Name, e.Kind, k, spec, v); err != nil {
			return err
		}
		trial.props[k] = CloneValue(v)
	}
	if sch.check != nil {
		if err := sch.check(trial); err != nil {
			return err
		}
	}
	e.props = trial.props
	e.gen++
	return nil
}

func (e *Element) shallowTrial() *Element {
	t := &Element{Name: e.Name, Kind: e.Kind, props: make(map[string]Value, len(e.props))}
	for k, v := range e.props {
		t.props[k] = v
	}
	return t
}

// Clone returns an independent copy with the generation counter reset.
func (e *Element) Clone() *Element {
	c := &Element{Name: e.Name, Kind: e.Kind, props: make(map[string]Value, len(e.props))}
	for k, v := range e.props {
		c.props[k] = CloneValue(v)
	}
	return c
}

func (e *Element) String() string {
	return fmt.Sprintf("%s(%s)", e.Name, e.Kind)
}
