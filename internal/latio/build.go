package latio

import (
	"fmt"
	"strconv"

	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
)

// FloatGlobal reads a numeric global, accepting a quoted number for the
// integer-mode switches some files write as strings.
func (d *Document) FloatGlobal(name string) (float64, bool) {
	a := d.Global(name)
	if a == nil {
		return 0, false
	}
	switch v := a.Val.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// VectorGlobal reads a vector global.
func (d *Document) VectorGlobal(name string) ([]float64, bool) {
	a := d.Global(name)
	if a == nil {
		return nil, false
	}
	v, ok := lattice.AsVector(a.Val)
	return v, ok
}

// StringGlobal reads a string global.
func (d *Document) StringGlobal(name string) (string, bool) {
	a := d.Global(name)
	if a == nil {
		return "", false
	}
	v, ok := lattice.AsString(a.Val)
	return v, ok
}

// Globals the builder interprets; everything else lands in Extra.
var builderGlobals = map[string]bool{
	"sim_type": true, "IonEs": true, "IonEk": true,
	"IonChargeStates": true, "NCharge": true, "SampleFreq": true,
	"MpoleLevel": true, "HdipoleFitMode": true, "Eng_Data_Dir": true,
}

// Build interprets a parsed document as a beamline. The USE statement
// selects the expanded line; when absent, the last line definition wins.
// Repeated references share a single element record, so reconfiguring a
// repeated element applies at every occurrence.
func Build(doc *Document) (*lattice.Lattice, error) {
	lat := lattice.New()

	if v, ok := doc.FloatGlobal("IonEs"); ok {
		lat.IonEs = v
	}
	if v, ok := doc.FloatGlobal("IonEk"); ok {
		lat.IonEk = v
	}
	if v, ok := doc.FloatGlobal("SampleFreq"); ok {
		lat.SampleFreq = v
	}
	if v, ok := doc.FloatGlobal("MpoleLevel"); ok {
		lat.MpoleLevel = int(v)
	}
	if v, ok := doc.FloatGlobal("HdipoleFitMode"); ok {
		lat.HdipoleFitMode = int(v)
	}
	if v, ok := doc.StringGlobal("Eng_Data_Dir"); ok {
		lat.DataDir = v
	}
	if v, ok := doc.VectorGlobal("IonChargeStates"); ok {
		lat.IonZs = append([]float64(nil), v...)
	}
	if v, ok := doc.VectorGlobal("NCharge"); ok {
		lat.NCharge = append([]float64(nil), v...)
	}

	use := doc.Use
	if use == "" {
		if len(doc.Lines) == 0 {
			return nil, fmt.Errorf("beamsim: lattice defines no line")
		}
		use = doc.Lines[len(doc.Lines)-1].Name
	}

	built := make(map[string]*lattice.Element)
	var vecVar, matVar string
	var expand func(name string, seen map[string]bool) error
	expand = func(name string, seen map[string]bool) error {
		if line := doc.LineByName(name); line != nil {
			if seen[name] {
				return fmt.Errorf("line %d: line %q references itself", line.Line, name)
			}
			seen[name] = true
			for _, ref := range line.Refs {
				if err := expand(ref, seen); err != nil {
					return err
				}
			}
			delete(seen, name)
			return nil
		}

		e, ok := built[name]
		if !ok {
			def := doc.Element(name)
			if def == nil {
				return fmt.Errorf("beamsim: line %q references undefined element %q", use, name)
			}
			kind, known := lattice.ParseKind(def.Type)
			if !known {
				return fmt.Errorf("line %d: element %q has unknown type %q", def.Line, name, def.Type)
			}
			props := make(map[string]lattice.Value, len(def.Props))
			for _, a := range def.Props {
				props[a.Name] = a.Val
			}
			var err error
			e, err = lattice.NewElement(name, kind, props)
			if err != nil {
				return fmt.Errorf("line %d: %w", def.Line, err)
			}
			built[name] = e
			if kind == lattice.KindSource {
				vecVar = e.Str("vector_variable")
				matVar = e.Str("matrix_variable")
			}
		}
		lat.Elements = append(lat.Elements, e)
		return nil
	}
	if err := expand(use, map[string]bool{}); err != nil {
		return nil, err
	}
	lat.Name = use

	// Initial moments: P0, P1, ... and S0, S1, ... per charge state.
	if vecVar == "" {
		vecVar = "P"
	}
	if matVar == "" {
		matVar = "S"
	}
	for i := range lat.IonZs {
		v, ok := doc.VectorGlobal(fmt.Sprintf("%s%d", vecVar, i))
		if !ok {
			if i == 0 {
				break
			}
			return nil, fmt.Errorf("beamsim: initial centroid %s%d missing", vecVar, i)
		}
		vec, err := linalg.VecFromSlice(v)
		if err != nil {
			return nil, fmt.Errorf("beamsim: initial centroid %s%d: %w", vecVar, i, err)
		}
		lat.Moment0 = append(lat.Moment0, vec)
	}
	for i := range lat.IonZs {
		v, ok := doc.VectorGlobal(fmt.Sprintf("%s%d", matVar, i))
		if !ok {
			if i == 0 {
				break
			}
			return nil, fmt.Errorf("beamsim: initial envelope %s%d missing", matVar, i)
		}
		m, err := linalg.MatFromSlice(v)
		if err != nil {
			return nil, fmt.Errorf("beamsim: initial envelope %s%d: %w", matVar, i, err)
		}
		lat.Moment1 = append(lat.Moment1, m)
	}

	for _, a := range doc.Globals {
		if builderGlobals[a.Name] || isMomentGlobal(a.Name, vecVar, matVar) {
			continue
		}
		lat.Extra[a.Name] = lattice.CloneValue(a.Val)
	}

	if err := lat.Validate(); err != nil {
		return nil, err
	}
	return lat, nil
}

func isMomentGlobal(name, vecVar, matVar string) bool {
	trailingDigits := func(s, prefix string) bool {
		if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
			return false
		}
		for _, c := range s[len(prefix):] {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	}
	return trailingDigits(name, vecVar) || trailingDigits(name, matVar)
}

// Load parses and builds in one step.
func Load(src []byte) (*lattice.Lattice, error) {
	doc, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}
