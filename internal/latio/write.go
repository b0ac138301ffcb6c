package latio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/phys"
)

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatValue(v lattice.Value) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case string:
		return strconv.Quote(x)
	case []float64:
		var b strings.Builder
		b.WriteByte('[')
		for i, f := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatFloat(f))
		}
		b.WriteByte(']')
		return b.String()
	}
	return fmt.Sprintf("%v", v)
}

func writeGlobal(b *strings.Builder, name string, v lattice.Value) {
	fmt.Fprintf(b, "%s = %s;\n", name, formatValue(v))
}

// Generate renders the lattice from its current parameter values: globals,
// unique element definitions in first-use order, the line and USE. Distinct
// records sharing a name get a numeric suffix so references stay exact.
func Generate(lat *lattice.Lattice) []byte {
	var b strings.Builder

	simType := "MomentMatrix"
	if v, ok := lattice.AsString(lat.Extra["sim_type"]); ok {
		simType = v
	}
	writeGlobal(&b, "sim_type", simType)
	writeGlobal(&b, "MpoleLevel", float64(lat.MpoleLevel))
	writeGlobal(&b, "HdipoleFitMode", float64(lat.HdipoleFitMode))
	writeGlobal(&b, "IonEs", lat.IonEs)
	writeGlobal(&b, "IonEk", lat.IonEk)
	writeGlobal(&b, "IonChargeStates", lat.IonZs)
	writeGlobal(&b, "NCharge", lat.NCharge)
	writeGlobal(&b, "SampleFreq", lat.SampleFreq)
	if lat.DataDir != "" {
		writeGlobal(&b, "Eng_Data_Dir", lat.DataDir)
	}
	for i, m := range lat.Moment0 {
		writeGlobal(&b, fmt.Sprintf("P%d", i), m[:])
	}
	for i, m := range lat.Moment1 {
		flat := make([]float64, 0, linalg.Dim*linalg.Dim)
		for r := 0; r < linalg.Dim; r++ {
			flat = append(flat, m[r][:]...)
		}
		writeGlobal(&b, fmt.Sprintf("S%d", i), flat)
	}
	extraKeys := make([]string, 0, len(lat.Extra))
	for k := range lat.Extra {
		if k == "sim_type" {
			continue
		}
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		writeGlobal(&b, k, lat.Extra[k])
	}
	b.WriteByte('\n')

	names := uniqueNames(lat)
	emitted := map[*lattice.Element]bool{}
	for _, e := range lat.Elements {
		if emitted[e] {
			continue
		}
		emitted[e] = true
		writeElementDef(&b, names[e], e)
	}

	refs := make([]string, len(lat.Elements))
	for i, e := range lat.Elements {
		refs[i] = names[e]
	}
	line := lat.Name
	if line == "" {
		line = "cell"
	}
	fmt.Fprintf(&b, "\n%s: LINE = (%s);\n", line, strings.Join(refs, ", "))
	fmt.Fprintf(&b, "USE: %s;\n", line)
	return []byte(b.String())
}

func writeElementDef(b *strings.Builder, name string, e *lattice.Element) {
	fmt.Fprintf(b, "%s: %s", name, e.Kind)
	for _, k := range e.Keys() {
		fmt.Fprintf(b, ", %s = %s", k, formatValue(e.Params()[k]))
	}
	b.WriteString(";\n")
}

// uniqueNames assigns a stable serialization name per element record.
func uniqueNames(lat *lattice.Lattice) map[*lattice.Element]string {
	names := make(map[*lattice.Element]string, len(lat.Elements))
	used := map[string]int{}
	for _, e := range lat.Elements {
		if _, ok := names[e]; ok {
			continue
		}
		n := used[e.Name]
		used[e.Name] = n + 1
		if n == 0 {
			names[e] = e.Name
		} else {
			names[e] = fmt.Sprintf("%s_%d", e.Name, n+1)
		}
	}
	return names
}

// GenerateRange renders a sub-lattice covering elements [from, to). The
// source definition and the beam globals always come along so the result
// runs standalone.
func GenerateRange(lat *lattice.Lattice, from, to int) ([]byte, error) {
	if to < 0 || to > len(lat.Elements) {
		to = len(lat.Elements)
	}
	if from < 0 || from > to {
		return nil, fmt.Errorf("beamsim: bad element range [%d, %d)", from, to)
	}
	sub := lat.Clone()
	all := sub.Elements
	picked := append([]*lattice.Element(nil), all[from:to]...)
	if len(picked) == 0 || picked[0].Kind != lattice.KindSource {
		for _, e := range all {
			if e.Kind == lattice.KindSource {
				picked = append([]*lattice.Element{e}, picked...)
				break
			}
		}
	}
	sub.Elements = picked
	return Generate(sub), nil
}

// GenerateFrom substitutes changed element parameter values into the
// original text, leaving every untouched byte identical. Parameters the
// original lacks are appended to their element definition. Structural edits
// need Generate.
func GenerateFrom(lat *lattice.Lattice, original []byte) ([]byte, error) {
	doc, err := Parse(original)
	if err != nil {
		return nil, err
	}

	type edit struct {
		start, end int
		text       string
	}
	var edits []edit

	seen := map[*lattice.Element]bool{}
	for _, e := range lat.Elements {
		if seen[e] {
			continue
		}
		seen[e] = true
		def := doc.Element(e.Name)
		if def == nil {
			continue
		}
		have := map[string]*Assign{}
		for i := range def.Props {
			have[def.Props[i].Name] = &def.Props[i]
		}
		params := e.Params()
		for _, k := range e.Keys() {
			cur := params[k]
			if a, ok := have[k]; ok {
				if !valueEqual(a.Val, cur) {
					edits = append(edits, edit{a.Start, a.End, formatValue(cur)})
				}
			} else {
				edits = append(edits, edit{def.BodyEnd, def.BodyEnd,
					fmt.Sprintf(", %s = %s", k, formatValue(cur))})
			}
		}
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	pos := 0
	for _, ed := range edits {
		b.Write(original[pos:ed.start])
		b.WriteString(ed.text)
		pos = ed.end
	}
	b.Write(original[pos:])
	return []byte(b.String()), nil
}

func valueEqual(a, b lattice.Value) bool {
	switch x := a.(type) {
	case float64:
		y, ok := lattice.AsFloat(b)
		return ok && x == y
	case string:
		y, ok := lattice.AsString(b)
		return ok && x == y
	case []float64:
		y, ok := lattice.AsVector(b)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	}
	return false
}

// GenerateSource renders a one-element lattice whose source reproduces the
// given beam state, so a follow-up run starts exactly where this one ended.
func GenerateSource(s *beam.State) []byte {
	var b strings.Builder
	writeGlobal(&b, "sim_type", "MomentMatrix")
	writeGlobal(&b, "IonEs", s.Ref.IonEs)
	writeGlobal(&b, "IonEk", s.Ref.IonEk)
	if s.SampleLambda > 0 {
		writeGlobal(&b, "SampleFreq", phys.C0*phys.MtoMM/s.SampleLambda)
	}

	zs := make([]float64, len(s.States))
	qs := make([]float64, len(s.States))
	for i := range s.States {
		zs[i] = s.States[i].IonZ
		qs[i] = s.States[i].IonQ
	}
	writeGlobal(&b, "IonChargeStates", zs)
	writeGlobal(&b, "NCharge", qs)
	for i := range s.States {
		writeGlobal(&b, fmt.Sprintf("P%d", i), s.States[i].Moment0[:])
		flat := make([]float64, 0, linalg.Dim*linalg.Dim)
		for r := 0; r < linalg.Dim; r++ {
			flat = append(flat, s.States[i].Moment1[r][:]...)
		}
		writeGlobal(&b, fmt.Sprintf("S%d", i), flat)
	}

	b.WriteString("\nS: source, vector_variable = \"P\", matrix_variable = \"S\";\n")
	b.WriteString("\ncell: LINE = (S);\nUSE: cell;\n")
	return []byte(b.String())
}
