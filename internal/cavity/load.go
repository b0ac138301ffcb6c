package cavity

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/latio"
)

// builtinFiles maps the named cavity types to their thin-lens data files
// under the lattice data directory.
var builtinFiles = map[string]string{
	"0.041QWR": "thinlenlon_41.lat",
	"0.085QWR": "thinlenlon_85.lat",
	"0.29HWR":  "thinlenlon_29.lat",
	"0.53HWR":  "thinlenlon_53.lat",
}

// Resolve maps a cavtype and optional datafile to the file name to load.
// Generic cavities name their own file; the known types use built-in names.
func Resolve(cavType, datafile string) (string, error) {
	if cavType == "Generic" {
		if datafile == "" {
			return "", fmt.Errorf("beamsim: generic cavity needs a datafile")
		}
		return datafile, nil
	}
	f, ok := builtinFiles[cavType]
	if !ok {
		return "", fmt.Errorf("beamsim: unknown cavity type %q", cavType)
	}
	return f, nil
}

// Loader reads and caches cavity models. Loaded models are immutable, so
// one cache entry serves every cavity sharing a data file.
type Loader struct {
	mu    sync.Mutex
	cache map[string]*Model
}

func NewLoader() *Loader {
	return &Loader{cache: make(map[string]*Model)}
}

// Load returns the model for the given cavity type, reading the data file
// under dataDir on first use.
func (l *Loader) Load(dataDir, cavType, datafile string) (*Model, error) {
	name, err := Resolve(cavType, datafile)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, name)

	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.cache[path]; ok {
		return m, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("beamsim: cavity data for %q: %w", cavType, err)
	}
	m, err := ParseModel(cavType, src)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	l.cache[path] = m
	return m, nil
}

// ParseModel builds a Model from thin-lens data file text. The file uses
// the lattice syntax: fit globals, typed segment definitions, and a LINE
// giving the segment order.
func ParseModel(name string, src []byte) (*Model, error) {
	doc, err := latio.Parse(src)
	if err != nil {
		return nil, err
	}

	m := &Model{Name: name}
	if v, ok := doc.FloatGlobal("RefNorm"); ok {
		m.Fit.RefNorm = v
	}
	if v, ok := doc.VectorGlobal("SyncFit"); ok {
		m.Fit.Coef = v
	} else if v, ok := doc.FloatGlobal("SyncFit"); ok {
		m.Fit.Coef = []float64{v}
	}
	if v, ok := doc.VectorGlobal("EnergyLimit"); ok && len(v) == 2 {
		m.EnergyLimit = [2]float64{v[0], v[1]}
	}
	if v, ok := doc.VectorGlobal("NormLimit"); ok && len(v) == 2 {
		m.NormLimit = [2]float64{v[0], v[1]}
	}
	if v, ok := doc.FloatGlobal("Rm"); ok {
		m.Rm = v
	}

	use := doc.Use
	if use == "" {
		if len(doc.Lines) == 0 {
			return nil, fmt.Errorf("beamsim: cavity data %q has no segment line", name)
		}
		use = doc.Lines[len(doc.Lines)-1].Name
	}
	var expand func(ref string, seen map[string]bool) error
	expand = func(ref string, seen map[string]bool) error {
		if line := doc.LineByName(ref); line != nil {
			if seen[ref] {
				return fmt.Errorf("beamsim: cavity data %q: line %q references itself", name, ref)
			}
			seen[ref] = true
			for _, r := range line.Refs {
				if err := expand(r, seen); err != nil {
					return err
				}
			}
			delete(seen, ref)
			return nil
		}
		def := doc.Element(ref)
		if def == nil {
			return fmt.Errorf("beamsim: cavity data %q references undefined segment %q", name, ref)
		}
		seg, err := buildSegment(def)
		if err != nil {
			return err
		}
		m.Segments = append(m.Segments, seg)
		return nil
	}
	if err := expand(use, map[string]bool{}); err != nil {
		return nil, err
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func buildSegment(def *latio.ElementDef) (Segment, error) {
	kind, ok := ParseSegKind(def.Type)
	if !ok {
		return Segment{}, fmt.Errorf("line %d: segment %q has unknown type %q", def.Line, def.Name, def.Type)
	}
	seg := Segment{Name: def.Name, Kind: kind}
	for _, a := range def.Props {
		switch a.Name {
		case "L":
			v, ok := lattice.AsFloat(a.Val)
			if !ok {
				return Segment{}, propErr(def, a.Name, "number")
			}
			seg.Length = v
		case "V0":
			v, ok := lattice.AsFloat(a.Val)
			if !ok {
				return Segment{}, propErr(def, a.Name, "number")
			}
			seg.V0 = v
		case "T":
			t, err := ttfProp(def, a)
			if err != nil {
				return Segment{}, err
			}
			seg.T = t
		case "S":
			t, err := ttfProp(def, a)
			if err != nil {
				return Segment{}, err
			}
			seg.S = t
		case "aper":
			// Fitting aperture, informational only.
		default:
			return Segment{}, fmt.Errorf("line %d: segment %q has unknown key %q", def.Line, def.Name, a.Name)
		}
	}
	return seg, nil
}

func ttfProp(def *latio.ElementDef, a latio.Assign) (TTF, error) {
	v, ok := lattice.AsVector(a.Val)
	if !ok {
		return TTF{}, propErr(def, a.Name, "vector")
	}
	if len(v) != TTFDegree+1 {
		return TTF{}, fmt.Errorf("line %d: segment %q key %q needs %d coefficients, got %d",
			def.Line, def.Name, a.Name, TTFDegree+1, len(v))
	}
	var t TTF
	copy(t[:], v)
	return t, nil
}

func propErr(def *latio.ElementDef, key, want string) error {
	return fmt.Errorf("line %d: segment %q key %q must be a %s", def.Line, def.Name, key, want)
}
