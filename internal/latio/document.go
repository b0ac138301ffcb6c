package latio

import "github.com/san-kum/beamsim/internal/lattice"

// Assign is one key = value pair. Start and End delimit the value text in
// the source so the formatting-preserving writer can splice replacements.
type Assign struct {
	Name  string
	Val   lattice.Value
	Line  int
	Start int
	End   int
}

// ElementDef is a named, typed element definition. BodyEnd is the offset of
// the terminating semicolon.
type ElementDef struct {
	Name    string
	Type    string
	Props   []Assign
	Line    int
	BodyEnd int
}

// LineDef is a named element sequence. Refs may name elements or other
// lines.
type LineDef struct {
	Name string
	Refs []string
	Line int
}

// Document is the parsed form of a lattice file, order preserved.
type Document struct {
	Globals  []Assign
	Elements []ElementDef
	Lines    []LineDef
	Use      string
}

// Global returns the last assignment of name, or nil.
func (d *Document) Global(name string) *Assign {
	for i := len(d.Globals) - 1; i >= 0; i-- {
		if d.Globals[i].Name == name {
			return &d.Globals[i]
		}
	}
	return nil
}

// Element returns the first element definition with the given name, or nil.
func (d *Document) Element(name string) *ElementDef {
	for i := range d.Elements {
		if d.Elements[i].Name == name {
			return &d.Elements[i]
		}
	}
	return nil
}

// LineByName returns the named line definition, or nil.
func (d *Document) LineByName(name string) *LineDef {
	for i := range d.Lines {
		if d.Lines[i].Name == name {
			return &d.Lines[i]
		}
	}
	return nil
}
