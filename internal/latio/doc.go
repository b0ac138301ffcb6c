// Package latio reads and writes the beamline description format: global
// assignments, typed element definitions, LINE sequences and a USE
// statement. Parsing is two-layered: [Parse] produces a Document that
// preserves declaration order and source spans, [Build] interprets a
// Document into a validated lattice. The split lets cavity field data
// files, which use the same syntax with different globals, reuse the
// parser without pretending to be beamlines.
package latio
