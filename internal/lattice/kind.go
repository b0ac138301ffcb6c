package lattice

// Kind identifies the element variant. The zero value is invalid so that a
// forgotten kind fails validation instead of tracking as a drift.
type Kind int

const (
	KindInvalid Kind = iota
	KindSource
	KindMarker
	KindBPM
	KindDrift
	KindSolenoid
	KindQuadrupole
	KindSextupole
	KindEQuad
	KindSBend
	KindEDipole
	KindOrbTrim
	KindStripper
	KindTMatrix
	KindRFCavity
)

var kindNames = map[Kind]string{
	KindSource:     "source",
	KindMarker:     "marker",
	KindBPM:        "bpm",
	KindDrift:      "drift",
	KindSolenoid:   "solenoid",
	KindQuadrupole: "quadrupole",
	KindSextupole:  "sextupole",
	KindEQuad:      "equad",
	KindSBend:      "sbend",
	KindEDipole:    "edipole",
	KindOrbTrim:    "orbtrim",
	KindStripper:   "stripper",
	KindTMatrix:    "tmatrix",
	KindRFCavity:   "rfcavity",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "invalid"
}

// ParseKind maps a lattice file type name to its Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// Kinds returns all element kinds in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindSource, KindMarker, KindBPM, KindDrift, KindSolenoid,
		KindQuadrupole, KindSextupole, KindEQuad, KindSBend, KindEDipole,
		KindOrbTrim, KindStripper, KindTMatrix, KindRFCavity,
	}
}
