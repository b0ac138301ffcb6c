package config

var Presets = map[string]*Config{
	"quick": {
		Lattice: DefaultLattice,
		Run:     RunConfig{Observe: "last"},
		Scan:    ScanConfig{Points: DefaultScanPoints, Metric: "max_envelope_x"},
		Steer:   SteerConfig{MaxIter: DefaultSteerIter, Tol: DefaultSteerTol},
	},
	"survey": {
		Lattice: DefaultLattice,
		Store:   DefaultStore,
		Run:     RunConfig{Observe: "all", Validate: true},
		Scan:    ScanConfig{Points: DefaultScanPoints, Metric: "max_envelope_x"},
		Steer:   SteerConfig{MaxIter: DefaultSteerIter, Tol: DefaultSteerTol},
	},
	"matching": {
		Lattice: DefaultLattice,
		Run:     RunConfig{Observe: "all"},
		Scan: ScanConfig{
			Key:    "B2",
			Min:    -2.0,
			Max:    2.0,
			Points: 41,
			Metric: "max_envelope_x",
		},
		Steer: SteerConfig{MaxIter: DefaultSteerIter, Tol: DefaultSteerTol},
	},
}

func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
