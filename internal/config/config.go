package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLattice    = "lattice.lat"
	DefaultStore      = "beamsim.db"
	DefaultObserve    = "all"
	DefaultScanPoints = 11
	DefaultSteerIter  = 20
	DefaultSteerTol   = 1e-6
)

type Config struct {
	Lattice string      `yaml:"lattice"`
	DataDir string      `yaml:"data_dir"`
	Store   string      `yaml:"store"`
	Run     RunConfig   `yaml:"run"`
	Beam    BeamConfig  `yaml:"beam"`
	Scan    ScanConfig  `yaml:"scan"`
	Steer   SteerConfig `yaml:"steer"`
}

type RunConfig struct {
	From     int    `yaml:"from"`
	To       int    `yaml:"to"` // 0 runs to the end of the line
	Observe  string `yaml:"observe"`
	Indices  []int  `yaml:"indices"`
	Validate bool   `yaml:"validate"`
}

// BeamConfig overrides the lattice's initial beam. Zero values keep the
// lattice settings.
type BeamConfig struct {
	Energy       float64   `yaml:"energy"` // eV/u
	ChargeStates []float64 `yaml:"charge_states"`
	Weights      []float64 `yaml:"weights"`
}

type ScanConfig struct {
	Element string  `yaml:"element"`
	Key     string  `yaml:"key"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Points  int     `yaml:"points"`
	Metric  string  `yaml:"metric"`
}

type SteerConfig struct {
	Trim    string  `yaml:"trim"`
	Marker  string  `yaml:"marker"`
	MaxIter int     `yaml:"max_iter"`
	Tol     float64 `yaml:"tol"`
}

func DefaultConfig() *Config {
	return &Config{
		Lattice: DefaultLattice,
		Store:   DefaultStore,
		Run: RunConfig{
			Observe: DefaultObserve,
		},
		Scan: ScanConfig{
			Points: DefaultScanPoints,
			Metric: "max_envelope_x",
		},
		Steer: SteerConfig{
			MaxIter: DefaultSteerIter,
			Tol:     DefaultSteerTol,
		},
	}
}

// Load reads a YAML config over the defaults, so partial files work.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
