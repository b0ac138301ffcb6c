package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Lattice == "" {
		t.Error("default lattice path is empty")
	}
	if cfg.Run.Observe != "all" {
		t.Errorf("expected observe all, got %s", cfg.Run.Observe)
	}
	if cfg.Scan.Points <= 0 {
		t.Error("scan points should be positive")
	}
	if cfg.Steer.Tol <= 0 {
		t.Error("steer tolerance should be positive")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := DefaultConfig()
	cfg.Lattice = "frontend.lat"
	cfg.DataDir = "data"
	cfg.Beam.Energy = 500000.0
	cfg.Beam.ChargeStates = []float64{0.5, 0.4}
	cfg.Scan.Element = "Q1"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Lattice != "frontend.lat" || got.DataDir != "data" {
		t.Errorf("paths = %q, %q", got.Lattice, got.DataDir)
	}
	if got.Beam.Energy != 500000.0 {
		t.Errorf("energy = %g", got.Beam.Energy)
	}
	if len(got.Beam.ChargeStates) != 2 || got.Beam.ChargeStates[1] != 0.4 {
		t.Errorf("charge states = %v", got.Beam.ChargeStates)
	}
	if got.Scan.Element != "Q1" {
		t.Errorf("scan element = %q", got.Scan.Element)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "lattice: linac.lat\nrun:\n  from: 3\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Lattice != "linac.lat" {
		t.Errorf("lattice = %q", cfg.Lattice)
	}
	if cfg.Run.From != 3 {
		t.Errorf("run.from = %d", cfg.Run.From)
	}
	if cfg.Run.Observe != DefaultObserve {
		t.Errorf("observe lost its default, got %q", cfg.Run.Observe)
	}
	if cfg.Scan.Points != DefaultScanPoints {
		t.Errorf("scan points lost their default, got %d", cfg.Scan.Points)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("run: [not, a, map]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("matching")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Scan.Points != 41 {
		t.Errorf("expected 41 scan points, got %d", cfg.Scan.Points)
	}

	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	names := ListPresets()
	if len(names) != len(Presets) {
		t.Errorf("expected %d presets, got %d", len(Presets), len(names))
	}
	found := false
	for _, n := range names {
		if n == "quick" {
			found = true
		}
	}
	if !found {
		t.Error("quick preset missing from list")
	}
}
