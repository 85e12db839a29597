package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSystemConfigConstantsFallsBackToDefaults(t *testing.T) {
	var s SystemConfig
	c := s.Constants()
	if c.Pmin != 1 || c.Pmax != 500 {
		t.Errorf("Pmin/Pmax = %d/%d, want defaults 1/500", c.Pmin, c.Pmax)
	}
	if c.TickSize != 1 || c.TapeLength != 10000 || c.BlotterLength != 100 {
		t.Errorf("unexpected defaulted constants: %+v", c)
	}
}

func TestSystemConfigConstantsRespectsExplicitValues(t *testing.T) {
	s := SystemConfig{Pmin: 10, Pmax: 200, TickSize: 5, TapeLength: 50, BlotterLength: 20}
	c := s.Constants()
	if c.Pmin != 10 || c.Pmax != 200 || c.TickSize != 5 || c.TapeLength != 50 || c.BlotterLength != 20 {
		t.Errorf("explicit constants not respected: %+v", c)
	}
}

func TestPopulationSpecN(t *testing.T) {
	p := PopulationSpec{Traders: []TraderSpec{{Type: "GVWY", Count: 3}, {Type: "ZIC", Count: 5}}}
	if p.N() != 8 {
		t.Errorf("N() = %d, want 8", p.N())
	}
}

func TestParseStepModeAndTimeMode(t *testing.T) {
	if _, err := parseStepMode("bogus"); err == nil {
		t.Error("expected an error for an unknown stepmode")
	}
	if sm, err := parseStepMode("jittered"); err != nil || sm != 1 {
		t.Errorf("parseStepMode(jittered) = (%v, %v)", sm, err)
	}
	if _, err := parseTimeMode("bogus"); err == nil {
		t.Error("expected an error for an unknown timemode")
	}
	if _, err := parseTimeMode("drip-poisson"); err != nil {
		t.Errorf("parseTimeMode(drip-poisson) unexpected error: %v", err)
	}
}

func TestNeedsK(t *testing.T) {
	if !needsK("PRDE") || !needsK("zipde") {
		t.Error("expected PRDE/ZIPDE to require k")
	}
	if needsK("GVWY") {
		t.Error("expected GVWY not to require k")
	}
}

func TestValidateRejectsZeroDuration(t *testing.T) {
	s := &Session{Duration: 0, Buyers: PopulationSpec{Traders: []TraderSpec{{Type: "GVWY", Count: 1}}}}
	if err := s.Validate(); err == nil {
		t.Error("expected an error for zero duration")
	}
}

func TestValidateRejectsEmptyPopulation(t *testing.T) {
	s := &Session{Duration: 600}
	if err := s.Validate(); err == nil {
		t.Error("expected an error for an empty population")
	}
}

func TestValidateRejectsMissingKForAdaptiveStrategy(t *testing.T) {
	s := &Session{
		Duration: 600,
		Buyers:   PopulationSpec{Traders: []TraderSpec{{Type: "PRDE", Count: 1, K: 2}}},
	}
	if err := s.Validate(); err == nil {
		t.Error("expected an error when PRDE's k is below 4")
	}
}

func TestValidateAcceptsWellFormedSession(t *testing.T) {
	s := &Session{
		Duration: 600,
		Buyers:   PopulationSpec{Traders: []TraderSpec{{Type: "GVWY", Count: 2}}},
		Sellers:  PopulationSpec{Traders: []TraderSpec{{Type: "ZIC", Count: 2}}},
	}
	if err := s.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadAppliesDefaultsAndUnmarshalsSchedule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	doc := `
seed: 7
system:
  pmin: 1
  pmax: 500
buyers:
  traders:
    - type: GVWY
      count: 2
sellers:
  traders:
    - type: ZIC
      count: 2
schedule:
  n_buyers: 2
  n_sellers: 2
  timemode: periodic
  interval: 30
  buyers:
    zones:
      - from: 0
        to: 600
        stepmode: fixed
        ranges:
          - lo: 50
            hi: 150
  sellers:
    zones:
      - from: 0
        to: 600
        stepmode: fixed
        ranges:
          - lo: 50
            hi: 150
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Seed != 7 {
		t.Errorf("seed = %d, want 7", cfg.Seed)
	}
	if cfg.Duration != 600.0 {
		t.Errorf("duration = %v, want default 600.0", cfg.Duration)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Telemetry.Addr != ":9090" {
		t.Errorf("telemetry addr = %q, want default :9090", cfg.Telemetry.Addr)
	}

	cycle, err := cfg.Schedule.Build()
	if err != nil {
		t.Fatalf("Schedule.Build: %v", err)
	}
	if cycle.NBuyers != 2 || cycle.NSellers != 2 {
		t.Errorf("cycle buyer/seller counts = %d/%d, want 2/2", cycle.NBuyers, cycle.NSellers)
	}
	if len(cycle.Demand.Zones) != 1 || len(cycle.Demand.Zones[0].Ranges) != 1 {
		t.Fatalf("unexpected demand zone shape: %+v", cycle.Demand.Zones)
	}
	if cycle.Demand.Zones[0].Ranges[0].Lo != 50 || cycle.Demand.Zones[0].Ranges[0].Hi != 150 {
		t.Errorf("unexpected demand range: %+v", cycle.Demand.Zones[0].Ranges[0])
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: unexpected error on a well-formed loaded config: %v", err)
	}
}

func TestLoadHonorsSessionSeedEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	doc := "seed: 1\nbuyers:\n  traders:\n    - type: GVWY\n      count: 1\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SESSION_SEED", "99")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Seed != 99 {
		t.Errorf("seed = %d, want env override 99", cfg.Seed)
	}
}

func TestRangeConfigStepOffsetAppliesAfterThreshold(t *testing.T) {
	r := RangeConfig{Lo: 50, Hi: 150, OffsetMode: "step", OffsetStep: 10, OffsetAt: 100}
	built := r.buildRange()
	if built.MinOffset == nil {
		t.Fatal("expected a MinOffset closure for step offset mode")
	}
	if got := built.MinOffset(50); got != 0 {
		t.Errorf("offset before threshold = %v, want 0", got)
	}
	if got := built.MinOffset(150); got != 10 {
		t.Errorf("offset after threshold = %v, want 10", got)
	}
}
