// Package config loads the session document: system constants, the
// buyer/seller supply/demand schedules, the trader population spec,
// session duration/seed, and output options. Loaded from the YAML file
// path the caller passes to Load, with environment overrides, following
// 0xtitan6-polymarket-mm/internal/config/config.go's viper-plus-mapstructure
// shape.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/dniure/BSE-IntelligentAgents/internal/customer"
	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
)

// Session is the top-level configuration. Maps directly onto the YAML
// file structure.
type Session struct {
	Seed      int64           `mapstructure:"seed"`
	Duration  float64         `mapstructure:"duration"`
	System    SystemConfig    `mapstructure:"system"`
	Buyers    PopulationSpec  `mapstructure:"buyers"`
	Sellers   PopulationSpec  `mapstructure:"sellers"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// SystemConfig mirrors market.Constants; zero fields fall back to
// market.Defaults() in Constants.
type SystemConfig struct {
	Pmin          int `mapstructure:"pmin"`
	Pmax          int `mapstructure:"pmax"`
	TickSize      int `mapstructure:"tick_size"`
	TapeLength    int `mapstructure:"tape_length"`
	BlotterLength int `mapstructure:"blotter_length"`
}

// Constants converts SystemConfig into market.Constants, filling unset
// (zero) fields from market.Defaults().
func (s SystemConfig) Constants() market.Constants {
	d := market.Defaults()
	c := market.Constants{Pmin: s.Pmin, Pmax: s.Pmax, TickSize: s.TickSize, TapeLength: s.TapeLength, BlotterLength: s.BlotterLength}
	if c.Pmin == 0 && c.Pmax == 0 {
		c.Pmin, c.Pmax = d.Pmin, d.Pmax
	}
	if c.TickSize == 0 {
		c.TickSize = d.TickSize
	}
	if c.TapeLength == 0 {
		c.TapeLength = d.TapeLength
	}
	if c.BlotterLength == 0 {
		c.BlotterLength = d.BlotterLength
	}
	return c
}

// TraderSpec is one entry in a population: ttype names a strategy
// (GVWY, ZIC, SHVR, SNPR, NOISY_ZIC, PRZI, PRSH, PRDE, ZIP, ZIPSH,
// ZIPDE, PT1, PT2, TREND, MEANREV, RL), count how many to instantiate,
// and K the strategy-population size for the adaptive optimizers (PRSH,
// PRDE, ZIPSH, ZIPDE; ignored otherwise).
type TraderSpec struct {
	Type  string `mapstructure:"type"`
	Count int    `mapstructure:"count"`
	K     int    `mapstructure:"k"`
}

// PopulationSpec is the ordered list of trader specs for one side of the
// market (buyers or sellers).
type PopulationSpec struct {
	Traders []TraderSpec `mapstructure:"traders"`
}

// N returns the total trader count across every spec entry.
func (p PopulationSpec) N() int {
	n := 0
	for _, t := range p.Traders {
		n += t.Count
	}
	return n
}

// RangeConfig is one schedule price interval. OffsetMode selects a
// built-in dynamic-offset shape (currently "" for none, or "step" for a
// step function jumping by OffsetStep at OffsetAt); this covers the
// offset_fn closures spec.md's schedule DSL allows without requiring the
// session document to embed code.
type RangeConfig struct {
	Lo         int     `mapstructure:"lo"`
	Hi         int     `mapstructure:"hi"`
	OffsetMode string  `mapstructure:"offset_mode"`
	OffsetStep float64 `mapstructure:"offset_step"`
	OffsetAt   float64 `mapstructure:"offset_at"`
}

func (r RangeConfig) buildRange() customer.Range {
	out := customer.Range{Lo: r.Lo, Hi: r.Hi}
	if r.OffsetMode == "step" {
		fn := func(issueTime float64) float64 {
			if issueTime >= r.OffsetAt {
				return r.OffsetStep
			}
			return 0
		}
		out.MinOffset = fn
	}
	return out
}

// ZoneConfig is one time-partitioned schedule zone.
type ZoneConfig struct {
	From     float64       `mapstructure:"from"`
	To       float64       `mapstructure:"to"`
	Ranges   []RangeConfig `mapstructure:"ranges"`
	StepMode string        `mapstructure:"stepmode"`
}

func (z ZoneConfig) buildZone() (customer.Zone, error) {
	sm, err := parseStepMode(z.StepMode)
	if err != nil {
		return customer.Zone{}, err
	}
	ranges := make([]customer.Range, len(z.Ranges))
	for i, r := range z.Ranges {
		ranges[i] = r.buildRange()
	}
	return customer.Zone{From: z.From, To: z.To, Ranges: ranges, StepMode: sm}, nil
}

// SidePrices is one side's (demand/buyers' or supply/sellers') price
// zones and noise level. Timing (timemode/interval/shuffle/
// fit_to_interval) is shared across both sides at the top level of
// ScheduleConfig, per spec.md §4.8's "top-level {timemode, interval,
// sup, dem}" Schedule DSL.
type SidePrices struct {
	Zones      []ZoneConfig `mapstructure:"zones"`
	NoiseLevel float64      `mapstructure:"noise_level"`
}

func (s SidePrices) build() (customer.Schedule, error) {
	zones := make([]customer.Zone, len(s.Zones))
	for i, z := range s.Zones {
		zone, err := z.buildZone()
		if err != nil {
			return customer.Schedule{}, err
		}
		zones[i] = zone
	}
	return customer.Schedule{Zones: zones, NoiseLevel: s.NoiseLevel}, nil
}

// ScheduleConfig holds the top-level supply/demand schedule document:
// buyer count and price zones (dem), seller count and price zones
// (sup), and the shared replenishment timing.
type ScheduleConfig struct {
	NBuyers       int        `mapstructure:"n_buyers"`
	NSellers      int        `mapstructure:"n_sellers"`
	Buyers        SidePrices `mapstructure:"buyers"`
	Sellers       SidePrices `mapstructure:"sellers"`
	TimeMode      string     `mapstructure:"timemode"`
	Interval      float64    `mapstructure:"interval"`
	Shuffle       bool       `mapstructure:"shuffle"`
	FitToInterval bool       `mapstructure:"fit_to_interval"`
}

// Build converts ScheduleConfig into the customer.Cycle the generator
// consumes once per replenishment interval.
func (s ScheduleConfig) Build() (customer.Cycle, error) {
	tm, err := parseTimeMode(s.TimeMode)
	if err != nil {
		return customer.Cycle{}, err
	}
	demand, err := s.Buyers.build()
	if err != nil {
		return customer.Cycle{}, err
	}
	supply, err := s.Sellers.build()
	if err != nil {
		return customer.Cycle{}, err
	}
	return customer.Cycle{
		NBuyers: s.NBuyers, NSellers: s.NSellers,
		Demand: demand, Supply: supply,
		Timing: customer.Timing{TimeMode: tm, Interval: s.Interval, Shuffle: s.Shuffle, FitToInterval: s.FitToInterval},
	}, nil
}

func parseStepMode(s string) (customer.StepMode, error) {
	switch strings.ToLower(s) {
	case "", "fixed":
		return customer.Fixed, nil
	case "jittered":
		return customer.Jittered, nil
	case "random":
		return customer.Random, nil
	default:
		return 0, simerr.Configf("config.parseStepMode", "unknown stepmode %q", s)
	}
}

func parseTimeMode(s string) (customer.TimeMode, error) {
	switch strings.ToLower(s) {
	case "", "periodic":
		return customer.Periodic, nil
	case "drip-fixed", "drip_fixed":
		return customer.DripFixed, nil
	case "drip-jitter", "drip_jitter":
		return customer.DripJitter, nil
	case "drip-poisson", "drip_poisson":
		return customer.DripPoisson, nil
	default:
		return 0, simerr.Configf("config.parseTimeMode", "unknown timemode %q", s)
	}
}

// OutputConfig controls where and how session sinks are written.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Compress bool   `mapstructure:"compress"`
	Report   bool   `mapstructure:"report"`
}

// LoggingConfig mirrors the teacher's zap setup knobs.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig controls the optional Prometheus/websocket server.
type TelemetryConfig struct {
	Serve bool   `mapstructure:"serve"`
	Addr  string `mapstructure:"addr"`
}

// Load reads the session document from path with SESSION_* environment
// overrides (e.g. SESSION_SEED overrides seed).
func Load(path string) (*Session, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("duration", 600.0)
	v.SetDefault("output.dir", "./out")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("telemetry.addr", ":9090")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var s Session
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if seed := os.Getenv("SESSION_SEED"); seed != "" {
		var parsed int64
		if _, err := fmt.Sscanf(seed, "%d", &parsed); err == nil {
			s.Seed = parsed
		}
	}

	return &s, nil
}

// Validate checks the fields a session driver cannot safely default,
// returning a configuration FatalError (per spec.md §7) on failure.
func (s *Session) Validate() error {
	if s.Duration <= 0 {
		return simerr.Configf("config.Validate", "duration must be > 0")
	}
	if s.Buyers.N() == 0 && s.Sellers.N() == 0 {
		return simerr.Configf("config.Validate", "population is empty: at least one buyer or seller is required")
	}
	for _, side := range []PopulationSpec{s.Buyers, s.Sellers} {
		for _, t := range side.Traders {
			if t.Count < 0 {
				return simerr.Configf("config.Validate", "trader spec %q has negative count %d", t.Type, t.Count)
			}
			if needsK(t.Type) && t.K < 4 {
				return simerr.Configf("config.Validate", "trader spec %q requires k>=4, got %d", t.Type, t.K)
			}
		}
	}
	return nil
}

func needsK(ttype string) bool {
	switch strings.ToUpper(ttype) {
	case "PRDE", "ZIPDE":
		return true
	}
	return false
}
