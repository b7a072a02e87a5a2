package config

import (
	"fmt"
	"time"
)

// PipelineConfig configures stage timing, recursion depth, and backpressure
// for the unified cognition loop.
type PipelineConfig struct {
	// EchoRipple
	RippleCycles     int `yaml:"ripple_cycles"`      // default 5
	RippleIntervalMS int `yaml:"ripple_interval_ms"` // default 20

	// Posterior reasoner
	PosteriorBaseCycles      int     `yaml:"posterior_base_cycles"`     // default 5
	PosteriorExtendedCycles  int     `yaml:"posterior_extended_cycles"` // default 10
	PosteriorIntervalMS      int     `yaml:"posterior_interval_ms"`     // default 50
	PosteriorDriftThreshold  float64 `yaml:"posterior_drift_threshold"`
	PosteriorMalThreshold    float64 `yaml:"posterior_mal_threshold"`
	PosteriorHackSensitivity float64 `yaml:"posterior_hack_sensitivity"`

	// Orchestrator
	StageTimeoutMS int `yaml:"stage_timeout_ms"`
	MaxInFlight    int `yaml:"max_in_flight"`
}

// DefaultPipelineConfig returns the stock pipeline timing.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		RippleCycles:             5,
		RippleIntervalMS:         20,
		PosteriorBaseCycles:      5,
		PosteriorExtendedCycles:  10,
		PosteriorIntervalMS:      50,
		PosteriorDriftThreshold:  0.75,
		PosteriorMalThreshold:    0.4,
		PosteriorHackSensitivity: 1.0,
		StageTimeoutMS:           10_000,
		MaxInFlight:              32,
	}
}

// Validate enforces startup invariants on the pipeline settings.
func (c PipelineConfig) Validate() error {
	if c.RippleCycles < 1 {
		return fmt.Errorf("ripple_cycles must be >= 1, got %d", c.RippleCycles)
	}
	if c.RippleIntervalMS < 0 {
		return fmt.Errorf("ripple_interval_ms must be >= 0, got %d", c.RippleIntervalMS)
	}
	if c.PosteriorBaseCycles < 1 {
		return fmt.Errorf("posterior_base_cycles must be >= 1, got %d", c.PosteriorBaseCycles)
	}
	if c.PosteriorExtendedCycles < c.PosteriorBaseCycles {
		return fmt.Errorf("posterior_extended_cycles (%d) must be >= posterior_base_cycles (%d)",
			c.PosteriorExtendedCycles, c.PosteriorBaseCycles)
	}
	if c.PosteriorIntervalMS < 0 {
		return fmt.Errorf("posterior_interval_ms must be >= 0, got %d", c.PosteriorIntervalMS)
	}
	if c.PosteriorHackSensitivity < 0 {
		return fmt.Errorf("posterior_hack_sensitivity must be >= 0, got %v", c.PosteriorHackSensitivity)
	}
	if c.StageTimeoutMS < 1 {
		return fmt.Errorf("stage_timeout_ms must be >= 1, got %d", c.StageTimeoutMS)
	}
	if c.MaxInFlight < 1 {
		return fmt.Errorf("max_in_flight must be >= 1, got %d", c.MaxInFlight)
	}
	return nil
}

// RippleInterval returns the inter-cycle delay as a duration.
func (c PipelineConfig) RippleInterval() time.Duration {
	return time.Duration(c.RippleIntervalMS) * time.Millisecond
}

// PosteriorInterval returns the trailing per-cycle delay as a duration.
func (c PipelineConfig) PosteriorInterval() time.Duration {
	return time.Duration(c.PosteriorIntervalMS) * time.Millisecond
}

// StageTimeout returns the per-stage budget as a duration.
func (c PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutMS) * time.Millisecond
}
