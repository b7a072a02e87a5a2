package config

import (
	"fmt"
	"time"
)

// Consent modes. manual and voice suspend the caller until an external signal
// arrives; the others answer immediately.
const (
	ConsentAlwaysYes = "always_yes"
	ConsentAlwaysNo  = "always_no"
	ConsentRandom    = "random"
	ConsentManual    = "manual"
	ConsentVoice     = "voice"
	ConsentCustom    = "custom"
)

// ConsentConfig configures the consent authority.
type ConsentConfig struct {
	Mode             string `yaml:"mode"`
	DefaultTimeoutMS int    `yaml:"default_timeout_ms"`
}

// DefaultConsentConfig answers yes immediately, which keeps a fresh install
// interactive without an operator in the loop.
func DefaultConsentConfig() ConsentConfig {
	return ConsentConfig{
		Mode:             ConsentAlwaysYes,
		DefaultTimeoutMS: 30_000,
	}
}

// Validate rejects unknown modes at startup. An invalid mode is a
// configuration error, never a runtime one.
func (c ConsentConfig) Validate() error {
	switch c.Mode {
	case ConsentAlwaysYes, ConsentAlwaysNo, ConsentRandom, ConsentManual, ConsentVoice, ConsentCustom:
	default:
		return fmt.Errorf("unknown consent mode %q", c.Mode)
	}
	if c.DefaultTimeoutMS < 0 {
		return fmt.Errorf("consent default_timeout_ms must be >= 0, got %d", c.DefaultTimeoutMS)
	}
	return nil
}

// DefaultTimeout returns the consent wait budget as a duration.
func (c ConsentConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}
