// Package config holds all Caleon configuration. Configuration is loaded once
// at startup, validated, and treated as immutable; the seed bank additionally
// supports hot reload by swapping a whole immutable snapshot (see watcher.go).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all Caleon configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Reflection seed bank
	Seeds SeedsConfig `yaml:"seeds"`

	// Pipeline timing and backpressure
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Consent authority
	Consent ConsentConfig `yaml:"consent"`

	// Drift harmonizer advisory thresholds
	Harmonizer HarmonizerConfig `yaml:"harmonizer"`

	// Memory vault persistence
	Vault VaultConfig `yaml:"vault"`

	// Anterior reasoner LLM adapter
	LLM LLMConfig `yaml:"llm"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Name:       "caleon",
		Version:    "1.0.0",
		Seeds:      DefaultSeedsConfig(),
		Pipeline:   DefaultPipelineConfig(),
		Consent:    DefaultConsentConfig(),
		Harmonizer: DefaultHarmonizerConfig(),
		Vault:      DefaultVaultConfig(),
		LLM:        DefaultLLMConfig(),
		Logging:    DefaultLoggingConfig(),
	}
}

// Load reads a YAML config file, layers it over the defaults, applies
// environment overrides, and validates. A missing path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers CALEON_* environment variables over the file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CALEON_CONSENT_MODE"); v != "" {
		c.Consent.Mode = v
	}
	if v := os.Getenv("CALEON_CONSENT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Consent.DefaultTimeoutMS = n
		}
	}
	if v := os.Getenv("CALEON_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxInFlight = n
		}
	}
	if v := os.Getenv("CALEON_STAGE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.StageTimeoutMS = n
		}
	}
	if v := os.Getenv("CALEON_VAULT_DB"); v != "" {
		c.Vault.DatabasePath = v
		c.Vault.Persist = true
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CALEON_DEBUG"); v != "" {
		c.Logging.Debug = v == "1" || v == "true"
	}
}

// Validate checks the whole aggregate. Any violation is a startup error; the
// process must not run with an invalid configuration.
func (c *Config) Validate() error {
	if err := c.Seeds.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	if err := c.Consent.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	return nil
}
