package config

import "fmt"

// VaultConfig configures memory vault persistence. The vault is in-memory by
// default; when Persist is set, shards and the audit log are mirrored to an
// embedded SQLite database and reloaded on open.
type VaultConfig struct {
	Persist      bool   `yaml:"persist"`
	DatabasePath string `yaml:"database_path"`

	// ReadTracing records read-only reflect() calls as ethical_test audit
	// entries. Off by default; reflect is contractually side-effect free.
	ReadTracing bool `yaml:"read_tracing"`
}

// DefaultVaultConfig returns the in-memory default.
func DefaultVaultConfig() VaultConfig {
	return VaultConfig{
		Persist:      false,
		DatabasePath: ".caleon/vault.db",
	}
}

// Validate checks persistence settings.
func (c VaultConfig) Validate() error {
	if c.Persist && c.DatabasePath == "" {
		return fmt.Errorf("vault persistence enabled but database_path is empty")
	}
	return nil
}
