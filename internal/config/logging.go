package config

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Debug enables debug-level output.
	Debug bool `yaml:"debug"`

	// Development switches zap to its development encoder (console, stack
	// traces on warn). Production JSON otherwise.
	Development bool `yaml:"development"`
}

// DefaultLoggingConfig returns production logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{}
}
