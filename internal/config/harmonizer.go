package config

// HarmonizerConfig carries the drift harmonizer's advisory thresholds.
// These gate nothing; they are surfaced for downstream logging and telemetry.
type HarmonizerConfig struct {
	DriftThreshold float64 `yaml:"drift_threshold"`
	MoralThreshold float64 `yaml:"moral_threshold"`
}

// DefaultHarmonizerConfig returns the stock advisory thresholds.
func DefaultHarmonizerConfig() HarmonizerConfig {
	return HarmonizerConfig{
		DriftThreshold: 0.6,
		MoralThreshold: 0.8,
	}
}
