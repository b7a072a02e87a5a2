package config

// LLMConfig configures the optional language-model adapter consulted by the
// anterior reasoner. When disabled (or when the adapter fails) the reasoner
// falls back to its deterministic low-confidence path.
type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// DefaultLLMConfig keeps the adapter off; the pipeline is fully functional
// offline.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Enabled: false,
		Model:   "gemini-2.0-flash",
	}
}
