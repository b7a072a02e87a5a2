package config

import (
	"fmt"
	"os"

	"caleon/internal/types"

	"gopkg.in/yaml.v3"
)

// SeedPool assigns a seed to the posterior reasoner's sampling pools.
type SeedPool string

const (
	PoolPhilosopher SeedPool = "philosopher"
	PoolSystem      SeedPool = "system"
)

// SeedSpec is one configured logic seed plus its posterior pool assignment.
type SeedSpec struct {
	ID     string           `yaml:"id"`
	Family types.SeedFamily `yaml:"family"`
	Weight float64          `yaml:"weight"`
	Pool   SeedPool         `yaml:"pool,omitempty"` // defaults to system
}

// Seed converts the spec to the shared LogicSeed type.
func (s SeedSpec) Seed() types.LogicSeed {
	return types.LogicSeed{ID: s.ID, Family: s.Family, Weight: s.Weight}
}

// SeedsConfig configures the reflection seed bank.
type SeedsConfig struct {
	// Path to an external seeds.yaml; when set it replaces the inline bank
	// and becomes eligible for hot reload.
	Path string `yaml:"path"`

	// Bank is the ordered seed list applied by EchoStack and sampled by
	// EchoRipple and the posterior reasoner.
	Bank []SeedSpec `yaml:"bank"`
}

// DefaultSeedsConfig returns the built-in neutral seed bank.
func DefaultSeedsConfig() SeedsConfig {
	return SeedsConfig{
		Bank: []SeedSpec{
			{ID: "heraclitus", Family: types.FamilyNonmonotonic, Weight: 1.0, Pool: PoolPhilosopher},
			{ID: "hume", Family: types.FamilyEmpiricist, Weight: 1.0, Pool: PoolPhilosopher},
			{ID: "pyrrho", Family: types.FamilySkeptical, Weight: 0.8, Pool: PoolPhilosopher},
			{ID: "taleb", Family: types.FamilyAntifragile, Weight: 0.9, Pool: PoolSystem},
			{ID: "fastpath", Family: types.FamilyHeuristic, Weight: 0.7, Pool: PoolSystem},
			{ID: "occam", Family: types.FamilyParsimony, Weight: 1.0, Pool: PoolSystem},
			{ID: "euclid", Family: types.FamilyEthicalGeometric, Weight: 0.6, Pool: PoolSystem},
		},
	}
}

// LoadBank resolves the effective seed bank: the external file when Path is
// set, otherwise the inline bank.
func (c SeedsConfig) LoadBank() ([]SeedSpec, error) {
	if c.Path == "" {
		return c.Bank, nil
	}
	return LoadSeedFile(c.Path)
}

// LoadSeedFile parses and validates a standalone seeds.yaml.
// Accepted shape:
//
//	seeds:
//	  - id: hume
//	    family: empiricist
//	    weight: 1.0
//	    pool: philosopher
func LoadSeedFile(path string) ([]SeedSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc struct {
		Seeds []SeedSpec `yaml:"seeds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := validateBank(doc.Seeds); err != nil {
		return nil, err
	}
	return doc.Seeds, nil
}

// Validate checks the inline bank. The external file, when configured, is
// validated at load and on every hot-reload swap.
func (c SeedsConfig) Validate() error {
	if c.Path != "" {
		return nil
	}
	return validateBank(c.Bank)
}

func validateBank(bank []SeedSpec) error {
	seen := make(map[string]bool, len(bank))
	for i, s := range bank {
		if s.ID == "" {
			return fmt.Errorf("seed %d: missing id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("seed %q: duplicate id", s.ID)
		}
		seen[s.ID] = true
		if !types.ValidSeedFamily(s.Family) {
			return fmt.Errorf("seed %q: unknown family %q", s.ID, s.Family)
		}
		if s.Weight <= 0 {
			return fmt.Errorf("seed %q: weight must be positive, got %v", s.ID, s.Weight)
		}
		if s.Pool != "" && s.Pool != PoolPhilosopher && s.Pool != PoolSystem {
			return fmt.Errorf("seed %q: unknown pool %q", s.ID, s.Pool)
		}
	}
	return nil
}
