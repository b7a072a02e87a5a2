package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// seedsCmd shows the effective logic-seed bank.
var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Show the effective logic-seed bank",
	Long: `Prints the seed bank the reflection stages will use: the external
seeds.yaml when one is configured (validating it), otherwise the inline bank
from the configuration file.`,
	RunE: runSeeds,
}

func runSeeds(cmd *cobra.Command, args []string) error {
	bank, err := loaded.Seeds.LoadBank()
	if err != nil {
		return err
	}

	if loaded.Seeds.Path != "" {
		fmt.Printf("seed bank from %s (%d seeds, hot-reloadable)\n", loaded.Seeds.Path, len(bank))
	} else {
		fmt.Printf("inline seed bank (%d seeds)\n", len(bank))
	}
	for _, s := range bank {
		pool := string(s.Pool)
		if pool == "" {
			pool = "system"
		}
		fmt.Printf("  %-12s family=%-18s weight=%.2f pool=%s\n", s.ID, s.Family, s.Weight, pool)
	}
	return nil
}
