package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"caleon/internal/types"
)

var (
	auditAction  string
	auditVerdict string
	auditMemory  string
)

// auditCmd prints the ordered audit log.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the append-only audit log",
	Long: `Prints every recorded decision in order: vault mutations, consent
verdicts, posterior escalations, and pipeline terminals. With in-memory
vaults the log covers this invocation; with persistence enabled it covers
every session against the same database.

Example:
  caleon audit --action caleon_consent --verdict denied`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditAction, "action", "", "filter by action (store|modify|delete|caleon_consent|ethical_test|escalation|pipeline)")
	auditCmd.Flags().StringVar(&auditVerdict, "verdict", "", "filter by verdict (approved|denied|timeout|pending|cancelled)")
	auditCmd.Flags().StringVar(&auditMemory, "memory-id", "", "filter by memory or request id")
}

func runAudit(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	entries := svc.vault.AuditLog()
	matched := 0
	for _, e := range entries {
		if auditAction != "" && string(e.Action) != auditAction {
			continue
		}
		if auditVerdict != "" && string(e.Verdict) != auditVerdict {
			continue
		}
		if auditMemory != "" && e.MemoryID != auditMemory {
			continue
		}
		matched++
		printEntry(e)
	}

	if matched == 0 {
		fmt.Println("no audit entries match")
	}
	return nil
}

func printEntry(e types.AuditEntry) {
	line := fmt.Sprintf("%s  %-14s %-9s %s",
		e.Timestamp.Format(time.RFC3339Nano), e.Action, e.Verdict, e.MemoryID)
	if e.Mode != "" {
		line += "  mode=" + e.Mode
	}
	if e.EthicalDrift != 0 || e.AdjustedMoralCharge != 0 {
		line += fmt.Sprintf("  drift=%.3f adj_moral=%.3f", e.EthicalDrift, e.AdjustedMoralCharge)
	}
	fmt.Println(line)
}
