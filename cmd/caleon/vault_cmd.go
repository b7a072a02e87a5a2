package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"caleon/internal/config"
	"caleon/internal/consent"
	"caleon/internal/types"
	"caleon/internal/vault"
)

var (
	payloadJSON string
	toneFlag    string
	symbolFlag  string
	moralFlag   float64
	intensity   float64

	queryTone         string
	querySymbol       string
	queryMinIntensity float64
	queryMaxIntensity float64
)

// vaultCmd groups the memory vault operations.
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Memory vault operations (store, get, modify, delete, query, reflect)",
}

var vaultStoreCmd = &cobra.Command{
	Use:   "store [memory-id]",
	Short: "Store a new memory shard",
	Long: `Stores a content-addressed shard with its resonance tag and prints
the hash signature.

Example:
  caleon vault store first-light --payload '{"event":"sunrise"}' --tone wonder --symbol dawn --intensity 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: vaultStore,
}

var vaultGetCmd = &cobra.Command{
	Use:   "get [memory-id]",
	Short: "Print a shard as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  vaultGet,
}

var vaultModifyCmd = &cobra.Command{
	Use:   "modify [memory-id]",
	Short: "Modify a shard's payload under consent",
	Long: `Proposes a payload transition. The drift harmonizer scores it, the
consent authority decides it, and the decision is audited either way.

In manual consent mode the command prompts on the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: vaultModify,
}

var vaultDeleteCmd = &cobra.Command{
	Use:   "delete [memory-id]",
	Short: "Delete a shard under consent",
	Args:  cobra.ExactArgs(1),
	RunE:  vaultDelete,
}

var vaultQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query shards by resonance",
	RunE:  vaultQuery,
}

var vaultReflectCmd = &cobra.Command{
	Use:   "reflect [memory-id]",
	Short: "Preview the drift of a hypothetical transition, without mutating",
	Long: `Computes the advisory drift and adjusted moral charge for a
hypothetical payload (or deletion, when --payload is omitted) and prints the
shard's audit history. Read-only.`,
	Args: cobra.ExactArgs(1),
	RunE: vaultReflect,
}

func init() {
	vaultStoreCmd.Flags().StringVar(&payloadJSON, "payload", "{}", "shard payload as JSON")
	vaultStoreCmd.Flags().StringVar(&toneFlag, "tone", string(types.ToneNeutral), "resonance tone (joy|grief|fracture|wonder|neutral)")
	vaultStoreCmd.Flags().StringVar(&symbolFlag, "symbol", "", "resonance symbol")
	vaultStoreCmd.Flags().Float64Var(&moralFlag, "moral", 0, "moral charge [-1, 1]")
	vaultStoreCmd.Flags().Float64Var(&intensity, "intensity", 0.5, "resonance intensity [0, 1]")

	vaultModifyCmd.Flags().StringVar(&payloadJSON, "payload", "{}", "proposed payload as JSON")

	vaultReflectCmd.Flags().StringVar(&payloadJSON, "payload", "", "hypothetical payload as JSON; omit to preview deletion")

	vaultQueryCmd.Flags().StringVar(&queryTone, "tone", "", "filter by tone")
	vaultQueryCmd.Flags().StringVar(&querySymbol, "symbol", "", "filter by symbol")
	vaultQueryCmd.Flags().Float64Var(&queryMinIntensity, "min-intensity", -1, "minimum intensity")
	vaultQueryCmd.Flags().Float64Var(&queryMaxIntensity, "max-intensity", -1, "maximum intensity")

	vaultCmd.AddCommand(vaultStoreCmd, vaultGetCmd, vaultModifyCmd, vaultDeleteCmd, vaultQueryCmd, vaultReflectCmd)
}

func parsePayload(raw string) (types.Payload, error) {
	var payload types.Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func vaultStore(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	payload, err := parsePayload(payloadJSON)
	if err != nil {
		return err
	}

	hash, err := svc.vault.Store(args[0], payload, types.ResonanceTag{
		Tone:        types.Tone(toneFlag),
		Symbol:      symbolFlag,
		MoralCharge: moralFlag,
		Intensity:   intensity,
	})
	if err != nil {
		return err
	}
	fmt.Printf("stored %s  hash %s\n", args[0], hash)
	return nil
}

func vaultGet(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	shard, err := svc.vault.Get(args[0])
	if err != nil {
		return err
	}
	return printJSON(shard)
}

func vaultModify(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	payload, err := parsePayload(payloadJSON)
	if err != nil {
		return err
	}

	memoryID := args[0]
	promptManualConsent(svc.consent, memoryID)

	applied, verdict, err := svc.vault.Modify(context.Background(), memoryID, payload, "cli modify", svc.consent, nil)
	if err != nil {
		return err
	}
	if !applied {
		fmt.Printf("not applied: consent resolved as %s\n", verdict)
		return nil
	}
	fmt.Printf("modified %s\n", memoryID)
	return nil
}

func vaultDelete(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	memoryID := args[0]
	promptManualConsent(svc.consent, memoryID)

	removed, verdict, err := svc.vault.Delete(context.Background(), memoryID, "cli delete", svc.consent)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Printf("not deleted: consent resolved as %s\n", verdict)
		return nil
	}
	fmt.Printf("deleted %s\n", memoryID)
	return nil
}

// promptManualConsent, in manual mode, asks the operator on the terminal and
// feeds the answer to the waiting decision through provide_live_signal.
func promptManualConsent(auth *consent.Authority, memoryID string) {
	if auth.Mode() != config.ConsentManual {
		return
	}
	go func() {
		fmt.Fprintf(os.Stderr, "consent requested for %q: approve? [y/N] ", memoryID)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			auth.ProvideLiveSignal(memoryID, false)
			return
		}
		line = strings.ToLower(strings.TrimSpace(line))
		auth.ProvideLiveSignal(memoryID, line == "y" || line == "yes")
	}()
}

func vaultQuery(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	var filter vault.ResonanceFilter
	if queryTone != "" {
		tone := types.Tone(queryTone)
		filter.Tone = &tone
	}
	if querySymbol != "" {
		filter.Symbol = &querySymbol
	}
	if queryMinIntensity >= 0 {
		filter.MinIntensity = &queryMinIntensity
	}
	if queryMaxIntensity >= 0 {
		filter.MaxIntensity = &queryMaxIntensity
	}

	summaries := svc.vault.QueryByResonance(filter)
	if len(summaries) == 0 {
		fmt.Println("no shards match")
		return nil
	}
	return printJSON(summaries)
}

func vaultReflect(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	var payload types.Payload
	if payloadJSON != "" {
		payload, err = parsePayload(payloadJSON)
		if err != nil {
			return err
		}
	}

	report, err := svc.vault.Reflect(args[0], payload)
	if err != nil {
		return err
	}
	return printJSON(report)
}
