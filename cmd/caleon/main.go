package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caleon/internal/anterior"
	"caleon/internal/articulator"
	"caleon/internal/config"
	"caleon/internal/consent"
	"caleon/internal/echo"
	"caleon/internal/harmonizer"
	"caleon/internal/logging"
	"caleon/internal/orchestrator"
	"caleon/internal/posterior"
	"caleon/internal/resonator"
	"caleon/internal/types"
	"caleon/internal/vault"
)

var (
	// Global flags
	configPath string
	verbose    bool
	voiceStyle string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "caleon",
	Short: "Caleon - Unified Cognition Loop",
	Long: `Caleon runs stimuli through a consent-gated cognitive pipeline:
resonate, reason, reflect, ripple, rethink, then articulate only if the
sovereign consent authority approves. Every decision lands in an append-only
audit log; memory lives in a content-addressed vault.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
		}

		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		loaded = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loaded is the validated configuration for the current invocation.
var loaded *config.Config

// services is the wired loop for the current invocation.
type services struct {
	cfg     *config.Config
	vault   *vault.Vault
	consent *consent.Authority
	orch    *orchestrator.Orchestrator
	watcher *config.SeedWatcher
}

// close releases the seed watcher and the vault persister.
func (s *services) close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if err := s.vault.Close(); err != nil {
		logger.Warn("vault close failed", zap.Error(err))
	}
}

// buildServices wires the CoreServices aggregate exactly once per invocation.
func buildServices() (*services, error) {
	cfg := loaded

	h := harmonizer.New(cfg.Harmonizer, logging.For(logger, logging.CategoryHarmonizer))

	var vaultOpts []vault.Option
	if cfg.Vault.Persist {
		persister, err := vault.OpenSQLitePersister(cfg.Vault.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open vault database: %w", err)
		}
		vaultOpts = append(vaultOpts, vault.WithPersister(persister))
	}
	if cfg.Vault.ReadTracing {
		vaultOpts = append(vaultOpts, vault.WithReadTracing())
	}
	v, err := vault.New(h, logging.For(logger, logging.CategoryVault), vaultOpts...)
	if err != nil {
		return nil, err
	}

	auth := consent.New(cfg.Consent, v, logging.For(logger, logging.CategoryConsent))

	var adapter anterior.Adapter
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		adapter, err = anterior.NewGenAIAdapter(cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			logger.Warn("GenAI adapter unavailable, using offline reasoner", zap.Error(err))
			adapter = nil
		}
	}

	var seeds orchestrator.SeedSource
	var watcher *config.SeedWatcher
	if cfg.Seeds.Path != "" {
		watcher, err = config.NewSeedWatcher(cfg.Seeds.Path, logging.For(logger, logging.CategoryConfig), nil)
		if err != nil {
			return nil, fmt.Errorf("load seed file: %w", err)
		}
		if err := watcher.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("watch seed file: %w", err)
		}
		seeds = watcher
	} else {
		seeds = orchestrator.StaticSeeds(cfg.Seeds.Bank)
	}

	core := orchestrator.CoreServices{
		Vault:       v,
		Harmonizer:  h,
		Consent:     auth,
		Resonator:   resonator.New(logging.For(logger, logging.CategoryResonator)),
		Anterior:    anterior.New(adapter, logging.For(logger, logging.CategoryAnterior)),
		EchoStack:   echo.NewStack(logging.For(logger, logging.CategoryEchoStack)),
		EchoRipple:  echo.NewRipple(cfg.Pipeline, logging.For(logger, logging.CategoryEchoRipple)),
		Posterior:   posterior.New(cfg.Pipeline, h, v, logging.For(logger, logging.CategoryPosterior)),
		Articulator: articulator.New(&stdoutSpeaker{}, logging.For(logger, logging.CategoryArticulator)),
	}

	orch := orchestrator.New(core, cfg.Pipeline, seeds,
		logging.For(logger, logging.CategoryOrchestrator),
		orchestrator.WithVoiceStyle(voiceStyle))

	return &services{cfg: cfg, vault: v, consent: auth, orch: orch, watcher: watcher}, nil
}

// stdoutSpeaker is the CLI speaker: articulated verdicts go to standard out.
type stdoutSpeaker struct{}

func (s *stdoutSpeaker) Speak(_ context.Context, text, style string) error {
	if style != "" {
		_, err := fmt.Printf("[%s] %s\n", style, text)
		return err
	}
	_, err := fmt.Println(text)
	return err
}

// submitCmd runs one stimulus through the full loop.
var submitCmd = &cobra.Command{
	Use:   "submit [stimulus]",
	Short: "Run a stimulus through the unified cognition loop",
	Long: `Processes a stimulus through the full pipeline: resonate, anterior
reasoning, echo reflection, ripple stabilization, posterior rethinking, then
the consent gate. The verdict is spoken only on approval.

In manual consent mode the command prompts on the terminal for approval.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.close()

	if svc.consent.Mode() == config.ConsentManual {
		installTerminalPrompt(svc.consent)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stimulus := strings.Join(args, " ")
	started := time.Now()
	result := svc.orch.Submit(ctx, stimulus)

	switch result.Kind {
	case types.ResultArticulated:
		fmt.Printf("\narticulated in %s (confidence %.2f, consensus %s)\n",
			time.Since(started).Round(time.Millisecond), result.Confidence, result.Consensus)
	case types.ResultDenied:
		fmt.Printf("denied: consent resolved as %s\n", result.Reason)
	case types.ResultFailed:
		fmt.Printf("failed at %s: %s\n", result.Stage, result.ErrorKind)
	}
	return nil
}

// installTerminalPrompt routes consent decisions to the operator's terminal.
// Runs as custom logic so the prompt sees the request context.
func installTerminalPrompt(auth *consent.Authority) {
	reader := bufio.NewReader(os.Stdin)
	auth.SetCustomLogic(func(ctx context.Context, q vault.ConsentQuery) (bool, error) {
		fmt.Fprintf(os.Stderr, "consent requested for %q (drift %.2f): approve? [y/N] ", q.Context, q.Drift)
		type answer struct {
			ok  bool
			err error
		}
		ch := make(chan answer, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil {
				ch <- answer{err: err}
				return
			}
			line = strings.ToLower(strings.TrimSpace(line))
			ch <- answer{ok: line == "y" || line == "yes"}
		}()
		select {
		case a := <-ch:
			return a.ok, a.err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "caleon.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&voiceStyle, "voice-style", "", "voice style forwarded to the articulator")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(seedsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
