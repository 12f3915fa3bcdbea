package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/rsalab/internal/config"
	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/logger"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configFile string
	logLevel   string

	cfg    *config.Config
	log    *zap.Logger
	engine *engine.Engine
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	log, err := logger.New(cfg.Log, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.cfg = cfg
	a.log = log
	a.engine = engine.New(cfg, log)
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "rsalab",
		Short: "Generate and inspect RSA keys",
		Long: `rsalab generates RSA key pairs from its own prime search, parses PEM
encoded keys, and derives every RSA parameter (modulus, exponents, primes,
CRT values, totients) together with a check of the relationships between them.

It also benchmarks key generation and serves the same operations over HTTP.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newGenerateCmd(a),
		newAnalyzeCmd(a),
		newBenchCmd(a),
		newServeCmd(a),
		newConfigCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
