package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/rsalab/internal/benchmark"
	"github.com/user/rsalab/internal/config"
	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/keygen"
	"github.com/user/rsalab/internal/logger"
	"github.com/user/rsalab/internal/output"
	"github.com/user/rsalab/internal/server"
	"github.com/user/rsalab/pkg/sysinfo"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		bits         int
		format       string
		outDir       string
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an RSA key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("format") {
				if _, err := keycodec.ParsePrivateFormat(format); err != nil {
					return err
				}
				// the engine reads the layout from config
				a.cfg.Engine.PrivateKeyFormat = format
				a.engine = engine.New(a.cfg, a.log)
			}

			var observe keygen.Observer
			if showProgress {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSpinnerType(14),
					progressbar.OptionSetDescription(fmt.Sprintf("[RSA-%d]", bits)),
					progressbar.OptionClearOnFinish(),
				)
				observe = func(ev keygen.Event) {
					bar.Describe(fmt.Sprintf("[RSA-%d] %s (attempt %d)", bits, ev.State, ev.Attempt))
					bar.Add(1)
					if ev.State == keygen.Done || ev.State == keygen.Failed {
						bar.Finish()
					}
				}
			}

			pair, err := a.engine.GenerateRSAKeyObserved(cmd.Context(), bits, observe)
			if err != nil {
				return err
			}

			if outDir == "" {
				out := cmd.OutOrStdout()
				fmt.Fprint(out, pair.PrivateKeyPEM)
				fmt.Fprint(out, pair.PublicKeyPEM)
				return nil
			}

			return writeKeyPair(cmd.OutOrStdout(), outDir, pair)
		},
	}

	cmd.Flags().IntVarP(&bits, "bits", "b", 2048, "Modulus size in bits")
	cmd.Flags().StringVarP(&format, "format", "f", string(keycodec.FormatPKCS8), "Private key layout (pkcs8, pkcs1)")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Write PEM files to this directory instead of stdout")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show generator progress")
	return cmd
}

func writeKeyPair(w io.Writer, dir string, pair *engine.KeyPair) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	privPath := filepath.Join(dir, fmt.Sprintf("rsa_%d_private.pem", pair.Bits))
	pubPath := filepath.Join(dir, fmt.Sprintf("rsa_%d_public.pem", pair.Bits))

	if err := os.WriteFile(privPath, []byte(pair.PrivateKeyPEM), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pair.PublicKeyPEM), 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	fmt.Fprintf(w, "Wrote %s\nWrote %s\n", privPath, pubPath)
	return nil
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "analyze [FILE|-]",
		Short: "Derive and check the parameters of a PEM encoded RSA key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.NewFormatter(outputFormat)
			if err != nil {
				return fmt.Errorf("invalid output format: %w", err)
			}

			var data []byte
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read key: %w", err)
			}

			analysis, err := a.engine.AnalyzeRSAKey(cmd.Context(), string(data))
			if err != nil {
				return err
			}
			return formatter.FormatAnalysis(cmd.OutOrStdout(), analysis)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format (table, json, csv)")
	return cmd
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		keySizes     []int
		iterations   int
		parallel     int
		outputFormat string
		outputFile   string
		verbose      bool
		showProgress bool
		timeout      int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark RSA key generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.NewFormatter(outputFormat)
			if err != nil {
				return fmt.Errorf("invalid output format: %w", err)
			}

			sysInfo, err := sysinfo.Collect(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to collect system info: %w", err)
			}

			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "System: %s/%s, %s (%d cores), %.2f GB, %s\n",
					sysInfo.OS, sysInfo.Architecture, sysInfo.CPUModel, sysInfo.CPUCores,
					float64(sysInfo.TotalMemory)/(1024*1024*1024), sysInfo.GoVersion)
			}

			cfg := benchmark.Config{
				KeySizes:     keySizes,
				Iterations:   iterations,
				Parallel:     parallel,
				ShowProgress: showProgress,
				Timeout:      timeout,
				Verbose:      verbose,
			}

			start := time.Now()
			results, err := benchmark.NewRunner(cfg, a.engine).Run(cmd.Context())
			if err != nil {
				if len(results) == 0 {
					return fmt.Errorf("benchmark failed: %w", err)
				}
				a.log.Warn("benchmark stopped early, reporting partial results", zap.Error(err))
			}
			a.log.Debug("benchmark finished",
				zap.Ints("key_sizes", keySizes),
				zap.Duration("elapsed", time.Since(start)))

			out := cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			return formatter.Format(out, output.Data{
				SystemInfo: sysInfo,
				Results:    results,
				Config:     cfg,
			})
		},
	}

	cmd.Flags().IntSliceVarP(&keySizes, "key-sizes", "k", []int{1024, 2048}, "Key sizes to benchmark")
	cmd.Flags().IntVarP(&iterations, "iterations", "i", 5, "Number of iterations per worker")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "Number of parallel workers")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format (table, json, csv)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress bar")
	cmd.Flags().IntVarP(&timeout, "timeout", "t", 300, "Timeout in seconds for the whole run")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the key engine over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			// the server logs JSON rather than console lines
			srvLog, err := logger.New(a.cfg.Log, false)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer srvLog.Sync()

			srv, err := server.NewServer(a.cfg, engine.New(a.cfg, srvLog), srvLog)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://localhost:%d, press Ctrl+C to stop\n", a.cfg.Server.Port)
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print a commented config file with the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.TemplateProfile)
			return err
		},
	}
}
