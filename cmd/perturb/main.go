package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/perbu/perturb/pkg/config"
)

// app carries the global flags and what is derived from them.
type app struct {
	configPath  string
	verbose     bool
	trace       bool
	metricsAddr string

	cfg           *config.Config
	logger        *slog.Logger
	metrics       *http.Server
	traceShutdown func(context.Context) error
}

func main() {
	// Load .env file if it exists (for API key and scorer URL)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "perturb",
		Short: "Search for adversarial character-level perturbations",
		Long: `Beam search over the strings reachable from an input through a program
of context-guarded insert, substitute and delete rules, ranked by the
saliency a scorer assigns to the edited positions.

Examples:
  perturb search "stocks rally on strong earnings"
  perturb search --config ag.yaml --top 3 --json "some text"
  perturb validate "text to check"
  perturb rules --config ag.yaml
  perturb show adversarial/index.gob --top 20`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"YAML configuration file (default: built-in AG news setup)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"enable debug logging")
	root.PersistentFlags().BoolVar(&a.trace, "trace", false,
		"print OpenTelemetry spans of the search to stderr")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(newSearchCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newRulesCmd(a))
	root.AddCommand(newShowCmd(a))
	return root
}

func (a *app) setup(stderr io.Writer) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.trace {
		shutdown, err := initTracing(stderr)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.traceShutdown = shutdown
	}

	if a.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metrics = &http.Server{Addr: a.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "addr", a.metricsAddr, "error", err)
			}
		}()
		a.logger.Debug("serving metrics", "addr", a.metricsAddr)
	}
	return nil
}

func (a *app) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var errs []error
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping metrics server: %w", err))
		}
	}
	return errors.Join(errs...)
}
