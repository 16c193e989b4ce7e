package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/perturb/pkg/adversarial"
	"github.com/perbu/perturb/pkg/config"
	"github.com/perbu/perturb/pkg/loader"
	"github.com/perbu/perturb/pkg/search"
	"github.com/perbu/perturb/pkg/transform"
)

type options struct {
	configPath string
	corpus     string
	outDir     string
	workers    int
	saveEvery  int
	limit      int
	raw        bool
	verbose    bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := options{}

	cmd := &cobra.Command{
		Use:   "generate-adversarial",
		Short: "Find the best perturbation of every sample in a corpus",
		Long: `Runs the beam search over every non-empty line of the .txt, .md and .csv
files under --corpus and stores the highest-scoring perturbation of each in
<out>/index.gob. Progress is checkpointed; an interrupted run resumes where
it stopped as long as the corpus, program and scorer are unchanged.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, o, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&o.corpus, "corpus", "corpus", "directory holding the input samples")
	cmd.Flags().StringVarP(&o.outDir, "out", "o", "adversarial", "output directory")
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 10, "samples searched concurrently")
	cmd.Flags().IntVar(&o.saveEvery, "save-every", 50, "checkpoint after this many samples")
	cmd.Flags().IntVar(&o.limit, "limit", 0, "only process the first n samples")
	cmd.Flags().BoolVar(&o.raw, "raw", false, "skip lower-casing and alphabet normalisation")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if o.workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", o.workers)
	}

	fmt.Fprintln(stdout, "Adversarial Example Generation Tool")
	fmt.Fprintln(stdout, "===================================")
	fmt.Fprintln(stdout)

	// Step 1: Configuration and engine
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	engine, err := config.BuildEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	rule := transform.Describe(engine.Rule())
	modelInfo := cfg.ScorerInfo()
	settings := provenanceOf(cfg, rule)
	fmt.Fprintf(stdout, "Step 1: Program %s\n", rule)
	fmt.Fprintf(stdout, "  ✓ Scorer %s, beam %d, policy %s\n\n", modelInfo, cfg.Search.Beam, cfg.Search.Policy)

	// Step 2: Load corpus
	fmt.Fprintln(stdout, "Step 2: Loading corpus...")
	samples, err := loader.LoadSamples(os.DirFS(o.corpus), ".")
	if err != nil {
		return fmt.Errorf("loading corpus %s: %w", o.corpus, err)
	}
	if o.limit > 0 && o.limit < len(samples) {
		samples = samples[:o.limit]
	}
	fmt.Fprintf(stdout, "  ✓ Loaded %d samples\n\n", len(samples))

	// Step 3: Resume or start fresh
	checkpointPath := filepath.Join(o.outDir, "checkpoint.gob")
	cp, err := loadCheckpoint(checkpointPath)
	if err != nil {
		logger.Warn("ignoring unreadable checkpoint", "path", checkpointPath, "error", err)
		cp = nil
	}
	if cp != nil {
		if cp.matches(samples, settings) {
			fmt.Fprintf(stdout, "Found checkpoint: %d/%d samples already done\n", len(samples)-len(cp.remaining()), len(samples))
		} else {
			fmt.Fprintln(stdout, "  ⚠ Checkpoint doesn't match current corpus/settings, starting fresh")
			cp = nil
		}
	}
	if cp == nil {
		cp = &checkpoint{
			Samples:   samples,
			Examples:  make([]adversarial.Example, len(samples)),
			Completed: make(map[int]bool),
			Settings:  settings,
		}
	}

	// Step 4: Search
	fmt.Fprintln(stdout, "Step 3: Searching...")
	toProcess := cp.remaining()
	g := &generator{
		engine: engine,
		beam:   cfg.Search.Beam,
		raw:    o.raw,
		cp:     cp,
		save: func() error {
			return saveCheckpoint(checkpointPath, cp)
		},
		saveEvery: o.saveEvery,
		tty:       isTerminal(stdout),
		done:      len(samples) - len(toProcess),
		total:     len(samples),
		stdout:    stdout,
		logger:    logger,
	}
	failures := g.process(ctx, toProcess, o.workers)

	if ctx.Err() != nil {
		fmt.Fprintln(stdout, "\n\n⚠ Interrupted, saving checkpoint...")
		if err := g.save(); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
		fmt.Fprintln(stdout, "✓ Checkpoint saved. Run again to resume.")
		return ctx.Err()
	}
	if len(failures) > 0 {
		fmt.Fprintf(stderr, "\n\n⚠ Encountered %d error(s) during search:\n", len(failures))
		for _, err := range failures {
			fmt.Fprintf(stderr, "  - %v\n", err)
		}
		fmt.Fprintln(stdout, "\nProgress saved to checkpoint. Run again to resume.")
		if err := g.save(); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
		return errors.Join(failures...)
	}
	fmt.Fprintf(stdout, "  ✓ Searched %d samples\n\n", len(samples))

	// Step 5: Final index
	fmt.Fprintln(stdout, "Step 4: Saving final index...")
	outputPath := filepath.Join(o.outDir, "index.gob")
	idx := &adversarial.Index{
		Examples:  cp.Examples,
		Rule:      rule,
		Policy:    cfg.Search.Policy,
		Beam:      cfg.Search.Beam,
		MaxLength: cfg.Alphabet.MaxLength,
		ModelInfo: modelInfo,
	}
	if err := adversarial.Save(outputPath, idx); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	stats := adversarial.Summarize(idx)
	fmt.Fprintf(stdout, "  ✓ Saved to %s (%d examples, %d changed, mean score %.4f)\n\n",
		outputPath, stats.Examples, stats.Changed, stats.MeanScore)

	// Clean up checkpoint file
	if err := os.Remove(checkpointPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("could not remove checkpoint", "path", checkpointPath, "error", err)
	}

	fmt.Fprintln(stdout, "Done! Inspect the results with 'perturb show'.")
	return nil
}

// generator searches samples concurrently and records results in the
// checkpoint.
type generator struct {
	engine    *search.Engine
	beam      int
	raw       bool
	cp        *checkpoint
	save      func() error
	saveEvery int
	tty       bool

	mu          sync.Mutex
	done, total int
	sinceSave   int

	stdout io.Writer
	logger *slog.Logger
}

// process searches the samples at indices; failures are collected and do
// not stop the other samples. Cancellation stops scheduling new work.
func (g *generator) process(ctx context.Context, indices []int, workers int) []error {
	var (
		errMu    sync.Mutex
		failures []error
	)

	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, idx := range indices {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			ex, err := g.searchOne(ctx, idx)
			if err != nil {
				if ctx.Err() == nil {
					errMu.Lock()
					failures = append(failures, fmt.Errorf("sample %d (%s): %w", idx, g.cp.Samples[idx].ID(), err))
					errMu.Unlock()
				}
				return nil
			}
			g.record(idx, ex)
			return nil
		})
	}
	_ = eg.Wait()
	return failures
}

func (g *generator) searchOne(ctx context.Context, idx int) (adversarial.Example, error) {
	sample := g.cp.Samples[idx]
	text := sample.Text
	if !g.raw {
		text = loader.Normalize(g.engine.Alphabet(), text)
	}

	best, err := g.engine.Best(ctx, text, g.beam)
	if err != nil {
		return adversarial.Example{}, err
	}
	ids, err := g.engine.Alphabet().ToIDs(best.Text)
	if err != nil {
		return adversarial.Example{}, err
	}
	g.logger.Debug("sample done", "sample", sample.ID(), "score", best.Score)
	return adversarial.Example{
		Sample:    sample,
		Original:  text,
		Perturbed: best.Text,
		IDs:       ids,
		Score:     best.Score,
	}, nil
}

func (g *generator) record(idx int, ex adversarial.Example) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cp.Examples[idx] = ex
	g.cp.Completed[idx] = true
	g.done++
	g.sinceSave++

	// Show progress, redrawing one line on a terminal
	if g.done%10 == 0 || g.done == g.total {
		pct := float64(g.done) / float64(g.total) * 100
		if g.tty {
			fmt.Fprintf(g.stdout, "\r  Progress: %d/%d (%.1f%%)", g.done, g.total, pct)
			if g.done == g.total {
				fmt.Fprintln(g.stdout)
			}
		} else {
			fmt.Fprintf(g.stdout, "  Progress: %d/%d (%.1f%%)\n", g.done, g.total, pct)
		}
	}

	if g.saveEvery > 0 && g.sinceSave >= g.saveEvery {
		g.sinceSave = 0
		if err := g.save(); err != nil {
			g.logger.Warn("failed to save checkpoint", "error", err)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
