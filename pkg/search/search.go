// Package search runs a beam search over the strings reachable from an
// input through a transform.Rule, ranking candidates by the saliency an
// external scorer assigns to the positions each candidate edited.
//
// Rounds are strictly sequential: one per stage of the rule's outer
// composition. Inside a round every frontier member is expanded and every
// candidate scored concurrently, followed by a barrier, a merge that keeps
// the higher score for duplicate strings, and truncation to the beam width.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/perturb/pkg/alphabet"
	"github.com/perbu/perturb/pkg/scorer"
	"github.com/perbu/perturb/pkg/transform"
)

const tracerName = "github.com/perbu/perturb/pkg/search"

// Engine searches for adversarial perturbations. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	alpha *alphabet.Alphabet
	rule  transform.Rule
	opts  Options
}

// New creates an engine over alpha and rule. Configuration problems are
// reported by Search, not here.
func New(alpha *alphabet.Alphabet, rule transform.Rule, opts ...Option) *Engine {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{alpha: alpha, rule: rule, opts: o}
}

// Alphabet returns the engine's alphabet.
func (e *Engine) Alphabet() *alphabet.Alphabet { return e.alpha }

// Rule returns the engine's rule tree.
func (e *Engine) Rule() transform.Rule { return e.rule }

// Search returns at most k results ordered by descending score; equal
// scores keep first-generated order.
//
// If a round yields no candidates the frontier of the previous round is
// returned. On cancellation the frontier of the last completed round is
// returned together with the context error.
func (e *Engine) Search(ctx context.Context, s0 string, k int) ([]Result, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search.Engine.Search",
		trace.WithAttributes(
			attribute.Int("k", k),
			attribute.Int("input_len", utf8.RuneCountInString(s0)),
		),
	)
	defer span.End()

	results, outcome, err := e.search(ctx, s0, k)

	searchDuration.Observe(time.Since(start).Seconds())
	searchTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("results", len(results)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, outcome)
	}
	return results, err
}

// Best returns the top result of Search.
func (e *Engine) Best(ctx context.Context, s0 string, k int) (Result, error) {
	results, err := e.Search(ctx, s0, k)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// BestIDs returns the top result as a fitted id sequence, ready to be fed to
// the model.
func (e *Engine) BestIDs(ctx context.Context, s0 string, k int) ([]int, error) {
	best, err := e.Best(ctx, s0, k)
	if err != nil {
		return nil, err
	}
	return e.alpha.ToIDs(best.Text)
}

func (e *Engine) check(k int) error {
	if e.opts.err != nil {
		return e.opts.err
	}
	switch {
	case e.alpha == nil:
		return fmt.Errorf("%w: no alphabet", ErrConfiguration)
	case e.rule == nil:
		return fmt.Errorf("%w: no rule", ErrConfiguration)
	case e.opts.Scorer == nil:
		return fmt.Errorf("%w: no scorer", ErrConfiguration)
	case k < 1:
		return fmt.Errorf("%w: beam width must be positive (%d)", ErrConfiguration, k)
	}
	return nil
}

func (e *Engine) search(ctx context.Context, s0 string, k int) ([]Result, string, error) {
	if err := e.check(k); err != nil {
		return nil, "error", err
	}
	if err := e.alpha.Validate(s0); err != nil {
		return nil, "error", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if s0 == "" && e.opts.RejectEmpty {
		return nil, "error", fmt.Errorf("%w: empty input", ErrValidation)
	}

	log := e.opts.Logger.With("input_len", utf8.RuneCountInString(s0), "k", k)
	var calls atomic.Int64

	sal, err := e.saliency(ctx, s0, &calls)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "canceled", ctx.Err()
		}
		return nil, "error", err
	}
	frontier := []Result{{Text: s0, Score: e.opts.Policy.aggregate(sal, allPositions(s0))}}

	stages := transform.Stages(e.rule)
	for round, stage := range stages {
		if err := ctx.Err(); err != nil {
			log.Debug("search abandoned", "round", round, "error", err)
			return frontier, "canceled", err
		}
		if budget := e.opts.CallBudget; budget > 0 && calls.Load() >= int64(budget) {
			log.Warn("scorer call budget exhausted", "round", round, "calls", calls.Load())
			return frontier, "budget", nil
		}

		next, err := e.round(ctx, round, stage, frontier, k, &calls)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("search abandoned mid-round", "round", round, "error", ctx.Err())
				return frontier, "canceled", ctx.Err()
			}
			log.Error("round failed", "round", round, "error", err)
			return nil, "error", err
		}
		if len(next) == 0 {
			log.Debug("no legal edits, frontier frozen", "round", round, "frontier", len(frontier))
			return frontier, "frozen", nil
		}

		frontier = next
		frontierSize.Observe(float64(len(frontier)))
		log.Debug("round complete",
			"round", round,
			"frontier", len(frontier),
			"best_score", frontier[0].Score,
			"scorer_calls", calls.Load(),
		)
	}
	return frontier, "ok", nil
}

// item is a scored candidate awaiting the merge.
type item struct {
	cand   transform.Candidate
	parent float64
}

func (e *Engine) round(ctx context.Context, round int, stage transform.Rule, frontier []Result, k int, calls *atomic.Int64) ([]Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search.Engine.round",
		trace.WithAttributes(
			attribute.Int("round", round),
			attribute.Int("frontier", len(frontier)),
		),
	)
	defer span.End()

	// Expand every frontier member.
	expansions := make([][]transform.Candidate, len(frontier))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i := range frontier {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			expansions[i] = stage.Apply(frontier[i].Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var items []item
	for i, cands := range expansions {
		for _, c := range cands {
			items = append(items, item{cand: c, parent: frontier[i].Score})
		}
	}
	candidatesTotal.Add(float64(len(items)))
	span.SetAttributes(attribute.Int("candidates", len(items)))
	if len(items) == 0 {
		return nil, nil
	}

	// Score each distinct text once; the scorer is deterministic within a
	// round.
	slot := make(map[string]int, len(items))
	var texts []string
	for _, it := range items {
		if _, ok := slot[it.cand.Text]; !ok {
			slot[it.cand.Text] = len(texts)
			texts = append(texts, it.cand.Text)
		}
	}
	saliencies := make([][]float64, len(texts))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i := range texts {
		g.Go(func() error {
			sal, err := e.saliency(gctx, texts[i], calls)
			if err != nil {
				return err
			}
			saliencies[i] = sal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, err
	}

	scored := make([]Result, len(items))
	for i, it := range items {
		score := e.opts.Policy.best(saliencies[slot[it.cand.Text]], it.cand.EditPaths())
		if e.opts.Cumulative {
			score += it.parent
		}
		scored[i] = Result{Text: it.cand.Text, Score: score}
	}
	return prune(scored, k), nil
}

// saliency calls the scorer on the fitted text and validates its answer.
func (e *Engine) saliency(ctx context.Context, text string, calls *atomic.Int64) ([]float64, error) {
	calls.Add(1)
	sal, err := e.opts.Scorer.Score(ctx, e.alpha.Fit(text))
	if err != nil {
		scorerCalls.WithLabelValues("error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrScorer, err)
	}
	if err := scorer.Validate(sal, e.alpha.MaxLength()); err != nil {
		scorerCalls.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrScorer, err)
	}
	scorerCalls.WithLabelValues("ok").Inc()
	return sal, nil
}

// prune merges duplicate texts keeping the higher score at the position of
// the first occurrence, sorts by descending score and keeps the top k.
func prune(results []Result, k int) []Result {
	index := make(map[string]int, len(results))
	merged := make([]Result, 0, len(results))
	for _, r := range results {
		if j, ok := index[r.Text]; ok {
			if r.Score > merged[j].Score {
				merged[j].Score = r.Score
			}
			continue
		}
		index[r.Text] = len(merged)
		merged = append(merged, r)
	}

	// Sort by score descending
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if k > 0 && k < len(merged) {
		merged = merged[:k]
	}
	return merged
}

func allPositions(s string) []int {
	n := utf8.RuneCountInString(s)
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
