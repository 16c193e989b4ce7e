package search

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/perbu/perturb/pkg/scorer"
)

// Option configures an Engine. Invalid values are recorded and reported as
// ErrOptionViolation by Search.
type Option func(*Options)

// Options holds the tunables of an Engine.
type Options struct {
	// Scorer supplies per-position saliency. Required.
	Scorer scorer.Scorer

	// Policy aggregates saliency at edited positions. Default PolicyMax.
	Policy Policy

	// Parallelism bounds concurrent expansions and scorer calls within a
	// round. Default runtime.GOMAXPROCS(0).
	Parallelism int

	// Cumulative adds the parent's score to each successor's edit score.
	Cumulative bool

	// CallBudget, if > 0, stops the search at the first round boundary
	// where this many scorer calls have been spent.
	CallBudget int

	// RejectEmpty makes an empty input a validation error instead of a
	// frozen single-element result.
	RejectEmpty bool

	Logger *slog.Logger

	err error
}

// DefaultOptions returns max policy, GOMAXPROCS parallelism and the default
// logger.
func DefaultOptions() Options {
	return Options{
		Policy:      PolicyMax,
		Parallelism: runtime.GOMAXPROCS(0),
		Logger:      slog.Default(),
	}
}

// WithScorer sets the saliency oracle.
func WithScorer(s scorer.Scorer) Option {
	return func(o *Options) { o.Scorer = s }
}

// WithPolicy selects max or sum aggregation.
func WithPolicy(p Policy) Option {
	return func(o *Options) {
		if p != PolicyMax && p != PolicySum {
			o.err = fmt.Errorf("%w: unknown policy %d", ErrOptionViolation, int(p))
			return
		}
		o.Policy = p
	}
}

// WithParallelism bounds in-round concurrency; n must be positive.
func WithParallelism(n int) Option {
	return func(o *Options) {
		if n < 1 {
			o.err = fmt.Errorf("%w: parallelism must be positive (%d)", ErrOptionViolation, n)
			return
		}
		o.Parallelism = n
	}
}

// WithCumulative toggles path-cumulative scores.
func WithCumulative(on bool) Option {
	return func(o *Options) { o.Cumulative = on }
}

// WithCallBudget caps scorer calls; 0 disables the cap.
func WithCallBudget(n int) Option {
	return func(o *Options) {
		if n < 0 {
			o.err = fmt.Errorf("%w: call budget cannot be negative (%d)", ErrOptionViolation, n)
			return
		}
		o.CallBudget = n
	}
}

// WithRejectEmpty rejects empty inputs with ErrValidation.
func WithRejectEmpty() Option {
	return func(o *Options) { o.RejectEmpty = true }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
