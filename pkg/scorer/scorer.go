// Package scorer defines the saliency oracle consumed by the search engine
// and a few implementations of it.
//
// A Scorer receives a string already padded or truncated to the alphabet's
// max length and returns one saliency value per rune: an estimate of how
// much perturbing that position moves the model's loss. Scorers must be
// deterministic for a fixed model state and must not touch search state.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned when a saliency vector has the wrong length or
// holds non-finite values.
var ErrMalformed = errors.New("scorer: malformed saliency")

// Scorer maps a fitted string to per-position saliency.
type Scorer interface {
	Score(ctx context.Context, text string) ([]float64, error)
}

// Func adapts a plain function to the Scorer interface.
type Func func(ctx context.Context, text string) ([]float64, error)

// Score calls f.
func (f Func) Score(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

// Validate checks a saliency vector against the expected length.
func Validate(saliency []float64, length int) error {
	if len(saliency) != length {
		return fmt.Errorf("%w: got %d values, want %d", ErrMalformed, len(saliency), length)
	}
	for i, v := range saliency {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at position %d", ErrMalformed, i)
		}
	}
	return nil
}
