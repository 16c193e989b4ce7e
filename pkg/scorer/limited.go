package scorer

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles an underlying scorer, typically a paid or shared model
// endpoint.
type Limited struct {
	next    Scorer
	limiter *rate.Limiter
}

// NewLimited allows perSecond calls with the given burst.
func NewLimited(next Scorer, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Score waits for a token, then delegates.
func (l *Limited) Score(ctx context.Context, text string) ([]float64, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Score(ctx, text)
}
