package search

import (
	"errors"
	"fmt"
)

// Error categories. Concrete errors wrap one of these; use errors.Is.
var (
	// ErrConfiguration: the engine lacks an alphabet, rule or scorer, or k < 1.
	ErrConfiguration = errors.New("search: configuration error")

	// ErrOptionViolation: an invalid Option was supplied.
	ErrOptionViolation = errors.New("search: invalid option supplied")

	// ErrValidation: the input string cannot be searched.
	ErrValidation = errors.New("search: validation error")

	// ErrScorer: the scorer failed or returned malformed output.
	ErrScorer = errors.New("search: scorer failure")
)

// Result is a perturbed string and its adversarial score.
type Result struct {
	Text  string
	Score float64
}

// Policy aggregates saliency over the positions an edit touched.
type Policy int

const (
	// PolicyMax takes the largest absolute saliency.
	PolicyMax Policy = iota
	// PolicySum adds absolute saliencies.
	PolicySum
)

func (p Policy) String() string {
	switch p {
	case PolicyMax:
		return "max"
	case PolicySum:
		return "sum"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses "max" or "sum".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "max", "":
		return PolicyMax, nil
	case "sum":
		return PolicySum, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrOptionViolation, s)
	}
}

// aggregate applies p to |saliency[i]| for the positions in range.
func (p Policy) aggregate(saliency []float64, positions []int) float64 {
	var acc float64
	for _, pos := range positions {
		if pos < 0 || pos >= len(saliency) {
			continue
		}
		v := saliency[pos]
		if v < 0 {
			v = -v
		}
		switch p {
		case PolicySum:
			acc += v
		default:
			if v > acc {
				acc = v
			}
		}
	}
	return acc
}

// best scores every edit path reaching a text and keeps the highest.
func (p Policy) best(saliency []float64, paths [][]int) float64 {
	var top float64
	for i, path := range paths {
		if v := p.aggregate(saliency, path); i == 0 || v > top {
			top = v
		}
	}
	return top
}
