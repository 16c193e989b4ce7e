// Package pattern compiles the context patterns that guard an edit: a left
// pattern must match the text ending at the cursor, a right pattern the text
// starting at it.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidPattern is returned when a pattern fails to compile.
var ErrInvalidPattern = errors.New("pattern: invalid expression")

// Direction selects which side of the cursor a pattern is tested against.
type Direction int

const (
	// Ending matches a suffix of the text before the cursor (left context).
	Ending Direction = iota
	// Starting matches a prefix of the text from the cursor on (right context).
	Starting
)

func (d Direction) String() string {
	switch d {
	case Ending:
		return "ending"
	case Starting:
		return "starting"
	default:
		return "unknown"
	}
}

// Pattern is a compiled, immutable context pattern.
type Pattern struct {
	expr     string
	wildcard bool
	ending   *regexp.Regexp
	starting *regexp.Regexp
}

var anyPattern = &Pattern{expr: ".*", wildcard: true}

// Any returns the unconstrained wildcard. It matches everywhere.
func Any() *Pattern { return anyPattern }

// Compile compiles a regular-expression context pattern. "" and ".*" yield
// the wildcard.
func Compile(expr string) (*Pattern, error) {
	if expr == "" || expr == ".*" {
		return anyPattern, nil
	}
	ending, err := regexp.Compile(`(?:` + expr + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
	}
	starting, err := regexp.Compile(`\A(?:` + expr + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
	}
	return &Pattern{expr: expr, ending: ending, starting: starting}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Literal matches s exactly.
func Literal(s string) *Pattern {
	if s == "" {
		// the empty literal constrains nothing
		return anyPattern
	}
	return MustCompile(regexp.QuoteMeta(s))
}

// IsWildcard reports whether p matches unconditionally.
func (p *Pattern) IsWildcard() bool { return p == nil || p.wildcard }

func (p *Pattern) String() string {
	if p == nil {
		return anyPattern.expr
	}
	return p.expr
}

// Matches tests p against text at cursor pos. A nil pattern is the wildcard.
// Positions outside [0, len(text)] never match.
func (p *Pattern) Matches(text []rune, pos int, dir Direction) bool {
	if pos < 0 || pos > len(text) {
		return false
	}
	if p.IsWildcard() {
		return true
	}
	switch dir {
	case Ending:
		return p.ending.MatchString(string(text[:pos]))
	case Starting:
		return p.starting.MatchString(string(text[pos:]))
	default:
		return false
	}
}
