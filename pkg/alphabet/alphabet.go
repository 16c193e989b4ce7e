// Package alphabet holds the character set every perturbation search works
// over: the rune↔id mapping, the padding rune, the scorer input length and
// the optional per-rune embedding table supplied by the external model.
//
// An Alphabet is immutable once built. Sessions construct one and pass it to
// every search; swapping embedding weights produces a new value through
// WithEmbeddingTable.
package alphabet

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by constructors and lookups.
var (
	ErrEmptyCharset        = errors.New("alphabet: empty charset")
	ErrDuplicateChar       = errors.New("alphabet: duplicate character")
	ErrPaddingNotInCharset = errors.New("alphabet: padding character not in charset")
	ErrInvalidMaxLength    = errors.New("alphabet: max length must be positive")
	ErrEmbeddingShape      = errors.New("alphabet: embedding table shape mismatch")
	ErrUnknownChar         = errors.New("alphabet: unknown character")
	ErrUnknownID           = errors.New("alphabet: unknown id")
	ErrNonDenseIDs         = errors.New("alphabet: ids must be dense and zero-based")
)

// DefaultMaxLength matches the input width of the character CNN this
// package was first used with.
const DefaultMaxLength = 300

// DefaultPadding is used when no padding option is given.
const DefaultPadding = ' '

// Alphabet is the legal character set plus its padding and length policy.
type Alphabet struct {
	chars     []rune
	ids       map[rune]int
	maxLength int
	padding   rune
	embedding [][]float32
}

// Option configures an Alphabet at construction time.
type Option func(*options)

type options struct {
	maxLength int
	padding   rune
	embedding [][]float32
	err       error
}

// WithMaxLength sets the scorer input length.
func WithMaxLength(n int) Option {
	return func(o *options) {
		if n <= 0 {
			o.err = fmt.Errorf("%w: got %d", ErrInvalidMaxLength, n)
			return
		}
		o.maxLength = n
	}
}

// WithPadding sets the rune used to pad strings up to the max length.
func WithPadding(r rune) Option {
	return func(o *options) { o.padding = r }
}

// WithEmbedding attaches a per-id embedding table. Rows are indexed by id.
func WithEmbedding(table [][]float32) Option {
	return func(o *options) { o.embedding = table }
}

// New builds an Alphabet whose ids follow the order of runes in chars.
func New(chars string, opts ...Option) (*Alphabet, error) {
	o := options{maxLength: DefaultMaxLength, padding: DefaultPadding}
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}

	runes := []rune(chars)
	if len(runes) == 0 {
		return nil, ErrEmptyCharset
	}
	ids := make(map[rune]int, len(runes))
	for i, r := range runes {
		if _, dup := ids[r]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChar, r)
		}
		ids[r] = i
	}
	if _, ok := ids[o.padding]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrPaddingNotInCharset, o.padding)
	}

	a := &Alphabet{
		chars:     runes,
		ids:       ids,
		maxLength: o.maxLength,
		padding:   o.padding,
	}
	if o.embedding != nil {
		if err := a.checkEmbedding(o.embedding); err != nil {
			return nil, err
		}
		a.embedding = o.embedding
	}
	return a, nil
}

// FromIDs builds an Alphabet from a rune→id dictionary. The ids must be
// exactly 0..len(dict)-1.
func FromIDs(dict map[rune]int, opts ...Option) (*Alphabet, error) {
	if len(dict) == 0 {
		return nil, ErrEmptyCharset
	}
	chars := make([]rune, len(dict))
	seen := make([]bool, len(dict))
	for r, id := range dict {
		if id < 0 || id >= len(dict) || seen[id] {
			return nil, fmt.Errorf("%w: %q has id %d", ErrNonDenseIDs, r, id)
		}
		seen[id] = true
		chars[id] = r
	}
	return New(string(chars), opts...)
}

func (a *Alphabet) checkEmbedding(table [][]float32) error {
	if len(table) != len(a.chars) {
		return fmt.Errorf("%w: %d rows for %d characters", ErrEmbeddingShape, len(table), len(a.chars))
	}
	dim := len(table[0])
	if dim == 0 {
		return fmt.Errorf("%w: zero-width rows", ErrEmbeddingShape)
	}
	for i, row := range table {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has width %d, want %d", ErrEmbeddingShape, i, len(row), dim)
		}
	}
	return nil
}

// WithEmbeddingTable returns a copy of a using table as its embedding.
// The receiver is left untouched so searches already holding it are not
// affected.
func (a *Alphabet) WithEmbeddingTable(table [][]float32) (*Alphabet, error) {
	if err := a.checkEmbedding(table); err != nil {
		return nil, err
	}
	cp := *a
	cp.embedding = table
	return &cp, nil
}

// Size returns the number of characters.
func (a *Alphabet) Size() int { return len(a.chars) }

// MaxLength returns the scorer input length.
func (a *Alphabet) MaxLength() int { return a.maxLength }

// Padding returns the padding rune.
func (a *Alphabet) Padding() rune { return a.padding }

// Chars returns the charset in id order.
func (a *Alphabet) Chars() []rune {
	out := make([]rune, len(a.chars))
	copy(out, a.chars)
	return out
}

// Contains reports whether r is part of the charset.
func (a *Alphabet) Contains(r rune) bool {
	_, ok := a.ids[r]
	return ok
}

// ID returns the id of r.
func (a *Alphabet) ID(r rune) (int, bool) {
	id, ok := a.ids[r]
	return id, ok
}

// Char returns the rune with the given id.
func (a *Alphabet) Char(id int) (rune, error) {
	if id < 0 || id >= len(a.chars) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return a.chars[id], nil
}

// Validate returns ErrUnknownChar for the first rune of s outside the charset.
func (a *Alphabet) Validate(s string) error {
	pos := 0
	for _, r := range s {
		if _, ok := a.ids[r]; !ok {
			return fmt.Errorf("%w: %q at position %d", ErrUnknownChar, r, pos)
		}
		pos++
	}
	return nil
}

// Fit truncates or pads s to exactly MaxLength runes.
func (a *Alphabet) Fit(s string) string {
	runes := []rune(s)
	if len(runes) >= a.maxLength {
		return string(runes[:a.maxLength])
	}
	var b strings.Builder
	b.Grow(len(s) + (a.maxLength-len(runes))*4)
	b.WriteString(s)
	for i := len(runes); i < a.maxLength; i++ {
		b.WriteRune(a.padding)
	}
	return b.String()
}

// ToIDs converts s to a fitted id sequence of length MaxLength.
func (a *Alphabet) ToIDs(s string) ([]int, error) {
	if err := a.Validate(s); err != nil {
		return nil, err
	}
	fitted := []rune(a.Fit(s))
	ids := make([]int, len(fitted))
	for i, r := range fitted {
		ids[i] = a.ids[r]
	}
	return ids, nil
}

// ToString maps ids back to text and drops trailing padding.
func (a *Alphabet) ToString(ids []int) (string, error) {
	runes := make([]rune, len(ids))
	for i, id := range ids {
		r, err := a.Char(id)
		if err != nil {
			return "", err
		}
		runes[i] = r
	}
	end := len(runes)
	for end > 0 && runes[end-1] == a.padding {
		end--
	}
	return string(runes[:end]), nil
}

// HasEmbedding reports whether an embedding table is attached.
func (a *Alphabet) HasEmbedding() bool { return a.embedding != nil }

// EmbeddingDim returns the embedding width, or 0 without a table.
func (a *Alphabet) EmbeddingDim() int {
	if a.embedding == nil {
		return 0
	}
	return len(a.embedding[0])
}

// Embedding returns the embedding row for id, or nil.
func (a *Alphabet) Embedding(id int) []float32 {
	if a.embedding == nil || id < 0 || id >= len(a.embedding) {
		return nil
	}
	return a.embedding[id]
}
