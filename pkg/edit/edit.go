// Package edit defines the atomic string edits a perturbation is built from:
// insertion, substitution and deletion of a single rune at a cursor.
package edit

import "fmt"

// NoRune is passed to an insertion Generator when the cursor sits after
// the last rune.
const NoRune rune = -1

// Kind discriminates the operator variants.
type Kind uint8

const (
	KindInsert Kind = iota + 1
	KindSubstitute
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindSubstitute:
		return "substitute"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Guard decides whether an edit applies to the rune under the cursor.
type Guard func(c rune) bool

// Generator lists the runes an edit may write at the cursor, given the rune
// currently there.
type Generator func(c rune) []rune

// Edit is one operator application: the resulting text and the position that
// was edited, in the coordinates of the resulting text.
type Edit struct {
	Text string
	Pos  int
}

// Operator is a closed variant over the three edit kinds. The zero value is
// invalid; build operators with Insert, Substitute or Delete.
type Operator struct {
	kind  Kind
	guard Guard
	gen   Generator
}

// Insert writes one rune from gen into a gap.
func Insert(gen Generator) Operator {
	return Operator{kind: KindInsert, guard: Always, gen: gen}
}

// Substitute replaces the rune under the cursor by one from gen when guard
// holds.
func Substitute(guard Guard, gen Generator) Operator {
	return Operator{kind: KindSubstitute, guard: guard, gen: gen}
}

// Delete removes the rune under the cursor when guard holds.
func Delete(guard Guard) Operator {
	return Operator{kind: KindDelete, guard: guard}
}

// Kind returns the variant tag.
func (o Operator) Kind() Kind { return o.kind }

// RightOffset is where the right context starts relative to the cursor.
func (o Operator) RightOffset() int {
	if o.kind == KindDelete {
		return 1
	}
	return 0
}

func (o Operator) String() string { return o.kind.String() }

// Candidates returns every string obtained by applying o at pos in s.
// Insert accepts 0..len(s); Substitute and Delete accept 0..len(s)-1.
// s is never modified.
func (o Operator) Candidates(s []rune, pos int) []Edit {
	switch o.kind {
	case KindInsert:
		if pos < 0 || pos > len(s) || o.gen == nil {
			return nil
		}
		cur := NoRune
		if pos < len(s) {
			cur = s[pos]
		}
		chars := unique(o.gen(cur))
		out := make([]Edit, 0, len(chars))
		for _, c := range chars {
			buf := make([]rune, 0, len(s)+1)
			buf = append(buf, s[:pos]...)
			buf = append(buf, c)
			buf = append(buf, s[pos:]...)
			out = append(out, Edit{Text: string(buf), Pos: pos})
		}
		return out

	case KindSubstitute:
		if pos < 0 || pos >= len(s) || o.gen == nil || !o.allowed(s[pos]) {
			return nil
		}
		cur := s[pos]
		chars := unique(o.gen(cur))
		out := make([]Edit, 0, len(chars))
		for _, c := range chars {
			if c == cur {
				continue
			}
			buf := make([]rune, len(s))
			copy(buf, s)
			buf[pos] = c
			out = append(out, Edit{Text: string(buf), Pos: pos})
		}
		return out

	case KindDelete:
		if pos < 0 || pos >= len(s) || !o.allowed(s[pos]) {
			return nil
		}
		buf := make([]rune, 0, len(s)-1)
		buf = append(buf, s[:pos]...)
		buf = append(buf, s[pos+1:]...)
		return []Edit{{Text: string(buf), Pos: pos}}

	default:
		return nil
	}
}

func (o Operator) allowed(c rune) bool {
	return o.guard == nil || o.guard(c)
}

// unique drops repeated runes, keeping first-seen order.
func unique(chars []rune) []rune {
	if len(chars) < 2 {
		return chars
	}
	seen := make(map[rune]struct{}, len(chars))
	out := chars[:0:0]
	for _, c := range chars {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
