// Package transform implements the rewrite-rule algebra searched by the
// beam engine: context-guarded edits (Leaf) combined by sequencing (Seq) and
// alternation (Alt).
//
// A rule tree is built once and never mutated. Applying a rule to a string
// yields the set of strings reachable by one legal application; an empty set
// marks a dead branch and is not an error.
package transform

import (
	"slices"
	"strconv"
	"strings"

	"github.com/perbu/perturb/pkg/edit"
	"github.com/perbu/perturb/pkg/pattern"
)

// Candidate is a string produced by a rule. Each entry of Paths is the set
// of positions edited relative to the rule's input, in the candidate's
// coordinates, by one distinct way of reaching Text.
type Candidate struct {
	Text  string
	Paths [][]int
}

// EditPaths returns Paths, or a single empty path for a candidate no edit
// has touched.
func (c Candidate) EditPaths() [][]int {
	if len(c.Paths) == 0 {
		return [][]int{nil}
	}
	return c.Paths
}

// Rule is a node of the rule tree. The set of implementations is closed:
// *Leaf, *Seq and *Alt.
type Rule interface {
	// Apply returns the deduplicated candidates reachable from text.
	Apply(text string) []Candidate

	extend(c Candidate) []Candidate
}

// Leaf is a single context-sensitive rewrite rule: the edit is legal at a
// cursor when left matches the text ending there and right matches the text
// starting there (after the removed rune, for deletions).
type Leaf struct {
	left  *pattern.Pattern
	op    edit.Operator
	right *pattern.Pattern
}

// New builds a leaf rule. Nil patterns are wildcards.
func New(left *pattern.Pattern, op edit.Operator, right *pattern.Pattern) *Leaf {
	if left == nil {
		left = pattern.Any()
	}
	if right == nil {
		right = pattern.Any()
	}
	return &Leaf{left: left, op: op, right: right}
}

// Operator returns the edit applied by the leaf.
func (l *Leaf) Operator() edit.Operator { return l.op }

func (l *Leaf) Apply(text string) []Candidate {
	return l.extend(Candidate{Text: text})
}

func (l *Leaf) extend(c Candidate) []Candidate {
	runes := []rune(c.Text)
	var d dedup
	for i := 0; i <= len(runes); i++ {
		if !l.left.Matches(runes, i, pattern.Ending) {
			continue
		}
		if !l.right.Matches(runes, i+l.op.RightOffset(), pattern.Starting) {
			continue
		}
		for _, e := range l.op.Candidates(runes, i) {
			next := Candidate{Text: e.Text}
			for _, p := range c.EditPaths() {
				next.Paths = append(next.Paths, shift(p, l.op.Kind(), e.Pos))
			}
			d.add(next)
		}
	}
	return d.out
}

// Seq applies its children in order; every stage must produce something.
type Seq struct {
	rules []Rule
}

// Compose sequences rules. With no rules the result is the identity.
func Compose(rules ...Rule) *Seq {
	return &Seq{rules: append([]Rule(nil), rules...)}
}

// Repeat is Compose(r, r, ..., r) with n copies.
func Repeat(r Rule, n int) *Seq {
	rules := make([]Rule, 0, max(n, 0))
	for i := 0; i < n; i++ {
		rules = append(rules, r)
	}
	return &Seq{rules: rules}
}

// Rules returns the stages of the sequence.
func (s *Seq) Rules() []Rule { return append([]Rule(nil), s.rules...) }

func (s *Seq) Apply(text string) []Candidate {
	return s.extend(Candidate{Text: text})
}

func (s *Seq) extend(c Candidate) []Candidate {
	current := []Candidate{c}
	for _, r := range s.rules {
		var d dedup
		for _, cand := range current {
			for _, next := range r.extend(cand) {
				d.add(next)
			}
		}
		if len(d.out) == 0 {
			return nil
		}
		current = d.out
	}
	return current
}

// Alt branches into every child independently.
type Alt struct {
	rules []Rule
}

// Union builds an alternation over rules.
func Union(rules ...Rule) *Alt {
	return &Alt{rules: append([]Rule(nil), rules...)}
}

// Rules returns the alternatives.
func (a *Alt) Rules() []Rule { return append([]Rule(nil), a.rules...) }

func (a *Alt) Apply(text string) []Candidate {
	return a.extend(Candidate{Text: text})
}

func (a *Alt) extend(c Candidate) []Candidate {
	var d dedup
	for _, r := range a.rules {
		for _, next := range r.extend(c) {
			d.add(next)
		}
	}
	return d.out
}

// Stages splits r into search rounds: the children of an outer Seq, or r
// itself.
func Stages(r Rule) []Rule {
	if s, ok := r.(*Seq); ok {
		return s.Rules()
	}
	return []Rule{r}
}

// shift moves previously edited positions across a new edit at pos and
// appends pos.
func shift(prev []int, kind edit.Kind, pos int) []int {
	out := make([]int, 0, len(prev)+1)
	seen := false
	for _, p := range prev {
		switch kind {
		case edit.KindInsert:
			if p >= pos {
				p++
			}
		case edit.KindDelete:
			if p > pos {
				p--
			}
		}
		if p == pos {
			if seen {
				continue
			}
			seen = true
		}
		out = append(out, p)
	}
	if !seen {
		out = append(out, pos)
	}
	return out
}

// dedup collects candidates by text in first-seen order, merging the edit
// paths of later occurrences into the first.
type dedup struct {
	index map[string]int
	paths []map[string]struct{}
	out   []Candidate
}

func (d *dedup) add(c Candidate) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	j, ok := d.index[c.Text]
	if !ok {
		j = len(d.out)
		d.index[c.Text] = j
		d.out = append(d.out, Candidate{Text: c.Text})
		d.paths = append(d.paths, make(map[string]struct{}))
	}
	for _, p := range c.Paths {
		k := pathKey(p)
		if _, dup := d.paths[j][k]; dup {
			continue
		}
		d.paths[j][k] = struct{}{}
		d.out[j].Paths = append(d.out[j].Paths, p)
	}
}

// pathKey identifies a set of positions regardless of order.
func pathKey(p []int) string {
	sorted := slices.Clone(p)
	slices.Sort(sorted)
	var b strings.Builder
	for i, pos := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(pos))
	}
	return b.String()
}
