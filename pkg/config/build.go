package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"

	"github.com/perbu/perturb/pkg/alphabet"
	"github.com/perbu/perturb/pkg/edit"
	"github.com/perbu/perturb/pkg/embedder"
	"github.com/perbu/perturb/pkg/pattern"
	"github.com/perbu/perturb/pkg/scorer"
	"github.com/perbu/perturb/pkg/search"
	"github.com/perbu/perturb/pkg/transform"
)

// BuildAlphabet constructs the session alphabet. The table scorer gets a
// seeded embedding table attached.
func BuildAlphabet(c *Config) (*alphabet.Alphabet, error) {
	padding := []rune(c.Alphabet.Padding)
	if len(padding) != 1 {
		return nil, fmt.Errorf("%w: alphabet.padding must be a single rune", ErrInvalidConfig)
	}
	opts := []alphabet.Option{
		alphabet.WithMaxLength(c.Alphabet.MaxLength),
		alphabet.WithPadding(padding[0]),
	}
	if c.Scorer.Kind == ScorerTable {
		n := len([]rune(c.Alphabet.Chars))
		opts = append(opts, alphabet.WithEmbedding(seededTable(n, c.Scorer.EmbeddingDim, c.Scorer.Seed)))
	}
	a, err := alphabet.New(c.Alphabet.Chars, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: alphabet: %w", ErrInvalidConfig, err)
	}
	return a, nil
}

// seededTable draws a reproducible rows x dim table in [-1, 1).
func seededTable(rows, dim int, seed uint64) [][]float32 {
	rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	table := make([][]float32, rows)
	for i := range table {
		row := make([]float32, dim)
		for j := range row {
			row[j] = rng.Float32()*2 - 1
		}
		table[i] = row
	}
	return table
}

// BuildProgram compiles the rules and the program tree into a rule.
func BuildProgram(c *Config, a *alphabet.Alphabet) (transform.Rule, error) {
	names := make([]string, 0, len(c.Rules))
	for name := range c.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	leaves := make(map[string]*transform.Leaf, len(names))
	for _, name := range names {
		leaf, err := buildRule(c.Rules[name], a)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %w", ErrInvalidConfig, name, err)
		}
		leaves[name] = leaf
	}
	return buildNode(c.Program, leaves, "program")
}

func buildRule(rc RuleConfig, a *alphabet.Alphabet) (*transform.Leaf, error) {
	left, err := pattern.Compile(rc.Left)
	if err != nil {
		return nil, err
	}
	right, err := pattern.Compile(rc.Right)
	if err != nil {
		return nil, err
	}

	var op edit.Operator
	switch rc.Op {
	case "insert":
		if !rc.Guard.any() {
			return nil, errors.New("insert takes no guard")
		}
		gen, err := generatorFor(rc.Chars, a)
		if err != nil {
			return nil, err
		}
		op = edit.Insert(gen)
	case "substitute":
		guard, err := guardFor(rc.Guard, a)
		if err != nil {
			return nil, err
		}
		gen, err := generatorFor(rc.Chars, a)
		if err != nil {
			return nil, err
		}
		op = edit.Substitute(guard, gen)
	case "delete":
		if !rc.Chars.any() {
			return nil, errors.New("delete takes no chars")
		}
		guard, err := guardFor(rc.Guard, a)
		if err != nil {
			return nil, err
		}
		op = edit.Delete(guard)
	default:
		return nil, fmt.Errorf("unknown op %q", rc.Op)
	}
	return transform.New(left, op, right), nil
}

func runesOf(set string, a *alphabet.Alphabet) ([]rune, error) {
	runes := []rune(set)
	for _, r := range runes {
		if !a.Contains(r) {
			return nil, fmt.Errorf("%w: %q", alphabet.ErrUnknownChar, r)
		}
	}
	return runes, nil
}

func guardFor(cs CharSet, a *alphabet.Alphabet) (edit.Guard, error) {
	switch {
	case cs.In != "" && cs.Except != "":
		return nil, errors.New("guard sets both in and except")
	case cs.In != "":
		runes, err := runesOf(cs.In, a)
		if err != nil {
			return nil, err
		}
		return edit.OneOf(runes...), nil
	case cs.Except != "":
		runes, err := runesOf(cs.Except, a)
		if err != nil {
			return nil, err
		}
		return edit.NoneOf(runes...), nil
	default:
		return edit.Always, nil
	}
}

func generatorFor(cs CharSet, a *alphabet.Alphabet) (edit.Generator, error) {
	switch {
	case cs.In != "" && cs.Except != "":
		return nil, errors.New("chars sets both in and except")
	case cs.In != "":
		runes, err := runesOf(cs.In, a)
		if err != nil {
			return nil, err
		}
		return edit.Set(runes...), nil
	case cs.Except != "":
		runes, err := runesOf(cs.Except, a)
		if err != nil {
			return nil, err
		}
		return edit.Except(a.Chars(), runes...), nil
	default:
		return edit.Set(a.Chars()...), nil
	}
}

func buildNode(n NodeConfig, leaves map[string]*transform.Leaf, where string) (transform.Rule, error) {
	set := 0
	for _, ok := range []bool{n.Rule != "", n.Compose != nil, n.Union != nil, n.Repeat != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: %s: exactly one of rule, compose, union, repeat must be set", ErrInvalidConfig, where)
	}

	switch {
	case n.Rule != "":
		leaf, ok := leaves[n.Rule]
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown rule %q", ErrInvalidConfig, where, n.Rule)
		}
		return leaf, nil
	case n.Repeat != nil:
		if n.Repeat.Count < 0 {
			return nil, fmt.Errorf("%w: %s: negative repeat count", ErrInvalidConfig, where)
		}
		child, err := buildNode(n.Repeat.Node, leaves, where+".repeat")
		if err != nil {
			return nil, err
		}
		return transform.Repeat(child, n.Repeat.Count), nil
	}

	children := n.Compose
	kind := "compose"
	if n.Union != nil {
		children, kind = n.Union, "union"
	}
	rules := make([]transform.Rule, 0, len(children))
	for i, child := range children {
		r, err := buildNode(child, leaves, fmt.Sprintf("%s.%s[%d]", where, kind, i))
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if kind == "union" {
		return transform.Union(rules...), nil
	}
	return transform.Compose(rules...), nil
}

// BuildScorer wires the configured saliency oracle, rate limited when
// scorer.rate_limit is set.
func BuildScorer(c *Config, a *alphabet.Alphabet) (scorer.Scorer, error) {
	sc, err := buildScorer(c, a)
	if err != nil {
		return nil, err
	}
	if c.Scorer.RateLimit > 0 {
		return scorer.NewLimited(sc, c.Scorer.RateLimit, c.Scorer.Burst), nil
	}
	return sc, nil
}

func buildScorer(c *Config, a *alphabet.Alphabet) (scorer.Scorer, error) {
	switch c.Scorer.Kind {
	case ScorerTable:
		emb, err := embedder.NewTableEmbedder(a)
		if err != nil {
			return nil, err
		}
		return scorer.NewOcclusion(a, emb), nil
	case ScorerOpenAI:
		emb, err := embedder.NewOpenAIEmbedder(c.Scorer.Model, c.Scorer.APIKey)
		if err != nil {
			return nil, err
		}
		return scorer.NewOcclusion(a, emb), nil
	case ScorerRemote:
		timeout := c.Scorer.Timeout
		if timeout <= 0 {
			timeout = scorer.DefaultTimeout
		}
		return scorer.NewRemote(c.Scorer.URL, a, &http.Client{Timeout: timeout}), nil
	default:
		return nil, fmt.Errorf("%w: unknown scorer.kind %q", ErrInvalidConfig, c.Scorer.Kind)
	}
}

// BuildEngineOptions turns the search section into engine options.
func BuildEngineOptions(c *Config, sc scorer.Scorer, logger *slog.Logger) ([]search.Option, error) {
	policy, err := search.ParsePolicy(c.Search.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	opts := []search.Option{
		search.WithScorer(sc),
		search.WithPolicy(policy),
		search.WithCumulative(c.Search.Cumulative),
		search.WithCallBudget(c.Search.CallBudget),
		search.WithLogger(logger),
	}
	if c.Search.Parallelism > 0 {
		opts = append(opts, search.WithParallelism(c.Search.Parallelism))
	}
	if c.Search.RejectEmpty {
		opts = append(opts, search.WithRejectEmpty())
	}
	return opts, nil
}

// BuildEngine assembles alphabet, program, scorer and engine.
func BuildEngine(c *Config, logger *slog.Logger) (*search.Engine, error) {
	a, err := BuildAlphabet(c)
	if err != nil {
		return nil, err
	}
	rule, err := BuildProgram(c, a)
	if err != nil {
		return nil, err
	}
	sc, err := BuildScorer(c, a)
	if err != nil {
		return nil, err
	}
	opts, err := BuildEngineOptions(c, sc, logger)
	if err != nil {
		return nil, err
	}
	return search.New(a, rule, opts...), nil
}
