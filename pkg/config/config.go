// Package config loads the YAML description of a perturbation session: the
// alphabet, the rewrite rules and the program combining them, the scorer
// and the search tunables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Environment overrides, applied after the file is read.
const (
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvScorerURL = "PERTURB_SCORER_URL"
)

// DefaultChars is the character-level AG news alphabet.
const DefaultChars = "abcdefghijklmnopqrstuvwxyz0123456789-,;.!?:'\"/\\|_@#$%^&*~`+=<>()[]{} "

type Config struct {
	Alphabet AlphabetConfig        `yaml:"alphabet"`
	Search   SearchConfig          `yaml:"search"`
	Scorer   ScorerConfig          `yaml:"scorer"`
	Rules    map[string]RuleConfig `yaml:"rules"`
	Program  NodeConfig            `yaml:"program"`
}

type AlphabetConfig struct {
	Chars     string `yaml:"chars"`
	MaxLength int    `yaml:"max_length" validate:"gte=1"`
	Padding   string `yaml:"padding"`
}

type SearchConfig struct {
	Beam        int    `yaml:"beam" validate:"gte=1"`
	Policy      string `yaml:"policy" validate:"oneof=max sum"`
	Parallelism int    `yaml:"parallelism,omitempty" validate:"gte=0"`
	Cumulative  bool   `yaml:"cumulative,omitempty"`
	CallBudget  int    `yaml:"call_budget,omitempty" validate:"gte=0"`
	RejectEmpty bool   `yaml:"reject_empty,omitempty"`
}

// Scorer kinds.
const (
	ScorerTable  = "table"  // occlusion over a seeded per-rune embedding table
	ScorerOpenAI = "openai" // occlusion over OpenAI embeddings
	ScorerRemote = "remote" // JSON model server
)

type ScorerConfig struct {
	Kind         string        `yaml:"kind" validate:"oneof=table openai remote"`
	URL          string        `yaml:"url,omitempty" validate:"required_if=Kind remote"`
	Timeout      time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	Model        string        `yaml:"model,omitempty" validate:"required_if=Kind openai"`
	EmbeddingDim int           `yaml:"embedding_dim,omitempty" validate:"required_if=Kind table,gte=0"`
	Seed         uint64        `yaml:"seed,omitempty"`
	RateLimit    float64       `yaml:"rate_limit,omitempty" validate:"gte=0"` // calls per second, 0 = unlimited
	Burst        int           `yaml:"burst,omitempty" validate:"gte=0"`

	// APIKey comes from the environment only.
	APIKey string `yaml:"-"`
}

// CharSet selects runes: In lists them, Except lists everything else in the
// alphabet. Both empty means every rune.
type CharSet struct {
	In     string `yaml:"in,omitempty"`
	Except string `yaml:"except,omitempty"`
}

func (c CharSet) any() bool { return c.In == "" && c.Except == "" }

// RuleConfig describes one context-guarded edit.
type RuleConfig struct {
	Op    string  `yaml:"op"` // insert, substitute, delete
	Guard CharSet `yaml:"guard,omitempty"`
	Chars CharSet `yaml:"chars,omitempty"`
	Left  string  `yaml:"left,omitempty"`
	Right string  `yaml:"right,omitempty"`
}

// NodeConfig is one node of the program tree. Exactly one field is set.
type NodeConfig struct {
	Rule    string        `yaml:"rule,omitempty"`
	Compose []NodeConfig  `yaml:"compose,omitempty"`
	Union   []NodeConfig  `yaml:"union,omitempty"`
	Repeat  *RepeatConfig `yaml:"repeat,omitempty"`
}

type RepeatConfig struct {
	Count int        `yaml:"count"`
	Node  NodeConfig `yaml:"node"`
}

func (n NodeConfig) empty() bool {
	return n.Rule == "" && n.Compose == nil && n.Union == nil && n.Repeat == nil
}

// Default reproduces the character-level AG news setup: substitute any
// non-space rune by any other non-space rune, three times, beam width 10.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Alphabet.Chars == "" {
		c.Alphabet.Chars = DefaultChars
	}
	if c.Alphabet.MaxLength == 0 {
		c.Alphabet.MaxLength = 300
	}
	if c.Alphabet.Padding == "" {
		c.Alphabet.Padding = " "
	}
	if c.Search.Beam == 0 {
		c.Search.Beam = 10
	}
	if c.Search.Policy == "" {
		c.Search.Policy = "max"
	}
	if c.Scorer.Kind == "" {
		c.Scorer.Kind = ScorerTable
	}
	if c.Scorer.Kind == ScorerTable && c.Scorer.EmbeddingDim == 0 {
		c.Scorer.EmbeddingDim = 64
	}
	if c.Scorer.Kind == ScorerOpenAI && c.Scorer.Model == "" {
		c.Scorer.Model = "text-embedding-3-small"
	}
	if len(c.Rules) == 0 && c.Program.empty() {
		c.Rules = map[string]RuleConfig{
			"sub": {
				Op:    "substitute",
				Guard: CharSet{Except: c.Alphabet.Padding},
				Chars: CharSet{Except: c.Alphabet.Padding},
			},
		}
		c.Program = NodeConfig{Repeat: &RepeatConfig{Count: 3, Node: NodeConfig{Rule: "sub"}}}
	}
}

// Load reads path, fills unset fields with defaults and applies environment
// overrides. An empty path yields Default with overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if url := os.Getenv(EnvScorerURL); url != "" {
		c.Scorer.URL = url
	}
	c.Scorer.APIKey = os.Getenv(EnvOpenAIKey)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the fields that need no alphabet to be checked. Rule
// contents are checked by BuildProgram.
func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.Alphabet.Padding) != 1 {
		return fmt.Errorf("%w: alphabet.padding must be a single rune, got %q", ErrInvalidConfig, c.Alphabet.Padding)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (got %v)", ErrInvalidConfig, fe.Namespace(), fe.ActualTag(), fe.Value())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Program.empty() {
		return fmt.Errorf("%w: program is empty", ErrInvalidConfig)
	}
	return nil
}

// ScorerInfo names the scorer backing, for provenance in batch output.
func (c *Config) ScorerInfo() string {
	switch c.Scorer.Kind {
	case ScorerTable:
		return fmt.Sprintf("table(dim=%d, seed=%d)", c.Scorer.EmbeddingDim, c.Scorer.Seed)
	case ScorerOpenAI:
		return "openai(" + c.Scorer.Model + ")"
	case ScorerRemote:
		return "remote(" + c.Scorer.URL + ")"
	default:
		return c.Scorer.Kind
	}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
