package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/perturb/pkg/adversarial"
	"github.com/perbu/perturb/pkg/loader"
)

const testConfig = `
alphabet:
  chars: "abc "
  max_length: 8
search:
  beam: 4
scorer:
  kind: table
  embedding_dim: 8
  seed: 3
rules:
  sub:
    op: substitute
    guard: {except: " "}
    chars: {except: " "}
program:
  repeat: {count: 2, node: {rule: sub}}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runWithStderr(t, args...)
	return out, err
}

func runWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("PERTURB_SCORER_URL", "")

	cfgPath := filepath.Join(t.TempDir(), "perturb.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestSearchCommand(t *testing.T) {
	out, err := run(t, "search", "--top", "3", "abc", "ab")
	require.NoError(t, err)

	assert.Contains(t, out, "Found 3 results:")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5)
	for _, l := range lines[2:] {
		assert.True(t, strings.HasPrefix(l, "Score: "), l)
	}
}

func TestSearchCommand_JSON(t *testing.T) {
	out, err := run(t, "search", "--json", "--policy", "sum", "abca")
	require.NoError(t, err)

	var results []jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 4)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchCommand_Normalize(t *testing.T) {
	_, err := run(t, "search", "ABZ")
	assert.Error(t, err)

	_, err = run(t, "search", "--normalize", "ABZ")
	assert.NoError(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "validate", "abc cab ba")
	require.NoError(t, err)
	assert.Equal(t, "ok: 10 runes (scorer sees the first 8)\n", out)

	_, err = run(t, "validate", "abd")
	assert.Error(t, err)
}

func TestRulesCommand(t *testing.T) {
	out, err := run(t, "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "Program: compose(substitute[.*|.*], substitute[.*|.*])")
	assert.Contains(t, out, "Rounds:  2")

	out, err = run(t, "rules", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "max_length: 8")
}

func TestShowCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	require.NoError(t, adversarial.Save(path, &adversarial.Index{
		Examples: []adversarial.Example{
			{Sample: loader.Sample{Path: "a.txt", Line: 1}, Original: "abc", Perturbed: "abb", Score: 0.25},
			{Sample: loader.Sample{Path: "a.txt", Line: 2}, Original: "cab", Perturbed: "cab", Score: 0.5},
		},
		Rule:      "compose(substitute[.*|.*])",
		Policy:    "max",
		Beam:      4,
		MaxLength: 8,
		ModelInfo: "alphabet-table-4x8",
	}))

	out, err := run(t, "show", "--full", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Examples: 2, changed: 1")
	assert.Contains(t, out, "Score: 0.5000 | a.txt:2")
	assert.Contains(t, out, "  + abb")
	assert.Less(t, strings.Index(out, "a.txt:2"), strings.Index(out, "a.txt:1"))

	_, err = run(t, "show", filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestSearchCommand_Trace(t *testing.T) {
	_, stderr, err := runWithStderr(t, "--trace", "search", "abc")
	require.NoError(t, err)
	assert.Contains(t, stderr, "search.Engine.Search")
	assert.Contains(t, stderr, "search.Engine.round")
}
