package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/perturb/pkg/adversarial"
	"github.com/perbu/perturb/pkg/config"
	"github.com/perbu/perturb/pkg/loader"
	"github.com/perbu/perturb/pkg/transform"
)

const testConfig = `
alphabet:
  chars: "abc "
  max_length: 8
search:
  beam: 3
scorer:
  kind: table
  embedding_dim: 8
  seed: 11
rules:
  sub:
    op: substitute
    guard: {except: " "}
    chars: {except: " "}
program:
  repeat: {count: 2, node: {rule: sub}}
`

type fixture struct {
	opts options
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	t.Setenv("PERTURB_SCORER_URL", "")
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "perturb.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))

	corpus := filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "a.txt"), []byte("Abc\ncab\n\nBB A\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "b.csv"), []byte("2,bca,acb\n"), 0o644))

	return fixture{opts: options{
		configPath: cfgPath,
		corpus:     corpus,
		outDir:     filepath.Join(dir, "out"),
		workers:    2,
		saveEvery:  2,
	}}
}

// settings is the provenance a run over the fixture records.
func (f fixture) settings(t *testing.T) provenance {
	t.Helper()
	cfg, err := config.Load(f.opts.configPath)
	require.NoError(t, err)
	engine, err := config.BuildEngine(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return provenanceOf(cfg, transform.Describe(engine.Rule()))
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), f.opts, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Loaded 4 samples")

	idx, err := adversarial.Load(filepath.Join(f.opts.outDir, "index.gob"))
	require.NoError(t, err)
	require.Len(t, idx.Examples, 4)
	assert.Equal(t, 3, idx.Beam)
	assert.Equal(t, "table(dim=8, seed=11)", idx.ModelInfo)
	assert.Equal(t, "compose(substitute[.*|.*], substitute[.*|.*])", idx.Rule)

	assert.Equal(t, "abc", idx.Examples[0].Original, "normalised")
	assert.Equal(t, "bb a", idx.Examples[2].Original)
	assert.Equal(t, "bca acb", idx.Examples[3].Original)
	for _, ex := range idx.Examples {
		assert.Len(t, ex.IDs, 8)
		assert.Len(t, []rune(ex.Perturbed), len([]rune(ex.Original)), "substitutions keep the length")
	}

	assert.NoFileExists(t, filepath.Join(f.opts.outDir, "checkpoint.gob"))
}

func TestRun_Resume(t *testing.T) {
	f := newFixture(t)
	var stdout, stderr bytes.Buffer

	// A first run establishes the corpus and provenance of a checkpoint.
	require.NoError(t, run(context.Background(), f.opts, &stdout, &stderr))
	idx, err := adversarial.Load(filepath.Join(f.opts.outDir, "index.gob"))
	require.NoError(t, err)

	samples := make([]loader.Sample, len(idx.Examples))
	for i, ex := range idx.Examples {
		samples[i] = ex.Sample
	}
	marker := adversarial.Example{Sample: samples[0], Original: "abc", Perturbed: "kept", Score: 42}
	cp := &checkpoint{
		Samples:   samples,
		Examples:  make([]adversarial.Example, len(samples)),
		Completed: map[int]bool{0: true},
		Settings:  f.settings(t),
	}
	cp.Examples[0] = marker
	require.NoError(t, saveCheckpoint(filepath.Join(f.opts.outDir, "checkpoint.gob"), cp))

	stdout.Reset()
	require.NoError(t, run(context.Background(), f.opts, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Found checkpoint: 1/4 samples already done")

	resumed, err := adversarial.Load(filepath.Join(f.opts.outDir, "index.gob"))
	require.NoError(t, err)
	assert.Equal(t, marker, resumed.Examples[0])
	assert.Equal(t, idx.Examples[1:], resumed.Examples[1:], "search is deterministic")
}

func TestRun_StaleCheckpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, saveCheckpoint(filepath.Join(f.opts.outDir, "checkpoint.gob"), &checkpoint{
		Samples:   []loader.Sample{{Path: "other.txt", Line: 1, Text: "x"}},
		Examples:  make([]adversarial.Example, 1),
		Completed: map[int]bool{0: true},
		Settings:  provenance{Rule: "union()"},
	}))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), f.opts, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "starting fresh")
}

func TestRun_CheckpointFromOtherSettingsIsDiscarded(t *testing.T) {
	f := newFixture(t)
	samples, err := loader.LoadSamples(os.DirFS(f.opts.corpus), ".")
	require.NoError(t, err)

	// same corpus, program and scorer, but searched with another beam width
	settings := f.settings(t)
	settings.Beam++
	stale := adversarial.Example{Sample: samples[0], Original: "abc", Perturbed: "stale", Score: 42}
	cp := &checkpoint{
		Samples:   samples,
		Examples:  make([]adversarial.Example, len(samples)),
		Completed: map[int]bool{0: true},
		Settings:  settings,
	}
	cp.Examples[0] = stale
	require.NoError(t, saveCheckpoint(filepath.Join(f.opts.outDir, "checkpoint.gob"), cp))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), f.opts, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "starting fresh")

	idx, err := adversarial.Load(filepath.Join(f.opts.outDir, "index.gob"))
	require.NoError(t, err)
	assert.NotEqual(t, stale, idx.Examples[0])
	assert.Equal(t, 3, idx.Beam)
}

func TestCheckpoint_Matches(t *testing.T) {
	samples := []loader.Sample{{Path: "a.txt", Line: 1, Text: "abc"}}
	base := provenance{Rule: "compose()", ModelInfo: "table(dim=8, seed=11)", Policy: "max", Beam: 3, MaxLength: 8, Padding: " "}
	cp := &checkpoint{Samples: samples, Settings: base}
	assert.True(t, cp.matches(samples, base))

	for name, change := range map[string]func(*provenance){
		"policy":     func(p *provenance) { p.Policy = "sum" },
		"beam":       func(p *provenance) { p.Beam = 4 },
		"max_length": func(p *provenance) { p.MaxLength = 9 },
		"cumulative": func(p *provenance) { p.Cumulative = true },
		"budget":     func(p *provenance) { p.CallBudget = 10 },
	} {
		other := base
		change(&other)
		assert.False(t, cp.matches(samples, other), name)
	}
	assert.False(t, cp.matches([]loader.Sample{{Path: "b.txt", Line: 1, Text: "abc"}}, base))
}

func TestRun_Interrupted(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, f.opts, &stdout, &stderr)
	require.ErrorIs(t, err, context.Canceled)

	cp, err := loadCheckpoint(filepath.Join(f.opts.outDir, "checkpoint.gob"))
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Len(t, cp.remaining(), 4)
	assert.NoFileExists(t, filepath.Join(f.opts.outDir, "index.gob"))
}

func TestRun_BadOptions(t *testing.T) {
	f := newFixture(t)
	var stdout, stderr bytes.Buffer

	o := f.opts
	o.workers = 0
	assert.Error(t, run(context.Background(), o, &stdout, &stderr))

	o = f.opts
	o.corpus = filepath.Join(t.TempDir(), "missing")
	assert.Error(t, run(context.Background(), o, &stdout, &stderr))
}

func TestCheckpoint_Missing(t *testing.T) {
	cp, err := loadCheckpoint(filepath.Join(t.TempDir(), "none.gob"))
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRun_ProgressWithoutTerminal(t *testing.T) {
	f := newFixture(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), f.opts, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "  Progress: 4/4 (100.0%)\n")
	assert.NotContains(t, stdout.String(), "\r")
	assert.False(t, isTerminal(&stdout))
}
