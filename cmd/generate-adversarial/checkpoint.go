package main

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/perbu/perturb/pkg/adversarial"
	"github.com/perbu/perturb/pkg/config"
	"github.com/perbu/perturb/pkg/loader"
)

// provenance is every setting that changes what the search finds for a
// sample.
type provenance struct {
	Rule        string
	ModelInfo   string
	Policy      string
	Beam        int
	Chars       string
	MaxLength   int
	Padding     string
	Cumulative  bool
	CallBudget  int
	RejectEmpty bool
}

func provenanceOf(cfg *config.Config, rule string) provenance {
	return provenance{
		Rule:        rule,
		ModelInfo:   cfg.ScorerInfo(),
		Policy:      cfg.Search.Policy,
		Beam:        cfg.Search.Beam,
		Chars:       cfg.Alphabet.Chars,
		MaxLength:   cfg.Alphabet.MaxLength,
		Padding:     cfg.Alphabet.Padding,
		Cumulative:  cfg.Search.Cumulative,
		CallBudget:  cfg.Search.CallBudget,
		RejectEmpty: cfg.Search.RejectEmpty,
	}
}

type checkpoint struct {
	Samples   []loader.Sample
	Examples  []adversarial.Example
	Completed map[int]bool // Track which samples are done
	Settings  provenance
}

func (cp *checkpoint) remaining() []int {
	todo := make([]int, 0, len(cp.Samples))
	for i := range cp.Samples {
		if !cp.Completed[i] {
			todo = append(todo, i)
		}
	}
	return todo
}

// matches reports whether cp was produced from the same corpus and search
// settings.
func (cp *checkpoint) matches(samples []loader.Sample, settings provenance) bool {
	if len(cp.Samples) != len(samples) || cp.Settings != settings {
		return false
	}
	for i := range samples {
		if cp.Samples[i] != samples[i] {
			return false
		}
	}
	return true
}

func loadCheckpoint(path string) (*checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No checkpoint exists
		}
		return nil, err
	}
	defer file.Close()

	var cp checkpoint
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&cp); err != nil {
		return nil, err
	}
	if cp.Completed == nil {
		cp.Completed = make(map[int]bool)
	}

	return &cp, nil
}

func saveCheckpoint(path string, cp *checkpoint) error {
	return adversarial.WriteAtomic(path, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(cp)
	})
}
