// Package adversarial stores the output of batch perturbation runs: one
// best example per corpus sample, persisted with encoding/gob.
package adversarial

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Top returns the k highest-scoring examples at or above threshold, highest
// first. k <= 0 returns all of them.
func Top(idx *Index, k int, threshold float64) []Example {
	results := make([]Example, 0, len(idx.Examples))
	for _, ex := range idx.Examples {
		if ex.Score >= threshold {
			results = append(results, ex)
		}
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}

// Summarize computes counts and score statistics.
func Summarize(idx *Index) Stats {
	s := Stats{Examples: len(idx.Examples)}
	if s.Examples == 0 {
		return s
	}
	var total float64
	for i, ex := range idx.Examples {
		if ex.Changed() {
			s.Changed++
		}
		total += ex.Score
		if i == 0 || ex.Score > s.MaxScore {
			s.MaxScore = ex.Score
		}
	}
	s.MeanScore = total / float64(s.Examples)
	return s
}

// Encode writes idx as gob.
func Encode(w io.Writer, idx *Index) error {
	return gob.NewEncoder(w).Encode(idx)
}

// Decode reads a gob index.
func Decode(r io.Reader) (*Index, error) {
	var idx Index
	if err := gob.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	return &idx, nil
}

// Save writes idx to path atomically, creating parent directories.
func Save(path string, idx *Index) error {
	return WriteAtomic(path, func(w io.Writer) error { return Encode(w, idx) })
}

// Load reads an index file.
func Load(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file)
}

// WriteAtomic writes through a temporary file renamed over path.
func WriteAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path + ".tmp")
	if err != nil {
		return err
	}

	if err := write(file); err != nil {
		file.Close()
		return err
	}

	if err := file.Close(); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(path+".tmp", path)
}
