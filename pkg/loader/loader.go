// Package loader reads corpora of input strings for batch perturbation.
package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/perbu/perturb/pkg/alphabet"
)

// Sample is one input string and where it came from.
type Sample struct {
	Path string
	Line int // 1-based; for csv files, the record number
	Text string
}

// ID identifies the sample within its corpus.
func (s Sample) ID() string {
	return fmt.Sprintf("%s:%d", s.Path, s.Line)
}

var extensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// LoadDocuments reads every corpus file under root and returns the raw
// contents keyed by path relative to root.
func LoadDocuments(fsys fs.FS, root string) (map[string]string, error) {
	docs := make(map[string]string)

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !extensions[path.Ext(p)] {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if rel == "" || root == "." {
			rel = p
		}
		docs[rel] = string(content)
		return nil
	})

	return docs, err
}

// SplitDocument turns a document into samples: one per non-empty line, or
// one per csv record with its fields joined by spaces. A leading numeric
// class column, as in the AG news dumps, is dropped.
func SplitDocument(p, content string) ([]Sample, error) {
	if path.Ext(p) == ".csv" {
		return splitCSV(p, content)
	}

	var samples []Sample
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		samples = append(samples, Sample{Path: p, Line: line, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", p, err)
	}
	return samples, nil
}

func splitCSV(p, content string) ([]Sample, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1

	var samples []Sample
	record := 0
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
		record++
		if len(fields) > 1 && isNumber(fields[0]) {
			fields = fields[1:]
		}
		text := strings.TrimSpace(strings.Join(fields, " "))
		if text == "" {
			continue
		}
		samples = append(samples, Sample{Path: p, Line: record, Text: text})
	}
	return samples, nil
}

func isNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// LoadSamples loads and splits every document, ordered by path then line.
func LoadSamples(fsys fs.FS, root string) ([]Sample, error) {
	docs, err := LoadDocuments(fsys, root)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var all []Sample
	for _, p := range paths {
		samples, err := SplitDocument(p, docs[p])
		if err != nil {
			return nil, err
		}
		all = append(all, samples...)
	}
	return all, nil
}

// Normalize lower-cases s and replaces runes outside the alphabet with its
// padding rune, so the result always passes alpha.Validate.
func Normalize(alpha *alphabet.Alphabet, s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if !alpha.Contains(r) {
			r = alpha.Padding()
		}
		b.WriteRune(r)
	}
	return b.String()
}
