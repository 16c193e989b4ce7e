package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/perbu/perturb/pkg/alphabet"
)

// Embedder interface for generating embeddings
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// ErrNoEmbeddingTable is returned when the alphabet carries no embedding.
var ErrNoEmbeddingTable = errors.New("embedder: alphabet has no embedding table")

// TableEmbedder embeds text offline from the alphabet's per-character
// embedding table: a position-weighted mean of the row of every rune.
type TableEmbedder struct {
	alpha *alphabet.Alphabet
}

// NewTableEmbedder creates an embedder backed by alpha's embedding table.
func NewTableEmbedder(alpha *alphabet.Alphabet) (*TableEmbedder, error) {
	if alpha == nil || !alpha.HasEmbedding() {
		return nil, ErrNoEmbeddingTable
	}
	return &TableEmbedder{alpha: alpha}, nil
}

// Embed generates an embedding vector from text
func (e *TableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	ids, err := e.alpha.ToIDs(text)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, e.alpha.EmbeddingDim())
	n := float32(len(ids))
	for i, id := range ids {
		// earlier positions weigh slightly more so that the same rune at two
		// places does not cancel out
		w := 1 + (n-float32(i))/n
		for j, x := range e.alpha.Embedding(id) {
			vec[j] += w * x
		}
	}
	for j := range vec {
		vec[j] /= n
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *TableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimension returns the embedding dimension
func (e *TableEmbedder) Dimension() int {
	return e.alpha.EmbeddingDim()
}

// ModelInfo returns model information
func (e *TableEmbedder) ModelInfo() string {
	return fmt.Sprintf("alphabet-table-%dx%d", e.alpha.Size(), e.alpha.EmbeddingDim())
}
