package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// maxBatchInputs is the API limit on inputs per embeddings request.
const maxBatchInputs = 2048

// OpenAIEmbedder uses OpenAI API for embeddings
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an OpenAI embedder. An empty key falls back to
// OPENAI_API_KEY.
func NewOpenAIEmbedder(model, key string) (*OpenAIEmbedder, error) {
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	return newOpenAIEmbedder(openai.NewClient(key), model), nil
}

// NewOpenAIEmbedderWithConfig creates an embedder from a full client config,
// e.g. to point at a compatible endpoint.
func NewOpenAIEmbedderWithConfig(cfg openai.ClientConfig, model string) *OpenAIEmbedder {
	return newOpenAIEmbedder(openai.NewClientWithConfig(cfg), model)
}

func newOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	// Set dimension based on model
	dim := 1536 // default for text-embedding-3-small
	if model == "text-embedding-3-large" {
		dim = 3072
	}

	return &OpenAIEmbedder{
		client: client,
		model:  model,
		dim:    dim,
	}
}

// Embed generates an embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch embeds texts in as few requests as the API allows, preserving
// input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if len(text) == 0 {
			return nil, fmt.Errorf("text %d: cannot embed empty text", i)
		}
	}

	embeddings := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatchInputs {
		end := min(start+maxBatchInputs, len(texts))

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts[start:end],
		})
		if err != nil {
			return nil, errors.New("OpenAI API error: " + err.Error())
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("expected %d embeddings from API, got %d", end-start, len(resp.Data))
		}

		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= end-start {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			// Convert to float32 and L2 normalize (important for cosine similarity)
			v := make([]float32, len(d.Embedding))
			for i := range d.Embedding {
				v[i] = float32(d.Embedding[i])
			}
			l2normalize(v)
			embeddings[start+d.Index] = v
		}
	}

	return embeddings, nil
}

// Dimension returns the embedding dimension
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information
func (e *OpenAIEmbedder) ModelInfo() string {
	return "openai-" + e.model
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
