package scorer

import (
	"context"
	"fmt"
	"math"

	"github.com/perbu/perturb/pkg/alphabet"
	"github.com/perbu/perturb/pkg/embedder"
)

// Occlusion estimates saliency without gradients: the saliency of position
// i is the cosine distance between the embedding of the text and of the
// text with position i replaced by the padding rune. Positions already
// holding padding score 0.
type Occlusion struct {
	alpha *alphabet.Alphabet
	emb   embedder.Embedder
}

// NewOcclusion creates an occlusion scorer.
func NewOcclusion(alpha *alphabet.Alphabet, emb embedder.Embedder) *Occlusion {
	return &Occlusion{alpha: alpha, emb: emb}
}

// Score embeds text and its occluded variants in one batch.
func (o *Occlusion) Score(ctx context.Context, text string) ([]float64, error) {
	runes := []rune(o.alpha.Fit(text))
	pad := o.alpha.Padding()

	texts := []string{string(runes)}
	positions := make([]int, 0, len(runes))
	for i, r := range runes {
		if r == pad {
			continue
		}
		occluded := make([]rune, len(runes))
		copy(occluded, runes)
		occluded[i] = pad
		texts = append(texts, string(occluded))
		positions = append(positions, i)
	}

	saliency := make([]float64, len(runes))
	if len(positions) == 0 {
		return saliency, nil
	}

	vecs, err := o.emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("occlusion embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", ErrMalformed, len(vecs), len(texts))
	}
	base := vecs[0]
	for j, pos := range positions {
		saliency[pos] = 1 - cosine(base, vecs[j+1])
	}
	return saliency, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
