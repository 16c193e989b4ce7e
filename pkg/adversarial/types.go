package adversarial

import "github.com/perbu/perturb/pkg/loader"

// Example is the best perturbation found for one corpus sample.
type Example struct {
	Sample    loader.Sample // Where the input came from
	Original  string        // Normalised input actually searched
	Perturbed string        // Highest-scoring candidate
	IDs       []int         // Perturbed as fitted alphabet ids
	Score     float64       // Its adversarial score
}

// Changed reports whether the search moved away from the input.
func (e Example) Changed() bool { return e.Original != e.Perturbed }

// Index holds the examples of one batch run and how they were produced.
type Index struct {
	Examples  []Example
	Rule      string // transform.Describe of the program
	Policy    string
	Beam      int
	MaxLength int
	ModelInfo string // Scorer backing, e.g. the embedding model
}

// Stats summarises an index.
type Stats struct {
	Examples  int
	Changed   int
	MeanScore float64
	MaxScore  float64
}
