package embedding

import (
	"context"
	"crypto/sha256"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// LocalDeterministicClient is the Client that cmd/orchestrator wires for every
// command; no other provider is wired there. The embedding contract only
// requires embed(text) to be a pure function of (model_name, text); it never
// requires the vectors
// to carry semantic meaning from a trained model, so a SHA-256-chained
// deterministic fill satisfies the contract. It gives no trained model's
// semantic nearness, and the orchestrator's config has no setting that
// selects another embeddings.EmbedderClient.
type LocalDeterministicClient struct {
	// Dimension is the vector width produced for every text. Defaults to
	// model.DefaultEmbeddingDimension when zero.
	Dimension int
}

// NewLocalDeterministicClient builds a LocalDeterministicClient producing
// model.DefaultEmbeddingDimension-wide vectors.
func NewLocalDeterministicClient() *LocalDeterministicClient {
	return &LocalDeterministicClient{Dimension: model.DefaultEmbeddingDimension}
}

// CreateEmbedding implements langchaingo's embeddings.EmbedderClient.
func (c *LocalDeterministicClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	dim := c.Dimension
	if dim <= 0 {
		dim = model.DefaultEmbeddingDimension
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text, dim)
	}
	return out, nil
}

// deterministicVector fills dim floats by chaining SHA-256 over its own
// prior output, seeded with text, so the result is pure per text and stable
// across runs without needing a live model.
func deterministicVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	block := sha256.Sum256([]byte(text))
	for i := 0; i < dim; i++ {
		if i > 0 && i%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}
		// Map a byte onto [-1, 1] so cosine similarity behaves sanely.
		vec[i] = float32(block[i%len(block)])/127.5 - 1
	}
	return vec
}
