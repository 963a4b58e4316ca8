package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// embeddingDim matches the dimension of the production embedding provider
// so deterministic vectors are insertable into the real schema.
const embeddingDim = 1536

// HashEmbedder is a deterministic ai.Embedder for tests. It hashes each
// whitespace token into a fixed-dimension bag-of-words vector and
// normalizes it, so texts sharing words have high cosine similarity and
// unrelated texts do not. No network, no API key.
type HashEmbedder struct{}

func (HashEmbedder) Name() string { return "test-hash-embedder" }

func (HashEmbedder) Register(r api.Registry) {}

func (HashEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	resp := &ai.EmbedResponse{Embeddings: make([]*ai.Embedding, 0, len(req.Input))}
	for _, doc := range req.Input {
		var text strings.Builder
		for _, part := range doc.Content {
			text.WriteString(part.Text)
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: HashVector(text.String()),
		})
	}
	return resp, nil
}

// HashVector computes the deterministic embedding for text directly.
func HashVector(text string) []float32 {
	vec := make([]float32, embeddingDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Whitespace-only input still needs a valid unit vector.
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
