package lattice

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder produces a deterministic bag-of-tokens embedding: each
// token hashes into one of dim buckets, the vector is L2-normalized.
// Deterministic embeddings keep the vector retrieval path testable
// without a remote embedding service.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a 64-dimension hash embedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{dim: 64} }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dim]++
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		n := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}
