package llm

import (
	"context"
	"hash/fnv"
	"math"

	"groundedqa/internal/apperr"
	"groundedqa/internal/lexical"
)

// HashEmbedderModel is the model identifier recorded for HashEmbedder indexes.
const HashEmbedderModel = "hash-trigram-v1"

// HashEmbedder is a deterministic, offline Embedder. Each content word and
// each of its character trigrams is hashed into a signed bucket; the result is
// L2-normalised so cosine similarity reflects shared words and spellings.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder producing vectors of length dim.
func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, apperr.Configf("hash embedder dimension must be positive, got %d", dim)
	}
	return &HashEmbedder{dim: dim}, nil
}

// Dimension returns the vector length.
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// Model returns HashEmbedderModel.
func (e *HashEmbedder) Model() string {
	return HashEmbedderModel
}

// Embed hashes every text. It never fails except on a cancelled context.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.ErrEmbedding, err, "hash embedding cancelled")
		}
		result[i] = e.embed(text)
	}
	return result, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float64, e.dim)

	tokens := lexical.Tokenize(text)
	words := lexical.FilterStopwords(tokens)
	if len(words) == 0 {
		// "how are you" is all stop words but still has to embed somewhere.
		words = tokens
	}

	for _, word := range words {
		e.add(vec, "w:"+word, 1)

		runes := []rune("<" + word + ">")
		n := len(runes) - 2
		// Trigrams of one word together weigh as much as the word itself.
		trigramWeight := 1 / math.Sqrt(float64(n))
		for i := 0; i < n; i++ {
			e.add(vec, "t:"+string(runes[i:i+3]), trigramWeight)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := sum % uint64(e.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
