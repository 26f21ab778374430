package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"groundrag/internal/domain"
	"groundrag/internal/port"
)

var _ port.Embedder = (*HashEmbedder)(nil)

// HashEmbedder is a deterministic bag-of-words embedder. Each lower-cased
// token adds 1 to the bucket its FNV-1a hash selects. It needs no network
// and is stable across runs, which makes it usable offline and in tests.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 512
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := make([]float32, e.dimension)
		for _, tok := range Tokenize(text) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			v[h.Sum32()%uint32(e.dimension)]++
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int { return e.dimension }

func (e *HashEmbedder) ModelName() string { return "hash" }

func (e *HashEmbedder) Capabilities() domain.Capabilities {
	return domain.Capabilities{Embeddings: true}
}

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
