package cache

import (
	"context"
	"fmt"

	"groundrag/internal/domain"
	"groundrag/internal/port"
)

var _ port.Embedder = (*CachedEmbedder)(nil)

// CachedEmbedder serves repeated texts from a VectorCache and forwards only
// the misses, in one call, to the wrapped embedder.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *VectorCache
}

func NewCachedEmbedder(embedder port.Embedder, cache *VectorCache) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.embedder.ModelName()
	out := make([][]float32, len(texts))

	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if v, ok := e.cache.Get(model, text); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, &domain.ProviderError{
			Provider: model,
			Op:       "embed",
			Err:      fmt.Errorf("got %d vectors for %d texts", len(vecs), len(missTexts)),
		}
	}

	for j, v := range vecs {
		out[missIdx[j]] = v
		e.cache.Put(model, missTexts[j], v)
	}
	return out, nil
}

func (e *CachedEmbedder) Dimension() int { return e.embedder.Dimension() }

func (e *CachedEmbedder) ModelName() string { return e.embedder.ModelName() }

func (e *CachedEmbedder) Capabilities() domain.Capabilities { return e.embedder.Capabilities() }
