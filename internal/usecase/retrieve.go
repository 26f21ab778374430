package usecase

import (
	"context"
	"fmt"
	"strings"

	"groundrag/internal/adapter/store"
	"groundrag/internal/domain"
	"groundrag/internal/port"
)

// RetrieveUseCase embeds a question and looks it up in a vector store.
type RetrieveUseCase struct {
	embedder port.Embedder
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(embedder port.Embedder) *RetrieveUseCase {
	return &RetrieveUseCase{embedder: embedder}
}

// Retrieve returns up to k hits for question, best first.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, vs *store.VectorStore, question string, k int) ([]domain.Hit, error) {
	if k < 1 {
		return nil, domain.Validationf("k must be >= 1, got %d", k)
	}
	if strings.TrimSpace(question) == "" {
		return nil, domain.Validationf("question is empty")
	}
	if vs == nil {
		return nil, domain.Validationf("no vector store")
	}

	vecs, err := u.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, &domain.ProviderError{
			Provider: u.embedder.ModelName(),
			Op:       "embed",
			Err:      fmt.Errorf("got %d vectors for 1 question", len(vecs)),
		}
	}

	return vs.Query(vecs[0], k)
}
