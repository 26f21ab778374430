package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"groundrag/internal/adapter/store"
	"groundrag/internal/domain"
	"groundrag/internal/port"
)

// IngestUseCase turns a document source into an in-memory vector store.
// It never writes anything; publishing is the caller's decision.
type IngestUseCase struct {
	source   port.DocumentSource
	embedder port.Embedder
	logger   *slog.Logger
}

// NewIngestUseCase creates a new ingest use case.
func NewIngestUseCase(source port.DocumentSource, embedder port.Embedder, logger *slog.Logger) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		source:   source,
		embedder: embedder,
		logger:   logger,
	}
}

// IngestResult holds the built store and the documents it was built from.
// Documents[i] is at position i in Store.
type IngestResult struct {
	Store     *store.VectorStore
	Documents []domain.Document
}

// Paths returns the source path of every document, in position order.
func (r *IngestResult) Paths() []string {
	paths := make([]string, len(r.Documents))
	for i, d := range r.Documents {
		paths[i] = d.Path
	}
	return paths
}

// Ingest enumerates the source, embeds every text in one call and builds
// the store.
func (u *IngestUseCase) Ingest(ctx context.Context) (*IngestResult, error) {
	docs, err := u.source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	start := time.Now()
	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, &domain.ProviderError{
			Provider: u.embedder.ModelName(),
			Op:       "embed",
			Err:      fmt.Errorf("got %d vectors for %d documents", len(vectors), len(texts)),
		}
	}
	u.logger.Info("embedded documents",
		"documents", len(texts),
		"model", u.embedder.ModelName(),
		"elapsed", time.Since(start).Round(time.Millisecond))

	vs, err := store.Build(vectors, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to build vector store: %w", err)
	}

	return &IngestResult{Store: vs, Documents: docs}, nil
}
