package port

import (
	"context"

	"groundrag/internal/domain"
)

// DocumentSource enumerates the documents to ingest. Positions are assigned
// in the order returned.
type DocumentSource interface {
	Documents(ctx context.Context) ([]domain.Document, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}
