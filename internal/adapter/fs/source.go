package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"groundrag/internal/domain"
	"groundrag/internal/port"
)

var _ port.DocumentSource = (*DirSource)(nil)

// ProgressFunc is called after each candidate file is read.
type ProgressFunc func(done, total int, path string)

// DirSource turns the files under a root into documents, one per file.
type DirSource struct {
	root     string
	walker   *Walker
	progress ProgressFunc
	logger   *slog.Logger
}

type SourceOption func(*DirSource)

func WithProgress(fn ProgressFunc) SourceOption {
	return func(s *DirSource) { s.progress = fn }
}

func WithLogger(l *slog.Logger) SourceOption {
	return func(s *DirSource) { s.logger = l }
}

func NewDirSource(root string, walker *Walker, opts ...SourceOption) *DirSource {
	if walker == nil {
		walker = NewWalker(nil, nil)
	}
	s := &DirSource{root: root, walker: walker, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DirSource) Root() string { return s.root }

// Documents reads every matching file in path order. Files that are empty
// or whitespace-only are skipped and do not consume a position. Invalid
// UTF-8 is replaced rather than rejected.
func (s *DirSource) Documents(ctx context.Context) ([]domain.Document, error) {
	files, err := s.walker.Walk(ctx, s.root)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, 0, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrIO, f.Path, err)
		}
		text := string(data)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "�")
		}

		if strings.TrimSpace(text) == "" {
			s.logger.Debug("skipping empty document", "path", f.Path)
		} else {
			docs = append(docs, domain.Document{
				Position: len(docs),
				Path:     f.Path,
				Text:     text,
			})
		}

		if s.progress != nil {
			s.progress(i+1, len(files), f.Path)
		}
	}

	s.logger.Debug("documents discovered", "root", s.root, "files", len(files), "documents", len(docs))
	return docs, nil
}
