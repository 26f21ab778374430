package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"groundrag/internal/domain"
)

const (
	IndexExt = ".idx"
	TextsExt = ".txt"
)

// VectorStore pairs a similarity index with the texts it indexes. Index
// label i always identifies texts[i]. A store is immutable once built, so
// Query may be called from many goroutines.
type VectorStore struct {
	index Index
	texts []string
	// normalized build-time vectors; nil for stores obtained from Load
	vectors [][]float32
}

// Build normalizes vectors and indexes them alongside texts. Texts are held
// exactly as Persist writes them, so a loaded store answers identically.
func Build(vectors [][]float32, texts []string) (*VectorStore, error) {
	if len(vectors) == 0 {
		return nil, domain.Validationf("empty vector batch")
	}
	if len(vectors) != len(texts) {
		return nil, domain.Validationf("vectors and texts length mismatch: %d != %d", len(vectors), len(texts))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, domain.Validationf("vectors have zero dimension")
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, domain.Validationf("vector %d dimension mismatch: expected %d, got %d", i, dim, len(v))
		}
		if err := checkFinite(v); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		normalized[i] = Normalize(v)
	}

	idx := NewFlatIndex(dim)
	if err := idx.Add(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	stored := make([]string, len(texts))
	for i, t := range texts {
		stored[i] = collapseNewlines(t)
	}

	return &VectorStore{
		index:   idx,
		texts:   stored,
		vectors: normalized,
	}, nil
}

// Len returns the number of indexed documents.
func (s *VectorStore) Len() int {
	return len(s.texts)
}

// Dimension returns the vector dimensionality of the store.
func (s *VectorStore) Dimension() int {
	return s.index.Dimension()
}

// Text returns the document at position i.
func (s *VectorStore) Text(i int) string {
	return s.texts[i]
}

// Texts returns a copy of the indexed texts in position order.
func (s *VectorStore) Texts() []string {
	return append([]string(nil), s.texts...)
}

// HasVectors reports whether the raw normalized vectors are still held. Only
// freshly built stores keep them.
func (s *VectorStore) HasVectors() bool {
	return s.vectors != nil
}

// Query returns up to k hits for q, best first. Ties keep insertion order.
func (s *VectorStore) Query(q []float32, k int) ([]domain.Hit, error) {
	if k < 1 {
		return nil, domain.Validationf("k must be >= 1, got %d", k)
	}
	if s.Len() == 0 {
		return []domain.Hit{}, nil
	}
	if len(q) != s.Dimension() {
		return nil, domain.Validationf("query dimension mismatch: expected %d, got %d", s.Dimension(), len(q))
	}
	if err := checkFinite(q); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	labels, scores := s.index.Search(Normalize(q), k)

	hits := make([]domain.Hit, 0, len(labels))
	for i, label := range labels {
		if label == NoEntry || label < 0 || int(label) >= len(s.texts) {
			continue
		}
		hits = append(hits, domain.Hit{
			Score:    clamp(scores[i]),
			Text:     s.texts[label],
			Position: int(label),
		})
	}
	return hits, nil
}

// Persist writes <prefix>.idx and <prefix>.txt, creating parent directories.
// Each artifact is written to a temporary file and renamed into place.
func (s *VectorStore) Persist(prefix string) error {
	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w: %w", domain.ErrIO, err)
	}

	data, err := s.index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize index: %w", err)
	}
	if err := writeFileAtomic(prefix+IndexExt, data); err != nil {
		return err
	}

	var sb strings.Builder
	for _, t := range s.texts {
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	return writeFileAtomic(prefix+TextsExt, []byte(sb.String()))
}

// Load reads the artifact pair written by Persist. Raw vectors are not
// reconstructed; the serialized index is all a query needs.
func Load(prefix string) (*VectorStore, error) {
	idxPath, txtPath := prefix+IndexExt, prefix+TextsExt
	for _, p := range []string{idxPath, txtPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, p)
			}
			return nil, fmt.Errorf("failed to stat %s: %w: %w", p, domain.ErrIO, err)
		}
	}

	data, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w: %w", domain.ErrIO, err)
	}
	idx, err := decodeIndex(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruption, idxPath, err)
	}

	texts, err := readLines(txtPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read texts: %w: %w", domain.ErrIO, err)
	}

	if len(texts) != idx.Count() {
		return nil, fmt.Errorf("%w: %s has %d lines but index has %d entries",
			domain.ErrCorruption, txtPath, len(texts), idx.Count())
	}

	return &VectorStore{index: idx, texts: texts}, nil
}

// collapseNewlines keeps the one-line-per-document invariant of the text artifact.
func collapseNewlines(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, strings.TrimSuffix(line, "\n"))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w: %w", path, domain.ErrIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w: %w", path, domain.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w: %w", path, domain.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w: %w", path, domain.ErrIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w: %w", path, domain.ErrIO, err)
	}
	return nil
}

func clamp(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
