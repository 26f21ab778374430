package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/domain"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func TestWalker_DefaultIncludesOnlyText(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.txt":           "b",
		"a.txt":           "a",
		"notes.md":        "md",
		"nested/deep.txt": "deep",
	})

	files, err := NewWalker(nil, nil).Walk(context.Background(), root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "nested/deep.txt"}, rel)
}

func TestWalker_Excludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.txt":           "k",
		".rag/gen/store.txt": "index text",
		"vendor/x.txt":       "v",
	})

	files, err := NewWalker([]string{"**/*.txt"}, []string{"**/.rag/**", "vendor/**"}).Walk(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(root, "keep.txt"), files[0].Path)
}

func TestWalker_MissingRoot(t *testing.T) {
	_, err := NewWalker(nil, nil).Walk(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWalker_RootIsFile(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a"})
	_, err := NewWalker(nil, nil).Walk(context.Background(), filepath.Join(root, "a.txt"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestWalker_CancelledContext(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWalker(nil, nil).Walk(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalker_Matches(t *testing.T) {
	w := NewWalker([]string{"**/*.txt"}, []string{"drafts/**"})
	assert.True(t, w.Matches("a/b.txt"))
	assert.False(t, w.Matches("a/b.md"))
	assert.False(t, w.Matches("drafts/b.txt"))
}

func TestDirSource_Documents(t *testing.T) {
	root := writeTree(t, map[string]string{
		"01.txt": "The capital of France is Paris.",
		"02.txt": "   \n\t ",
		"03.txt": "The sky is blue.\nIt is often clear.",
	})

	var calls []int
	src := NewDirSource(root, NewWalker(nil, nil), WithProgress(func(done, total int, _ string) {
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	}))

	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, 0, docs[0].Position)
	assert.Equal(t, "The capital of France is Paris.", docs[0].Text)
	assert.Equal(t, 1, docs[1].Position)
	assert.Equal(t, filepath.Join(root, "03.txt"), docs[1].Path)
	assert.Equal(t, "The sky is blue.\nIt is often clear.", docs[1].Text)
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestDirSource_EmptyRoot(t *testing.T) {
	docs, err := NewDirSource(t.TempDir(), nil).Documents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDirSource_InvalidUTF8IsReplaced(t *testing.T) {
	root := writeTree(t, map[string]string{"bad.txt": "ok \xff end"})

	docs, err := NewDirSource(root, nil).Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ok � end", docs[0].Text)
}
