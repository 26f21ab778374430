package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/config"
	"groundrag/internal/adapter/llm"
	"groundrag/internal/adapter/store"
	"groundrag/internal/domain"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Model = "hash"
	cfg.Embedding.Dimension = 512
	cfg.Generation.Provider = "echo"
	cfg.Store.KeepGenerations = 2
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := store.OpenManifest(cfg.ManifestPath(dir))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return NewEngine(cfg, m, cfg.GenerationsDir(dir), newCountingEmbedder(), llm.NewEchoGenerator()), dir
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0644))
	}
	return root
}

func TestEngine_AskBeforeIngest(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	_, err := e.Ask(context.Background(), "anything", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_IngestThenAsk(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	root := writeDocs(t, map[string]string{
		"france.txt": "Paris is the capital of France.",
		"sky.txt":    "The sky is blue.",
		"notes.md":   "ignored",
	})

	summary, err := e.Ingest(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DocumentCount)
	assert.Equal(t, 2, summary.Generation.DocumentCount)

	ans, err := e.Ask(context.Background(), "What is the capital of France?", 0)
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", ans.Text)
	assert.Equal(t, "echo", ans.Model)

	sources, err := e.Sources()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "france.txt"), filepath.Join(root, "sky.txt")}, sources)
}

func TestEngine_EmptyCorpus(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	_, err := e.Ingest(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, domain.ErrNoDocuments)

	_, err = e.Current()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_ReloadsPublishedGeneration(t *testing.T) {
	cfg := testConfig()
	writer, dir := newTestEngine(t, cfg)
	root := writeDocs(t, map[string]string{"sky.txt": "The sky is blue."})
	_, err := writer.Ingest(context.Background(), root)
	require.NoError(t, err)

	// bbolt locks the file, so the reader shares the writer's handle.
	reader := NewEngine(cfg, writer.manifest, cfg.GenerationsDir(dir), newCountingEmbedder(), llm.NewEchoGenerator())

	hits, err := reader.Search(context.Background(), "What colour is the sky?", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "The sky is blue.", hits[0].Text)

	require.NoError(t, os.WriteFile(filepath.Join(root, "france.txt"), []byte("Paris is the capital of France."), 0644))
	_, err = writer.Ingest(context.Background(), root)
	require.NoError(t, err)

	hits, err = reader.Search(context.Background(), "What is the capital of France?", 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Paris is the capital of France.", hits[0].Text)
	assert.False(t, reader.vs.HasVectors(), "reader should serve the store loaded from disk")
}

func TestEngine_PrunesOldGenerations(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	root := writeDocs(t, map[string]string{"sky.txt": "The sky is blue."})

	var first domain.Generation
	for i := 0; i < 3; i++ {
		s, err := e.Ingest(context.Background(), root)
		require.NoError(t, err)
		if i == 0 {
			first = s.Generation
		}
	}

	gens, err := e.manifest.Generations()
	require.NoError(t, err)
	assert.Len(t, gens, 2)
	assert.NoDirExists(t, filepath.Dir(first.Prefix))
}

func TestEngine_RefusesMismatchedConfig(t *testing.T) {
	cfg := testConfig()
	e, dir := newTestEngine(t, cfg)
	root := writeDocs(t, map[string]string{"sky.txt": "The sky is blue."})
	_, err := e.Ingest(context.Background(), root)
	require.NoError(t, err)

	changed := testConfig()
	changed.Embedding.Dimension = 256
	other := NewEngine(changed, e.manifest, changed.GenerationsDir(dir), newCountingEmbedder(), llm.NewEchoGenerator())

	_, err = other.Ask(context.Background(), "sky?", 1)
	assert.ErrorIs(t, err, ErrConfigMismatch)
}

func TestEngine_ConcurrentAsk(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	root := writeDocs(t, map[string]string{
		"france.txt": "Paris is the capital of France.",
		"sky.txt":    "The sky is blue.",
	})
	_, err := e.Ingest(context.Background(), root)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans, err := e.Ask(context.Background(), "What is the capital of France?", 1)
			assert.NoError(t, err)
			assert.Equal(t, "Paris is the capital of France.", ans.Text)
		}()
	}
	wg.Wait()
}
