package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"groundrag/config"
	"groundrag/internal/domain"
)

func openTestManifest(t *testing.T) (*Manifest, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := OpenManifest(filepath.Join(dir, ".rag", "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, dir
}

func TestManifest_CurrentBeforePublish(t *testing.T) {
	m, _ := openTestManifest(t)

	_, err := m.Current()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManifest_PublishFlipsCurrent(t *testing.T) {
	m, dir := openTestManifest(t)
	gensDir := filepath.Join(dir, "generations")

	first, err := m.Publish(sampleStore(t), gensDir, PublishMeta{EmbeddingModel: "hash"})
	require.NoError(t, err)

	vs, err := Build([][]float32{{1, 0}}, []string{"only"})
	require.NoError(t, err)
	second, err := m.Publish(vs, gensDir, PublishMeta{
		Sources:        []string{"/docs/only.txt"},
		EmbeddingModel: "hash",
		ConfigHash:     "abc",
	})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)
	assert.Equal(t, 1, cur.DocumentCount)
	assert.Equal(t, 2, cur.Dimension)
	assert.Equal(t, "abc", cur.ConfigHash)

	loaded, err := Load(cur.Prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, loaded.Texts())

	sources, err := m.Sources(cur.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/only.txt"}, sources)

	gens, err := m.Generations()
	require.NoError(t, err)
	assert.Len(t, gens, 2)
}

func TestManifest_PublishRejectsSourceMismatch(t *testing.T) {
	m, dir := openTestManifest(t)

	_, err := m.Publish(sampleStore(t), dir, PublishMeta{Sources: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = m.Current()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManifest_PruneKeepsNewest(t *testing.T) {
	m, dir := openTestManifest(t)
	gensDir := filepath.Join(dir, "generations")

	var published []domain.Generation
	for i := 0; i < 4; i++ {
		g, err := m.Publish(sampleStore(t), gensDir, PublishMeta{})
		require.NoError(t, err)
		published = append(published, g)
	}

	removed, err := m.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	gens, err := m.Generations()
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, published[2].ID, gens[0].ID)
	assert.Equal(t, published[3].ID, gens[1].ID)

	assert.NoDirExists(t, filepath.Dir(published[0].Prefix))
	assert.DirExists(t, filepath.Dir(published[3].Prefix))
}

func TestManifest_CheckMigration(t *testing.T) {
	m, _ := openTestManifest(t)
	cfg := config.DefaultConfig()

	result, err := m.CheckMigration(cfg)
	require.NoError(t, err)
	assert.True(t, result.NeedsMigration)
	assert.False(t, result.NeedsRebuild)

	require.NoError(t, m.Migrate(cfg))

	result, err = m.CheckMigration(cfg)
	require.NoError(t, err)
	assert.False(t, result.NeedsMigration)
	assert.False(t, result.NeedsRebuild)

	changed := config.DefaultConfig()
	changed.Embedding.Model = "text-embedding-3-large"
	result, err = m.CheckMigration(changed)
	require.NoError(t, err)
	assert.True(t, result.NeedsRebuild)
}

func TestComputeConfigHash_IgnoresGenerationSettings(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()
	b.Generation.Model = "something-else"
	b.Retrieve.TopK = 99

	assert.Equal(t, ComputeConfigHash(a), ComputeConfigHash(b))

	b.Embedding.Dimension = 7
	assert.NotEqual(t, ComputeConfigHash(a), ComputeConfigHash(b))
}

func TestManifest_MigrateFromV1(t *testing.T) {
	m, _ := openTestManifest(t)
	cfg := config.DefaultConfig()

	require.NoError(t, m.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSources); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, []byte("1"))
	}))

	result, err := m.CheckMigration(cfg)
	require.NoError(t, err)
	assert.True(t, result.NeedsMigration)
	assert.Equal(t, 1, result.OldVersion)
	assert.Equal(t, CurrentSchemaVersion, result.NewVersion)

	require.NoError(t, m.Migrate(cfg))
	require.NoError(t, m.db.View(func(tx *bbolt.Tx) error {
		assert.NotNil(t, tx.Bucket(bucketSources))
		assert.Equal(t, CurrentSchemaVersion, readSchema(tx).version)
		return nil
	}))
}

func TestManifest_NewerSchemaNeedsRebuild(t *testing.T) {
	m, _ := openTestManifest(t)
	cfg := config.DefaultConfig()

	require.NoError(t, m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, []byte("99"))
	}))

	result, err := m.CheckMigration(cfg)
	require.NoError(t, err)
	assert.True(t, result.NeedsRebuild)
	assert.False(t, result.NeedsMigration)

	require.NoError(t, m.Migrate(cfg))
	result, err = m.CheckMigration(cfg)
	require.NoError(t, err)
	assert.False(t, result.NeedsRebuild)
}
