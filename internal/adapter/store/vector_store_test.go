package store

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/domain"
)

func sampleStore(t *testing.T) *VectorStore {
	t.Helper()
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
		{-1, 0, 0},
		{0, 0, 2},
	}
	texts := []string{"east", "north", "mostly east", "west", "up"}
	vs, err := Build(vectors, texts)
	require.NoError(t, err)
	return vs
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
		texts   []string
	}{
		{"empty", nil, nil},
		{"length mismatch", [][]float32{{1, 0}}, []string{"a", "b"}},
		{"dimension mismatch", [][]float32{{1, 0}, {1, 0, 0}}, []string{"a", "b"}},
		{"zero dimension", [][]float32{{}}, []string{"a"}},
		{"nan component", [][]float32{{float32NaN(), 0}}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.vectors, tt.texts)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestBuild_NormalizesAndKeepsVectors(t *testing.T) {
	vs, err := Build([][]float32{{3, 4}}, []string{"a"})
	require.NoError(t, err)

	require.True(t, vs.HasVectors())
	assert.InDelta(t, 0.6, vs.vectors[0][0], 1e-6)
	assert.InDelta(t, 0.8, vs.vectors[0][1], 1e-6)
	assert.Equal(t, 2, vs.Dimension())
	assert.Equal(t, 1, vs.Len())
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	vectors := [][]float32{{3, 4}}
	texts := []string{"a"}
	vs, err := Build(vectors, texts)
	require.NoError(t, err)

	vectors[0][0] = 100
	texts[0] = "changed"

	assert.Equal(t, "a", vs.Text(0))
	assert.InDelta(t, 0.6, vs.vectors[0][0], 1e-6)
}

func TestQuery_OrderingAndBounds(t *testing.T) {
	vs := sampleStore(t)

	hits, err := vs.Query([]float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "east", hits[0].Text)
	assert.Equal(t, "mostly east", hits[1].Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	for i, h := range hits {
		assert.LessOrEqual(t, h.Score, 1.0)
		assert.GreaterOrEqual(t, h.Score, -1.0)
		if i > 0 {
			assert.LessOrEqual(t, h.Score, hits[i-1].Score)
		}
	}
}

func TestQuery_QueryIsNormalized(t *testing.T) {
	vs := sampleStore(t)

	a, err := vs.Query([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	b, err := vs.Query([]float32{42, 0, 0}, 5)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Text, b[i].Text)
		assert.InDelta(t, a[i].Score, b[i].Score, 1e-6)
	}
}

func TestQuery_KLargerThanCorpus(t *testing.T) {
	vs := sampleStore(t)

	hits, err := vs.Query([]float32{0, 1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, hits, vs.Len())

	hits, err = vs.Query([]float32{0, 1, 0}, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, hits, vs.Len())
}

func TestBuild_ExtremeMagnitudesStillRank(t *testing.T) {
	tests := []struct {
		name  string
		small float32
	}{
		{"overflowing squares", 3e20},
		{"underflowing squares", 1e-25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs, err := Build(
				[][]float32{{0, 1}, {tt.small, tt.small}},
				[]string{"axis", "diagonal"},
			)
			require.NoError(t, err)
			assert.InDelta(t, math.Sqrt2/2, vs.vectors[1][0], 1e-6)
			assert.InDelta(t, math.Sqrt2/2, vs.vectors[1][1], 1e-6)

			hits, err := vs.Query([]float32{tt.small, tt.small}, 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "diagonal", hits[0].Text)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		})
	}
}

func TestQuery_TiesBrokenByInsertionOrder(t *testing.T) {
	vs, err := Build(
		[][]float32{{0, 1}, {1, 0}, {0, 2}, {0, 3}},
		[]string{"first", "other", "second", "third"},
	)
	require.NoError(t, err)

	hits, err := vs.Query([]float32{0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, []string{"first", "second", "third"}, []string{hits[0].Text, hits[1].Text, hits[2].Text})
	assert.Equal(t, []int{0, 2, 3}, []int{hits[0].Position, hits[1].Position, hits[2].Position})
}

func TestQuery_ZeroVectorRanksLast(t *testing.T) {
	vs, err := Build(
		[][]float32{{0, 0}, {1, 0}, {-1, 0}},
		[]string{"zero", "east", "west"},
	)
	require.NoError(t, err)

	hits, err := vs.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "east", hits[0].Text)
	assert.Equal(t, "west", hits[1].Text)
	assert.InDelta(t, -1.0, hits[1].Score, 1e-6)
	assert.Equal(t, "zero", hits[2].Text)
	assert.Equal(t, 0.0, hits[2].Score)
}

func TestQuery_ZeroQueryVector(t *testing.T) {
	vs := sampleStore(t)

	hits, err := vs.Query([]float32{0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 1, hits[1].Position)
}

func TestQuery_Validation(t *testing.T) {
	vs := sampleStore(t)

	_, err := vs.Query([]float32{1, 0, 0}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = vs.Query([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestQuery_Idempotent(t *testing.T) {
	vs := sampleStore(t)
	q := []float32{0.3, 0.7, 0.1}

	first, err := vs.Query(q, 4)
	require.NoError(t, err)
	second, err := vs.Query(q, 4)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQuery_ConcurrentReaders(t *testing.T) {
	vs := sampleStore(t)
	want, err := vs.Query([]float32{0, 0, 1}, 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := vs.Query([]float32{0, 0, 1}, 5)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestPersistLoad_RoundTrip(t *testing.T) {
	vs, err := Build(
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}, {-1, 0, 0}, {0, 0, 2}},
		[]string{"east", "north", "mostly\neast", "west", "up\r\nabove"},
	)
	require.NoError(t, err)
	prefix := filepath.Join(t.TempDir(), "nested", "dir", "store")

	require.NoError(t, vs.Persist(prefix))
	assert.FileExists(t, prefix+IndexExt)
	assert.FileExists(t, prefix+TextsExt)

	loaded, err := Load(prefix)
	require.NoError(t, err)
	assert.False(t, loaded.HasVectors())
	assert.Equal(t, vs.Texts(), loaded.Texts())
	assert.Equal(t, vs.Len(), loaded.Len())
	assert.Equal(t, vs.Dimension(), loaded.Dimension())

	for _, q := range [][]float32{{1, 0, 0}, {0.2, 0.2, 0.9}, {-1, 1, 0}} {
		want, err := vs.Query(q, 3)
		require.NoError(t, err)
		got, err := loaded.Query(q, 3)
		require.NoError(t, err)

		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Text, got[i].Text)
			assert.Equal(t, want[i].Position, got[i].Position)
			assert.InDelta(t, want[i].Score, got[i].Score, 1e-9)
		}
	}
}

func TestPersist_CollapsesNewlines(t *testing.T) {
	vs, err := Build(
		[][]float32{{1, 0}, {0, 1}},
		[]string{"line one\nline two\r\nline three", "plain"},
	)
	require.NoError(t, err)

	prefix := filepath.Join(t.TempDir(), "store")
	require.NoError(t, vs.Persist(prefix))

	data, err := os.ReadFile(prefix + TextsExt)
	require.NoError(t, err)
	assert.Equal(t, "line one line two line three\nplain\n", string(data))

	want := []string{"line one line two line three", "plain"}
	assert.Equal(t, want, vs.Texts())

	loaded, err := Load(prefix)
	require.NoError(t, err)
	assert.Equal(t, want, loaded.Texts())

	before, err := vs.Query([]float32{1, 0}, 1)
	require.NoError(t, err)
	after, err := loaded.Query([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, before[0].Text, after[0].Text)
}

func TestPersist_UnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := sampleStore(t).Persist(filepath.Join(blocker, "store"))
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestLoad_MissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "store")

	_, err := Load(prefix)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, sampleStore(t).Persist(prefix))
	require.NoError(t, os.Remove(prefix+TextsExt))

	_, err = Load(prefix)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoad_LineCountMismatch(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "store")
	require.NoError(t, sampleStore(t).Persist(prefix))

	require.NoError(t, os.WriteFile(prefix+TextsExt, []byte("only\ntwo\n"), 0644))

	_, err := Load(prefix)
	assert.ErrorIs(t, err, domain.ErrCorruption)
}

func TestLoad_GarbageIndex(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "store")
	require.NoError(t, sampleStore(t).Persist(prefix))
	require.NoError(t, os.WriteFile(prefix+IndexExt, []byte("not an index"), 0644))

	_, err := Load(prefix)
	assert.ErrorIs(t, err, domain.ErrCorruption)
}

func TestLoad_EmptyStoreQueriesReturnNothing(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "store")

	data, err := NewFlatIndex(3).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(prefix+IndexExt, data, 0644))
	require.NoError(t, os.WriteFile(prefix+TextsExt, nil, 0644))

	vs, err := Load(prefix)
	require.NoError(t, err)
	assert.Equal(t, 0, vs.Len())

	hits, err := vs.Query([]float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLoad_EmptyDocumentLine(t *testing.T) {
	vs, err := Build([][]float32{{1, 0}, {0, 1}}, []string{"", "second"})
	require.NoError(t, err)

	prefix := filepath.Join(t.TempDir(), "store")
	require.NoError(t, vs.Persist(prefix))

	loaded, err := Load(prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "second"}, loaded.Texts())
}
