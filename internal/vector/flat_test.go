package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestStore(t *testing.T, vectors [][]float32, paths []string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	emb := filepath.Join(dir, "embeddings.npy")
	pth := filepath.Join(dir, "paths.txt")
	dim := 3
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	s, err := NewStore(dim, vectors, paths)
	require.NoError(t, err)
	require.NoError(t, WriteStore(s, emb, pth))
	return emb, pth
}

func TestFlatIndex_SearchOrder(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}, []string{"a.jpg", "b.jpg", "c.jpg"})
	idx, err := Load(emb, pth)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, 3, idx.Dimensions())

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
	assert.Equal(t, "a.jpg", idx.Path(results[0].Index))
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestFlatIndex_kClippedToN(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{{1, 0}, {0, 1}}, []string{"a", "b"})
	idx, err := Load(emb, pth)
	require.NoError(t, err)
	for _, k := range []int{1, 2, 3, 100} {
		results, err := idx.Search(context.Background(), []float32{0.6, 0.8}, k)
		require.NoError(t, err)
		want := k
		if want > 2 {
			want = 2
		}
		assert.Len(t, results, want)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
	}
	results, err := idx.Search(context.Background(), []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFlatIndex_tiesByAscendingRow(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{
		{0, 1}, {1, 0}, {0, 1}, {1, 0}, {1, 0},
	}, []string{"r0", "r1", "r2", "r3", "r4"})
	idx, err := Load(emb, pth)
	require.NoError(t, err)
	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	got := make([]int, len(results))
	for i, r := range results {
		got[i] = r.Index
	}
	assert.Equal(t, []int{1, 3, 4, 0, 2}, got)
}

func TestFlatIndex_empty(t *testing.T) {
	s, err := NewStore(4, nil, nil)
	require.NoError(t, err)
	dir := t.TempDir()
	emb, pth := filepath.Join(dir, "e.npy"), filepath.Join(dir, "p.txt")
	require.NoError(t, WriteStore(s, emb, pth))

	idx, err := Load(emb, pth)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Size())
	assert.Equal(t, 4, idx.Dimensions())
	_, err = idx.Search(context.Background(), []float32{1, 0, 0, 0}, 3)
	assert.True(t, errors.Is(err, ErrEmptyIndex))
}

func TestFlatIndex_dimensionMismatch(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{{1, 0, 0}}, []string{"a"})
	idx, err := Load(emb, pth)
	require.NoError(t, err)
	_, err = idx.Search(context.Background(), []float32{1, 0}, 1)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestFlatIndex_selfRecall(t *testing.T) {
	vecs := [][]float32{
		{0.6, 0.8, 0, 0},
		{0, 0, 1, 0},
		{0.5, 0.5, 0.5, 0.5},
	}
	emb, pth := writeTestStore(t, vecs, []string{"a", "b", "c"})
	idx, err := Load(emb, pth)
	require.NoError(t, err)
	for i := range vecs {
		results, err := idx.Search(context.Background(), idx.Vector(i), 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, i, results[0].Index)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	}
}

func TestLoad_rowPathMismatchIsCorrupt(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{{1, 0}, {0, 1}}, []string{"a", "b"})
	require.NoError(t, os.WriteFile(pth, []byte("a\n"), 0644))
	_, err := Load(emb, pth)
	assert.True(t, errors.Is(err, ErrCorruptIndex))
}

func TestLoad_truncatedMatrixIsCorrupt(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{{1, 0}, {0, 1}}, []string{"a", "b"})
	data, err := os.ReadFile(emb)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(emb, data[:len(data)-3], 0644))
	_, err = Load(emb, pth)
	assert.True(t, errors.Is(err, ErrCorruptIndex))
}

func TestLoad_notNPY(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{{1, 0}}, []string{"a"})
	require.NoError(t, os.WriteFile(emb, []byte("garbage"), 0644))
	_, err := Load(emb, pth)
	assert.True(t, errors.Is(err, ErrCorruptIndex))
}

func TestLoad_blankLineIsCorrupt(t *testing.T) {
	emb, pth := writeTestStore(t, [][]float32{{1, 0}, {0, 1}}, []string{"a", "b"})
	require.NoError(t, os.WriteFile(pth, []byte("a\n\nb\n"), 0644))
	_, err := Load(emb, pth)
	assert.True(t, errors.Is(err, ErrCorruptIndex))
}

func TestLoad_missingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "e.npy"), filepath.Join(dir, "p.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestInnerProductAndNorm(t *testing.T) {
	assert.InDelta(t, 0.0, InnerProduct([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 1.0, InnerProduct([]float32{0.6, 0.8}, []float32{0.6, 0.8}), 1e-6)
	assert.Equal(t, 0.0, InnerProduct([]float32{1}, []float32{1, 2}))
	assert.InDelta(t, 5.0, L2Norm([]float32{3, 4}), 1e-9)
}
