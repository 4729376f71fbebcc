package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/fileid"
	"github.com/hyperjump/katachi/internal/imaging"
	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/testutil"
	"github.com/hyperjump/katachi/internal/vector"
)

type colorCatalog struct {
	corpus string
	emb    string
	paths  string
	red    string
	blue   string
	green  string
}

// buildColorCatalog indexes solid red, blue and green garments with full-coverage masks.
func buildColorCatalog(t *testing.T, embedder embedding.Embedder) colorCatalog {
	t.Helper()
	root := t.TempDir()
	c := colorCatalog{
		corpus: filepath.Join(root, "catalog"),
		emb:    filepath.Join(root, "index", "embeddings.npy"),
		paths:  filepath.Join(root, "index", "paths.txt"),
	}
	masks := filepath.Join(root, "masks")
	require.NoError(t, os.MkdirAll(c.corpus, 0755))
	require.NoError(t, os.MkdirAll(masks, 0755))
	c.red = testutil.WritePNG(t, c.corpus, "red.png", testutil.Solid(128, testutil.Red))
	c.blue = testutil.WritePNG(t, c.corpus, "blue.png", testutil.Solid(128, testutil.Blue))
	c.green = testutil.WritePNG(t, c.corpus, "green.png", testutil.Solid(128, testutil.Green))
	for _, name := range []string{"red", "blue", "green"} {
		testutil.WritePNG(t, masks, name+"_segm.png", testutil.FullMask(128))
	}
	b := indexer.NewBuilder(embedder, imaging.NewSegmentationMasker(imaging.White))
	_, err := b.Build(context.Background(), c.corpus, masks, c.emb, c.paths)
	require.NoError(t, err)
	return c
}

func newLoadedEngine(t *testing.T) (*Engine, colorCatalog) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(512)
	c := buildColorCatalog(t, embedder)
	e := NewEngine(embedder, &config.SearchConfig{DefaultK: 12, MaxK: 100}, c.emb, c.paths)
	require.NoError(t, e.Reload())
	return e, c
}

func TestEngine_colorDiscrimination(t *testing.T) {
	e, c := newLoadedEngine(t)
	ctx := context.Background()
	query := testutil.Solid(128, testutil.Blue)

	plain, err := e.Search(ctx, query, &models.SearchQuery{K: 3})
	require.NoError(t, err)
	require.Len(t, plain.Results, 3)
	assert.Equal(t, c.blue, plain.Results[0].Path)
	assert.Equal(t, fileid.ProductID(c.blue), plain.Results[0].ProductID)
	assert.InDelta(t, 1.0, plain.Results[0].Score, 1e-5)
	assert.Equal(t, 0.0, plain.Alpha)

	withText, err := e.Search(ctx, query, &models.SearchQuery{K: 3, Text: "blue clothing"})
	require.NoError(t, err)
	require.Len(t, withText.Results, 3)
	assert.Equal(t, c.blue, withText.Results[0].Path)
	assert.InDelta(t, 0.44, withText.Alpha, 1e-12)
	assert.NotEqual(t, plain.Results[0].Score, withText.Results[0].Score)

	for _, resp := range []*models.SearchResponse{plain, withText} {
		for i := 1; i < len(resp.Results); i++ {
			assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
			assert.Equal(t, i+1, resp.Results[i].Rank)
		}
	}
}

func TestEngine_selfRecall(t *testing.T) {
	e, c := newLoadedEngine(t)
	for _, p := range []string{c.red, c.blue, c.green} {
		img, err := imaging.Load(p)
		require.NoError(t, err)
		resp, err := e.Search(context.Background(), img, &models.SearchQuery{K: 1})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, p, resp.Results[0].Path)
		assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-5)
	}
}

func TestEngine_kClipped(t *testing.T) {
	e, _ := newLoadedEngine(t)
	resp, err := e.Search(context.Background(), testutil.Solid(8, testutil.Red), &models.SearchQuery{K: 50})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 3, resp.Total)

	resp, err = e.Search(context.Background(), testutil.Solid(8, testutil.Red), &models.SearchQuery{})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3, "default k 12 clipped to 3 rows")

	_, err = e.Search(context.Background(), testutil.Solid(8, testutil.Red), &models.SearchQuery{K: 1000})
	assert.ErrorIs(t, err, embedding.ErrInvalidInput)
}

func TestEngine_noIndex(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(embedding.NewMockEmbedder(8), nil, filepath.Join(dir, "e.npy"), filepath.Join(dir, "p.txt"))
	_, err := e.Search(context.Background(), testutil.Solid(4, testutil.Red), &models.SearchQuery{K: 1})
	assert.True(t, errors.Is(err, ErrNoIndex))
	assert.False(t, e.Status().Loaded)
	assert.Error(t, e.Reload())
	assert.Nil(t, e.Index())
}

func TestEngine_emptyIndex(t *testing.T) {
	s, err := vector.NewStore(8, nil, nil)
	require.NoError(t, err)
	idx, err := vector.NewFlatIndex(s)
	require.NoError(t, err)
	e := NewEngine(embedding.NewMockEmbedder(8), nil, "", "")
	e.SetIndex(idx)
	_, err = e.Search(context.Background(), testutil.Solid(4, testutil.Red), &models.SearchQuery{K: 1})
	assert.True(t, errors.Is(err, vector.ErrEmptyIndex))
}

func TestEngine_invalidImage(t *testing.T) {
	e, _ := newLoadedEngine(t)
	_, err := e.Search(context.Background(), nil, &models.SearchQuery{K: 1})
	assert.True(t, errors.Is(err, embedding.ErrInvalidInput))
}

func TestEngine_reloadFailureKeepsIndex(t *testing.T) {
	e, c := newLoadedEngine(t)
	require.NoError(t, os.WriteFile(c.paths, []byte("only-one\n"), 0644))
	err := e.Reload()
	assert.True(t, errors.Is(err, vector.ErrCorruptIndex))
	st := e.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, 3, st.Rows)
	assert.Equal(t, 512, st.Dimensions)
}

func TestEngine_rebuildIsolation(t *testing.T) {
	embedder := embedding.NewMockEmbedder(512)
	e, c := newLoadedEngine(t)

	second := filepath.Join(t.TempDir(), "catalog2")
	require.NoError(t, os.MkdirAll(second, 0755))
	only := testutil.WritePNG(t, second, "white.png", testutil.Solid(32, imaging.White))
	_, err := indexer.NewBuilder(embedder, nil).Build(context.Background(), second, "", c.emb, c.paths)
	require.NoError(t, err)
	require.NoError(t, e.Reload())

	resp, err := e.Search(context.Background(), testutil.Solid(8, testutil.Red), &models.SearchQuery{K: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, only, resp.Results[0].Path)
}

func TestEngine_concurrentSearchAndReload(t *testing.T) {
	e, _ := newLoadedEngine(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := e.Search(context.Background(), testutil.Solid(8, testutil.Green), &models.SearchQuery{K: 2})
			if assert.NoError(t, err) {
				assert.Len(t, resp.Results, 2)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Reload())
		}()
	}
	wg.Wait()
}

func TestProcessQuery(t *testing.T) {
	q := &models.SearchQuery{Text: "  red dress  "}
	require.NoError(t, ProcessQuery(q, &config.SearchConfig{DefaultK: 5, MaxK: 10}))
	assert.Equal(t, "red dress", q.Text)
	assert.Equal(t, 5, q.K)

	q = &models.SearchQuery{}
	require.NoError(t, ProcessQuery(q, nil))
	assert.Equal(t, 12, q.K)
}
