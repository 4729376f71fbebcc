package search

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/testutil"
	"github.com/hyperjump/katachi/internal/vector"
)

func TestAlpha(t *testing.T) {
	assert.Equal(t, 0.0, Alpha(""))
	assert.Equal(t, 0.0, Alpha("   \t"))
	assert.InDelta(t, 0.42, Alpha("blue"), 1e-12)
	assert.InDelta(t, 0.44, Alpha("blue clothing"), 1e-12)
	assert.InDelta(t, 0.6, Alpha(strings.Repeat("word ", 10)), 1e-12)
	assert.Equal(t, 0.6, Alpha(strings.Repeat("word ", 50)))
}

func TestAlpha_monotoneAndCapped(t *testing.T) {
	prev := 0.0
	for n := 1; n <= 40; n++ {
		a := Alpha(strings.TrimSpace(strings.Repeat("w ", n)))
		assert.GreaterOrEqual(t, a, prev, "n=%d", n)
		assert.LessOrEqual(t, a, MaxAlpha, "n=%d", n)
		prev = a
	}
}

func TestFuse(t *testing.T) {
	img := []float32{1, 0}
	txt := []float32{0, 1}
	out := Fuse(img, txt, 0.5)
	assert.InDelta(t, 1.0, vector.L2Norm(out), 1e-6)
	assert.InDelta(t, out[0], out[1], 1e-6)

	same := Fuse(img, txt, 0)
	assert.Equal(t, img, same)
	same[0] = 5
	assert.Equal(t, float32(1), img[0], "alpha 0 returns a copy")

	cancel := Fuse([]float32{1, 0}, []float32{-1, 0}, 0.5)
	assert.Equal(t, []float32{1, 0}, cancel)
}

func TestFuser_emptyTextEqualsImageEmbedding(t *testing.T) {
	mock := embedding.NewMockEmbedder(64)
	f := NewFuser(mock)
	ctx := context.Background()
	for _, img := range []image.Image{
		testutil.Solid(8, testutil.Red),
		testutil.Solid(8, testutil.Blue),
		testutil.LeftHalfMask(6, 9),
	} {
		want, err := mock.EncodeImage(ctx, img)
		require.NoError(t, err)
		for _, text := range []string{"", "  "} {
			got, alpha, err := f.EncodeQuery(ctx, img, text)
			require.NoError(t, err)
			assert.Equal(t, 0.0, alpha)
			assert.Equal(t, want, got)
		}
	}
}

func TestFuser_withTextUnitNorm(t *testing.T) {
	f := NewFuser(embedding.NewMockEmbedder(64))
	got, alpha, err := f.EncodeQuery(context.Background(), testutil.Solid(8, testutil.Green), "  green linen summer shirt ")
	require.NoError(t, err)
	assert.InDelta(t, 0.48, alpha, 1e-12)
	assert.InDelta(t, 1.0, vector.L2Norm(got), 1e-5)
}

func TestFuser_invalidImage(t *testing.T) {
	f := NewFuser(embedding.NewMockEmbedder(8))
	_, _, err := f.EncodeQuery(context.Background(), nil, "red")
	assert.ErrorIs(t, err, embedding.ErrInvalidInput)
}

// shortText embeds text with fewer dimensions than images.
type shortText struct {
	*embedding.MockEmbedder
}

func (s shortText) EncodeText(ctx context.Context, text string) ([]float32, error) {
	v, err := s.MockEmbedder.EncodeText(ctx, text)
	if err != nil {
		return nil, err
	}
	return v[:len(v)/2], nil
}

func TestFuser_textDimensionMismatch(t *testing.T) {
	f := NewFuser(shortText{embedding.NewMockEmbedder(64)})
	got, _, err := f.EncodeQuery(context.Background(), testutil.Solid(8, testutil.Red), "red")
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
	assert.Nil(t, got)

	_, alpha, err := f.EncodeQuery(context.Background(), testutil.Solid(8, testutil.Red), "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, alpha)
}
