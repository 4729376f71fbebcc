package benchmark

import (
	"context"
	"math/rand"
	"strconv"
	"testing"

	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/internal/testutil"
	"github.com/hyperjump/katachi/internal/vector"
	"github.com/hyperjump/katachi/pkg/utils"
)

func randomUnit(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	utils.NormalizeL2(v)
	return v
}

func newFlatIndex(b *testing.B, rows, dim int) *vector.FlatIndex {
	b.Helper()
	rng := rand.New(rand.NewSource(1))
	vecs := make([][]float32, rows)
	paths := make([]string, rows)
	for i := range vecs {
		vecs[i] = randomUnit(rng, dim)
		paths[i] = "catalog/item.jpg"
	}
	s, err := vector.NewStore(dim, vecs, paths)
	if err != nil {
		b.Fatal(err)
	}
	idx, err := vector.NewFlatIndex(s)
	if err != nil {
		b.Fatal(err)
	}
	return idx
}

func BenchmarkFlatIndexSearch(b *testing.B) {
	for _, rows := range []int{1000, 10000} {
		b.Run(testName(rows), func(b *testing.B) {
			idx := newFlatIndex(b, rows, 512)
			query := randomUnit(rand.New(rand.NewSource(2)), 512)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := idx.Search(ctx, query, 12); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkFuse(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	img := randomUnit(rng, 512)
	txt := randomUnit(rng, 512)
	alpha := search.Alpha("red floral summer dress")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = search.Fuse(img, txt, alpha)
	}
}

func BenchmarkPixelValues(b *testing.B) {
	img := testutil.Solid(640, testutil.Blue)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = embedding.PixelValues(img, 224)
	}
}

func BenchmarkMockEncodeImage(b *testing.B) {
	e := embedding.NewMockEmbedder(512)
	img := testutil.Solid(224, testutil.Red)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.EncodeImage(ctx, img); err != nil {
			b.Fatal(err)
		}
	}
}

func testName(rows int) string {
	return strconv.Itoa(rows) + "-rows"
}
