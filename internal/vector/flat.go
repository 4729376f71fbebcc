// Package vector holds the persisted embedding store and exact nearest-neighbour search over it.
package vector

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// Result is a single search hit: the row index in the store and its inner-product score.
type Result struct {
	Index int
	Score float64
}

// FlatIndex answers exact inner-product queries by scanning every row.
// It is immutable once built and safe for concurrent use.
type FlatIndex struct {
	store *Store
}

// NewFlatIndex validates s and wraps it for search.
func NewFlatIndex(s *Store) (*FlatIndex, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &FlatIndex{store: s}, nil
}

// Load reads the store files and returns an index over them.
// Row/path count disagreement or a malformed matrix is reported as ErrCorruptIndex.
func Load(embeddingsPath, pathsPath string) (*FlatIndex, error) {
	s, err := ReadStore(embeddingsPath, pathsPath)
	if err != nil {
		return nil, err
	}
	return NewFlatIndex(s)
}

// Search returns the min(k, N) rows with the highest inner product against query, in
// descending score order. Equal scores keep ascending row order. k <= 0 returns no results.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := f.store.Rows()
	if n == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != f.store.Dimensions {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), f.store.Dimensions)
	}
	if k <= 0 {
		return []Result{}, nil
	}
	if k > n {
		k = n
	}

	scores := make([]Result, n)
	for i := 0; i < n; i++ {
		scores[i] = Result{Index: i, Score: InnerProduct(query, f.store.Row(i))}
	}
	slices.SortStableFunc(scores, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return scores[:k:k], nil
}

// Size returns the number of rows in the index.
func (f *FlatIndex) Size() int {
	return f.store.Rows()
}

// Dimensions returns the embedding dimension.
func (f *FlatIndex) Dimensions() int {
	return f.store.Dimensions
}

// Path returns the catalog path stored for row i.
func (f *FlatIndex) Path(i int) string {
	return f.store.Paths[i]
}

// Vector returns a copy of the embedding at row i.
func (f *FlatIndex) Vector(i int) []float32 {
	return slices.Clone(f.store.Row(i))
}
