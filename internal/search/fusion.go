// Package search fuses image and text queries and ranks catalog images against them.
package search

import (
	"context"
	"fmt"
	"image"
	"math"
	"slices"
	"strings"

	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/vector"
)

// Text weighting: alpha = min(BaseAlpha + AlphaPerWord*words, MaxAlpha) when text is present.
const (
	BaseAlpha    = 0.4
	AlphaPerWord = 0.02
	MaxAlpha     = 0.6
)

// Alpha returns the weight given to the text embedding for text.
// Blank text gets 0; longer descriptions get more weight, capped at MaxAlpha.
func Alpha(text string) float64 {
	words := embedding.WordCount(text)
	if words == 0 {
		return 0
	}
	return math.Min(BaseAlpha+AlphaPerWord*float64(words), MaxAlpha)
}

// Fuse returns normalize((1-alpha)*img + alpha*txt). With alpha 0, or when txt does not
// match img's dimension, it returns a copy of img.
// If the blend cancels out to the zero vector, the image embedding is returned.
func Fuse(img, txt []float32, alpha float64) []float32 {
	if alpha == 0 || len(txt) != len(img) {
		return slices.Clone(img)
	}
	fused := make([]float64, len(img))
	var sum float64
	for i := range img {
		fused[i] = (1-alpha)*float64(img[i]) + alpha*float64(txt[i])
		sum += fused[i] * fused[i]
	}
	if sum == 0 {
		return slices.Clone(img)
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(img))
	for i, v := range fused {
		out[i] = float32(v * inv)
	}
	return out
}

// Fuser encodes a query image and optional text into one unit-norm query vector.
type Fuser struct {
	embedder embedding.Embedder
}

// NewFuser creates a fuser over embedder.
func NewFuser(embedder embedding.Embedder) *Fuser {
	return &Fuser{embedder: embedder}
}

// EncodeQuery returns the fused query vector and the alpha used.
// Without text the result is exactly the image embedding.
func (f *Fuser) EncodeQuery(ctx context.Context, img image.Image, text string) ([]float32, float64, error) {
	imgEmb, err := f.embedder.EncodeImage(ctx, img)
	if err != nil {
		return nil, 0, err
	}
	text = strings.TrimSpace(text)
	alpha := Alpha(text)
	if alpha == 0 {
		return imgEmb, 0, nil
	}
	txtEmb, err := f.embedder.EncodeText(ctx, text)
	if err != nil {
		return nil, 0, err
	}
	if len(txtEmb) != len(imgEmb) {
		return nil, 0, fmt.Errorf("%w: text embedding has %d values, image embedding %d",
			vector.ErrDimensionMismatch, len(txtEmb), len(imgEmb))
	}
	return Fuse(imgEmb, txtEmb, alpha), alpha, nil
}
