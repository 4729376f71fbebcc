package embedding

import (
	"context"
	"image"
	"math"
	"strings"

	"github.com/hyperjump/katachi/internal/imaging"
	"github.com/hyperjump/katachi/pkg/utils"
)

// colorBins places a colour word on the histogram bin a solid image of that colour fills.
var colorBins = map[string]int{
	"black": histogramBin(0, 0, 0),
	"white": histogramBin(255, 255, 255),
	"red":   histogramBin(255, 0, 0),
	"green": histogramBin(0, 255, 0),
	"blue":  histogramBin(0, 0, 255),
}

// MockEmbedder is a deterministic embedder for tests and the "mock" provider.
// Images embed as coarse colour histograms; colour words in text land on the same
// bins, other words contribute a hashed component.
type MockEmbedder struct {
	dimensions int
	tokens     SimpleTokenizer
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EncodeImage returns the normalised 64-bin colour histogram of img, folded into the embedding dimension.
func (e *MockEmbedder) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := imaging.Validate(img); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			emb[histogramBin(uint8(r>>8), uint8(g>>8), uint8(bl>>8))%e.dimensions]++
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EncodeText returns a deterministic embedding: colour words hit their histogram bin and
// every word adds a small hashed component.
func (e *MockEmbedder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := hashedVector(HashString(text), e.dimensions)
	for _, word := range SplitWords(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if bin, ok := colorBins[word]; ok {
			emb[bin%e.dimensions] += 1
			continue
		}
		for i, v := range hashedVector(int(e.tokens.TokenID(word)), e.dimensions) {
			emb[i] += 0.3 * v
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func histogramBin(r, g, b uint8) int {
	return int(r>>6)*16 + int(g>>6)*4 + int(b>>6)
}

// hashedVector is a small unit-scale vector derived from the hash h.
func hashedVector(h, dimensions int) []float32 {
	emb := make([]float32, dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1+0.01) * 0.1
	}
	return emb
}
