// Package embedding maps images and text into a shared, unit-norm CLIP vector space.
package embedding

import (
	"context"
	"errors"
	"image"

	"github.com/hyperjump/katachi/internal/imaging"
)

var (
	// ErrModelUnavailable is returned when the backing model cannot be loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInvalidInput is returned for images the encoder cannot use.
	ErrInvalidInput = imaging.ErrInvalidInput
)

// Embedder produces L2-normalised embeddings of a fixed dimension for images and text.
type Embedder interface {
	EncodeImage(ctx context.Context, img image.Image) ([]float32, error)
	EncodeText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
