//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
	"image"
)

// CLIPEmbedder stub type when built without CGO (see onnx.go for real implementation).
type CLIPEmbedder struct{}

// NewCLIPEmbedder returns ErrModelUnavailable when built without CGO (ONNX not available).
func NewCLIPEmbedder(_ CLIPConfig) (*CLIPEmbedder, error) {
	return nil, fmt.Errorf("%w: CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", ErrModelUnavailable)
}

func (e *CLIPEmbedder) EncodeImage(context.Context, image.Image) ([]float32, error) {
	return nil, ErrModelUnavailable
}

func (e *CLIPEmbedder) EncodeText(context.Context, string) ([]float32, error) {
	return nil, ErrModelUnavailable
}

func (e *CLIPEmbedder) Dimensions() int { return 0 }

func (e *CLIPEmbedder) Close() error { return nil }
