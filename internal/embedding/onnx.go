//go:build cgo
// +build cgo

// Package embedding provides ONNX-based CLIP embedding (requires CGO and onnxruntime library).
package embedding

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/hyperjump/katachi/internal/imaging"
	"github.com/hyperjump/katachi/pkg/utils"
)

// CLIPEmbedder runs the visual and textual halves of a CLIP model with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type CLIPEmbedder struct {
	visual        *ort.AdvancedSession
	textual       *ort.AdvancedSession
	dimensions    int
	imageSize     int
	contextLength int
	cache         *EmbeddingCache
	tokenizer     Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	pixelTensor     *ort.Tensor[float32]
	imageOutTensor  *ort.Tensor[float32]
	inputIDsTensor  *ort.Tensor[int64]
	attentionTensor *ort.Tensor[int64]
	textOutTensor   *ort.Tensor[float32]
	mu              sync.Mutex
}

// NewCLIPEmbedder creates the embedder. InitializeEnvironment is called if not already done.
// Missing model files are reported as ErrModelUnavailable.
func NewCLIPEmbedder(cfg CLIPConfig) (_ *CLIPEmbedder, err error) {
	for _, p := range []string{cfg.VisualModelPath, cfg.TextModelPath} {
		if _, statErr := os.Stat(p); statErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, statErr)
		}
	}
	tokenizer, err := cfg.tokenizer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize ONNX runtime: %v", ErrModelUnavailable, err)
		}
	}

	e := &CLIPEmbedder{
		dimensions:    cfg.Dimensions,
		imageSize:     cfg.ImageSize,
		contextLength: cfg.ContextLength,
		cache:         NewEmbeddingCache(cfg.CacheSize),
		tokenizer:     tokenizer,
	}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	size := int64(cfg.ImageSize)
	if e.pixelTensor, err = ort.NewTensor(ort.NewShape(1, 3, size, size), make([]float32, 3*size*size)); err != nil {
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	if e.imageOutTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dimensions))); err != nil {
		return nil, fmt.Errorf("failed to create image output tensor: %w", err)
	}
	ids, mask := tokenizer.Tokenize("", cfg.ContextLength)
	if e.inputIDsTensor, err = ort.NewTensor(ort.NewShape(1, int64(cfg.ContextLength)), ids); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionTensor, err = ort.NewTensor(ort.NewShape(1, int64(cfg.ContextLength)), mask); err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.textOutTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dimensions))); err != nil {
		return nil, fmt.Errorf("failed to create text output tensor: %w", err)
	}

	e.visual, err = ort.NewAdvancedSession(
		cfg.VisualModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOutTensor},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: visual session: %v", ErrModelUnavailable, err)
	}
	e.textual, err = ort.NewAdvancedSession(
		cfg.TextModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionTensor},
		[]ort.ArbitraryTensor{e.textOutTensor},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: text session: %v", ErrModelUnavailable, err)
	}
	return e, nil
}

// EncodeImage returns the unit-norm CLIP embedding of img.
func (e *CLIPEmbedder) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := imaging.Validate(img); err != nil {
		return nil, err
	}
	pixels := PixelValues(img, e.imageSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.visual.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	embedding := make([]float32, e.dimensions)
	copy(embedding, e.imageOutTensor.GetData())
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EncodeText returns the unit-norm CLIP embedding of text, using cache when available.
func (e *CLIPEmbedder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	ids, mask := e.tokenizer.Tokenize(text, e.contextLength)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputIDsTensor.GetData(), ids)
	copy(e.attentionTensor.GetData(), mask)
	if err := e.textual.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	embedding := make([]float32, e.dimensions)
	copy(embedding, e.textOutTensor.GetData())
	utils.NormalizeL2(embedding)
	e.cache.Set(text, embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the sessions and tensors.
func (e *CLIPEmbedder) Close() error {
	var err error
	if e.visual != nil {
		err = multierr.Append(err, e.visual.Destroy())
		e.visual = nil
	}
	if e.textual != nil {
		err = multierr.Append(err, e.textual.Destroy())
		e.textual = nil
	}
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.imageOutTensor != nil {
		_ = e.imageOutTensor.Destroy()
		e.imageOutTensor = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.attentionTensor != nil {
		_ = e.attentionTensor.Destroy()
		e.attentionTensor = nil
	}
	if e.textOutTensor != nil {
		_ = e.textOutTensor.Destroy()
		e.textOutTensor = nil
	}
	return err
}
