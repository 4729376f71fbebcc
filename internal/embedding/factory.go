package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/config"
)

// CLIPConfig locates the CLIP model halves and sets encoder shapes.
type CLIPConfig struct {
	VisualModelPath string
	TextModelPath   string
	// VocabPath is the CLIP BPE merges file, optionally gzipped. Required.
	VocabPath     string
	Dimensions    int
	ImageSize     int
	ContextLength int
	CacheSize     int
}

func (c CLIPConfig) tokenizer() (Tokenizer, error) {
	if c.VocabPath == "" {
		return nil, errors.New("no BPE vocabulary configured (embedding.vocab_path)")
	}
	return LoadBPETokenizer(c.VocabPath)
}

// New returns a lazily-loaded embedder for the configured provider.
// Supported providers: "onnx" (default), "mock".
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (*Lazy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var load Loader
	switch cfg.Provider {
	case config.ProviderONNX, "":
		clip := CLIPConfig{
			VisualModelPath: cfg.VisualModelPath,
			TextModelPath:   cfg.TextModelPath,
			VocabPath:       cfg.VocabPath,
			Dimensions:      cfg.Dimensions,
			ImageSize:       cfg.ImageSize,
			ContextLength:   cfg.ContextLength,
			CacheSize:       cfg.CacheSize,
		}
		if clip.VocabPath == "" {
			return nil, fmt.Errorf("%w: embedding.vocab_path is required for the onnx provider", ErrModelUnavailable)
		}
		load = func(context.Context) (Embedder, error) {
			return NewCLIPEmbedder(clip)
		}
	case config.ProviderMock:
		logger.Warn("using mock embedder, results are not semantically meaningful")
		load = func(context.Context) (Embedder, error) {
			return NewMockEmbedder(cfg.Dimensions), nil
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, mock)", cfg.Provider)
	}
	return NewLazy(cfg.Dimensions, load, WithLazyLogger(logger)), nil
}
