package config

import "time"

const (
	ProviderONNX = "onnx"
	ProviderMock = "mock"

	FillWhite = "white"
	FillBlack = "black"
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.EmbeddingsPath == "" {
		cfg.Storage.EmbeddingsPath = "/usr/local/var/katachi/data/index/embeddings.npy"
	}
	if cfg.Storage.PathsPath == "" {
		cfg.Storage.PathsPath = "/usr/local/var/katachi/data/index/paths.txt"
	}
	if cfg.Storage.WardrobeDBPath == "" {
		cfg.Storage.WardrobeDBPath = "/usr/local/var/katachi/data/db/wardrobe.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.VisualModelPath == "" {
		cfg.Embedding.VisualModelPath = "/usr/local/var/katachi/data/models/clip-vit-b32-visual.onnx"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/katachi/data/models/clip-vit-b32-textual.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "/usr/local/var/katachi/data/models/bpe_simple_vocab_16e6.txt.gz"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.ContextLength == 0 {
		cfg.Embedding.ContextLength = 77
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Index.MaskSuffix == "" {
		cfg.Index.MaskSuffix = "_segm.png"
	}
	if cfg.Index.Extensions == nil {
		cfg.Index.Extensions = []string{".jpg", ".jpeg", ".png"}
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = 4
	}
	if cfg.Index.MaskFill == "" {
		cfg.Index.MaskFill = FillWhite
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 12
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 100
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}
