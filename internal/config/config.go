// Package config provides configuration loading and structs for the katachi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the embedding store and the wardrobe database.
type StorageConfig struct {
	EmbeddingsPath string `yaml:"embeddings_path"`
	PathsPath      string `yaml:"paths_path"`
	WardrobeDBPath string `yaml:"wardrobe_db_path"`
}

// EmbeddingConfig holds CLIP embedder settings.
type EmbeddingConfig struct {
	// Provider is "onnx" or "mock".
	Provider        string `yaml:"provider"`
	VisualModelPath string `yaml:"visual_model_path"`
	TextModelPath   string `yaml:"text_model_path"`
	VocabPath       string `yaml:"vocab_path"`
	Dimensions      int    `yaml:"dimensions"`
	ImageSize       int    `yaml:"image_size"`
	ContextLength   int    `yaml:"context_length"`
	CacheSize       int    `yaml:"cache_size"`
}

// IndexConfig holds corpus layout and build settings.
type IndexConfig struct {
	CorpusDir  string   `yaml:"corpus_dir"`
	MaskDir    string   `yaml:"mask_dir"`
	MaskSuffix string   `yaml:"mask_suffix"`
	Extensions []string `yaml:"extensions"`
	Workers    int      `yaml:"workers"`
	// MaskFill is "white" or "black".
	MaskFill string `yaml:"mask_fill"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// WatchConfig controls hot reload of the embedding store.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.EmbeddingsPath = expandPath(cfg.Storage.EmbeddingsPath, configDir)
	cfg.Storage.PathsPath = expandPath(cfg.Storage.PathsPath, configDir)
	cfg.Storage.WardrobeDBPath = expandPath(cfg.Storage.WardrobeDBPath, configDir)
	cfg.Embedding.VisualModelPath = expandPath(cfg.Embedding.VisualModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	if cfg.Index.CorpusDir != "" {
		cfg.Index.CorpusDir = expandPath(cfg.Index.CorpusDir, configDir)
	}
	if cfg.Index.MaskDir != "" {
		cfg.Index.MaskDir = expandPath(cfg.Index.MaskDir, configDir)
	}

	return &cfg, nil
}

// Validate rejects settings that defaults cannot repair.
func Validate(cfg *Config) error {
	switch cfg.Embedding.Provider {
	case ProviderONNX, ProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	switch cfg.Index.MaskFill {
	case FillWhite, FillBlack:
	default:
		return fmt.Errorf("unknown mask fill %q", cfg.Index.MaskFill)
	}
	if cfg.Search.DefaultK > cfg.Search.MaxK {
		return fmt.Errorf("search.default_k (%d) exceeds search.max_k (%d)", cfg.Search.DefaultK, cfg.Search.MaxK)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
