package search

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/fileid"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/vector"
)

// ErrNoIndex is returned when searching before any store has been loaded.
var ErrNoIndex = errors.New("no index loaded")

type loadedIndex struct {
	index    *vector.FlatIndex
	loadedAt time.Time
}

// Engine ranks catalog images against fused image+text queries. The index can be
// swapped while searches are running; each search uses the index it started with.
type Engine struct {
	fuser          *Fuser
	config         *config.SearchConfig
	embeddingsPath string
	pathsPath      string
	logger         *zap.Logger

	current  atomic.Pointer[loadedIndex]
	reloadMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for reloads.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine that loads its index from the given store files.
// The index is not loaded until Reload is called.
func NewEngine(embedder embedding.Embedder, cfg *config.SearchConfig, embeddingsPath, pathsPath string, opts ...EngineOption) *Engine {
	e := &Engine{
		fuser:          NewFuser(embedder),
		config:         cfg,
		embeddingsPath: embeddingsPath,
		pathsPath:      pathsPath,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reload reads the store from disk and swaps it in. On failure the previous index stays active.
func (e *Engine) Reload() error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	idx, err := vector.Load(e.embeddingsPath, e.pathsPath)
	if err != nil {
		e.logger.Error("index reload failed", zap.String("embeddings_path", e.embeddingsPath), zap.Error(err))
		return fmt.Errorf("load index: %w", err)
	}
	e.SetIndex(idx)
	e.logger.Info("index loaded", zap.Int("rows", idx.Size()), zap.Int("dimensions", idx.Dimensions()))
	return nil
}

// SetIndex replaces the active index.
func (e *Engine) SetIndex(idx *vector.FlatIndex) {
	e.current.Store(&loadedIndex{index: idx, loadedAt: time.Now()})
}

// Index returns the active index, or nil if none is loaded.
func (e *Engine) Index() *vector.FlatIndex {
	if cur := e.current.Load(); cur != nil {
		return cur.index
	}
	return nil
}

// Search encodes the query and returns the top query.K catalog images by similarity.
func (e *Engine) Search(ctx context.Context, img image.Image, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}
	cur := e.current.Load()
	if cur == nil {
		return nil, ErrNoIndex
	}
	if cur.index.Size() == 0 {
		return nil, vector.ErrEmptyIndex
	}

	q, alpha, err := e.fuser.EncodeQuery(ctx, img, query.Text)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	hits, err := cur.index.Search(ctx, q, query.K)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	response := &models.SearchResponse{
		Results: make([]*models.SearchResult, 0, len(hits)),
		Alpha:   alpha,
		Total:   len(hits),
		Text:    query.Text,
	}
	for i, h := range hits {
		response.Results = append(response.Results, &models.SearchResult{
			Path:      cur.index.Path(h.Index),
			ProductID: fileid.ProductID(cur.index.Path(h.Index)),
			Score:     h.Score,
			Index:     h.Index,
			Rank:      i + 1,
		})
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// Status describes the active index.
type Status struct {
	Loaded         bool      `json:"loaded"`
	Rows           int       `json:"rows"`
	Dimensions     int       `json:"dimensions"`
	EmbeddingsPath string    `json:"embeddings_path"`
	PathsPath      string    `json:"paths_path"`
	LoadedAt       time.Time `json:"loaded_at,omitzero"`
}

// Status reports the active index and where it is loaded from.
func (e *Engine) Status() Status {
	s := Status{EmbeddingsPath: e.embeddingsPath, PathsPath: e.pathsPath}
	if cur := e.current.Load(); cur != nil {
		s.Loaded = true
		s.Rows = cur.index.Size()
		s.Dimensions = cur.index.Dimensions()
		s.LoadedAt = cur.loadedAt
	}
	return s
}

// StorePaths returns the embeddings and paths files the engine loads from.
func (e *Engine) StorePaths() (string, string) {
	return e.embeddingsPath, e.pathsPath
}
