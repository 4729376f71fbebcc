// Package server provides the HTTP API for Katachi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/internal/storage"
	"go.uber.org/zap"
)

// maxUploadBytes bounds the multipart body of a search request.
const maxUploadBytes = 32 << 20

// Server is the HTTP server for the Katachi API.
type Server struct {
	engine  *search.Engine
	storage storage.Storage
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	// appConfig is optional; when set, status reports the embedding setup and disk usage.
	appConfig *config.Config
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	storage storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	appConfig *config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:    engine,
		storage:   storage,
		config:    cfg,
		logger:    logger,
		appConfig: appConfig,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/index/reload", s.handleReload)
	r.Get("/api/v1/status", s.handleStatus)

	r.Post("/api/v1/wardrobe", s.handleWardrobeAdd)
	r.Get("/api/v1/wardrobe/items/{id}", s.handleWardrobeGetItem)
	r.Delete("/api/v1/wardrobe/items/{id}", s.handleWardrobeDeleteItem)
	r.Get("/api/v1/wardrobe/{userID}", s.handleWardrobeList)
	r.Delete("/api/v1/wardrobe/{userID}", s.handleWardrobeRemove)

	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
