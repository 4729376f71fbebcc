package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/server"
	"github.com/hyperjump/katachi/internal/vector"
	"github.com/hyperjump/katachi/internal/watcher"
)

const serveLongDesc = `Run the HTTP API.

The embedding store is loaded at startup; if it does not exist yet, search
requests fail with 503 until a build completes and the store is reloaded
(POST /api/v1/index/reload, or automatically when watch.enabled is set).

Example:
  katachi serve
  katachi serve --port 9000 --warm`

type serveCommander struct {
	host string
	port int
	warm bool
}

func newServeCmd() *cobra.Command {
	cmder := &serveCommander{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newCommandEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			if cmd.Flags().Changed("host") {
				env.cfg.Server.Host = cmder.host
			}
			if cmd.Flags().Changed("port") {
				env.cfg.Server.Port = cmder.port
			}
			return cmder.run(cmd.Context(), env)
		},
	}
	cmd.Flags().StringVar(&cmder.host, "host", "", "listen host (default from config server.host)")
	cmd.Flags().IntVarP(&cmder.port, "port", "p", 0, "listen port (default from config server.port)")
	cmd.Flags().BoolVar(&cmder.warm, "warm", false, "load the model at startup instead of on the first query")
	return cmd
}

func (c *serveCommander) run(ctx context.Context, env *commandEnv) error {
	cfg, logger := env.cfg, env.logger
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(cfg, logger, componentOptions{wardrobe: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	if err := components.Engine.Reload(); err != nil {
		logger.Warn("no embedding store loaded; run \"katachi build\"", zap.Error(err))
	}
	if c.warm {
		go func() {
			if err := components.Embedder.Warm(ctx); err != nil {
				logger.Error("model warm-up failed", zap.Error(err))
			}
		}()
	}

	if cfg.Watch.Enabled {
		watchOpts := []watcher.WatcherOption{watcher.WithDebounce(cfg.Watch.Debounce)}
		if env.debug {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		w := watcher.NewWatcher(
			[]string{cfg.Storage.EmbeddingsPath, cfg.Storage.PathsPath, vector.ManifestPath(cfg.Storage.EmbeddingsPath)},
			nil,
			func() {
				// A failed reload keeps the previous store; Reload logs the cause.
				_ = components.Engine.Reload()
			},
			watchOpts...,
		)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, components.Storage, &cfg.Server, logger, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
