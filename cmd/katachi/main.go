// Package main is the Katachi CLI entry point.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/cli"
	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/imaging"
	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/internal/storage"
	"github.com/hyperjump/katachi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/katachi/config.yaml"

const rootLongDesc = `Katachi finds catalog garments that look like a query photo.

Build an embedding store from a folder of product images, then query it with
an image and an optional text hint ("blue clothing"). Segmentation masks, when
present, restrict each catalog image to the garment itself.

  katachi build                      Encode the catalog into the embedding store
  katachi query photo.jpg "red"      Rank catalog images against a query
  katachi serve                      Run the HTTP API
  katachi wardrobe add alice a.jpg   Save a product to a wardrobe`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "katachi",
		Short:         "Fashion image retrieval",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().StringP("output", "o", "text", "output format: text or json")

	cmd.AddCommand(
		newBuildCmd(),
		newQueryCmd(),
		newServeCmd(),
		newStatusCmd(),
		newWardrobeCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "katachi version %s\n", version)
		},
	}
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config yields the built-in defaults.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.DefaultConfig(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// commandEnv is the configuration, logger and output format shared by every subcommand.
type commandEnv struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	format     cli.OutputFormat
	debug      bool
}

func newCommandEnv(cmd *cobra.Command) (*commandEnv, error) {
	configPath, _ := cmd.Flags().GetString("config")
	debugFlag, _ := cmd.Flags().GetBool("debug")
	output, _ := cmd.Flags().GetString("output")

	format, err := parseOutputFormat(output)
	if err != nil {
		return nil, err
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return &commandEnv{cfg: cfg, configPath: resolved, logger: logger, format: format, debug: debug}, nil
}

func (e *commandEnv) close() {
	_ = e.logger.Sync()
}

func parseOutputFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "", "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// Components holds the long-lived pieces built from a config.
type Components struct {
	Embedder *embedding.Lazy
	Engine   *search.Engine
	Builder  *indexer.Builder
	Storage  storage.Storage
}

// Close releases every component and reports all close errors together.
func (c *Components) Close() error {
	var err error
	if c.Storage != nil {
		err = multierr.Append(err, c.Storage.Close())
	}
	if c.Embedder != nil {
		err = multierr.Append(err, c.Embedder.Close())
	}
	return err
}

type componentOptions struct {
	wardrobe bool
	progress func(done, total int)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, opts componentOptions) (*Components, error) {
	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c := &Components{Embedder: embedder}

	c.Engine = search.NewEngine(embedder, &cfg.Search,
		cfg.Storage.EmbeddingsPath, cfg.Storage.PathsPath, search.WithLogger(logger))

	masker := imaging.NewSegmentationMasker(imaging.FillColor(cfg.Index.MaskFill))
	builderOpts := []indexer.BuilderOption{
		indexer.WithLogger(logger),
		indexer.WithWorkers(cfg.Index.Workers),
		indexer.WithMaskSuffix(cfg.Index.MaskSuffix),
		indexer.WithExtensions(cfg.Index.Extensions),
	}
	if opts.progress != nil {
		builderOpts = append(builderOpts, indexer.WithProgress(opts.progress))
	}
	c.Builder = indexer.NewBuilder(embedder, masker, builderOpts...)

	if opts.wardrobe {
		store, err := storage.NewSQLiteStorage(cfg.Storage.WardrobeDBPath)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize wardrobe storage: %w", err)
		}
		c.Storage = store
	}
	return c, nil
}
