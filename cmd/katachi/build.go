package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/cli"
	"github.com/hyperjump/katachi/internal/watcher"
)

const buildLongDesc = `Encode every catalog image into the embedding store.

Images are read from the corpus directory in sorted filename order. When a mask
directory is set, <name><mask-suffix> (default "_segm.png") restricts each image
to the garment; images without a mask are encoded whole. Unreadable images are
skipped with a warning. The store is replaced atomically, so a running server
keeps answering from the previous store until the build completes.

With --watch the command stays running and rebuilds whenever catalog images or
masks change.

Example:
  katachi build --corpus ./catalog --masks ./catalog/segm
  katachi build --watch`

type buildCommander struct {
	corpusDir string
	maskDir   string
	watch     bool
}

func newBuildCmd() *cobra.Command {
	cmder := &buildCommander{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the embedding store from the catalog",
		Long:  buildLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newCommandEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			if cmd.Flags().Changed("corpus") {
				env.cfg.Index.CorpusDir = cmder.corpusDir
			}
			if cmd.Flags().Changed("masks") {
				env.cfg.Index.MaskDir = cmder.maskDir
			}
			return cmder.run(cmd.Context(), env, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cmder.corpusDir, "corpus", "", "catalog image directory (default from config index.corpus_dir)")
	cmd.Flags().StringVar(&cmder.maskDir, "masks", "", "segmentation mask directory (default from config index.mask_dir)")
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "rebuild when the catalog changes")
	return cmd
}

func (c *buildCommander) run(ctx context.Context, env *commandEnv, out io.Writer) error {
	cfg := env.cfg
	if cfg.Index.CorpusDir == "" {
		return errors.New("no corpus directory: set index.corpus_dir or pass --corpus")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress func(done, total int)
	if env.format == cli.OutputText {
		progress = func(done, total int) {
			if done == total || done%100 == 0 {
				fmt.Fprintf(os.Stderr, "\rencoded %d/%d", done, total)
				if done == total {
					fmt.Fprintln(os.Stderr)
				}
			}
		}
	}
	components, err := initializeComponents(cfg, env.logger, componentOptions{progress: progress})
	if err != nil {
		return err
	}
	defer components.Close()

	build := func() error {
		report, err := components.Builder.Build(ctx, cfg.Index.CorpusDir, cfg.Index.MaskDir,
			cfg.Storage.EmbeddingsPath, cfg.Storage.PathsPath)
		if err != nil {
			return fmt.Errorf("build failed: %w", err)
		}
		return cli.WriteBuildReport(out, report, env.format)
	}
	if err := build(); err != nil {
		return err
	}
	if !c.watch {
		return nil
	}

	// Rebuilds run one at a time; changes during a build queue at most one more.
	pending := make(chan struct{}, 1)
	dirs := []string{cfg.Index.CorpusDir}
	if cfg.Index.MaskDir != "" && cfg.Index.MaskDir != cfg.Index.CorpusDir {
		dirs = append(dirs, cfg.Index.MaskDir)
	}
	watchOpts := []watcher.WatcherOption{
		watcher.WithDebounce(cfg.Watch.Debounce),
		watcher.WithExtensions(cfg.Index.Extensions),
	}
	if env.debug {
		watchOpts = append(watchOpts, watcher.WithLogger(env.logger))
	}
	w := watcher.NewWatcher(nil, dirs, func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}, watchOpts...)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()
	env.logger.Info("watching catalog for changes", zap.Strings("directories", w.Directories()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			if err := build(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				env.logger.Error("rebuild failed", zap.Error(err))
			}
		}
	}
}
