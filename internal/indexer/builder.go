// Package indexer builds the embedding store from a catalog directory of garment images.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/imaging"
	"github.com/hyperjump/katachi/internal/vector"
)

// DefaultExtensions are the catalog image extensions indexed when none are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Builder encodes every catalog image (masked when a segmentation mask exists) and
// writes the embedding store.
type Builder struct {
	embedder   embedding.Embedder
	masker     imaging.Masker
	maskSuffix string
	extensions []string
	workers    int
	logger     *zap.Logger
	progress   func(done, total int)
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for build events and skipped items.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithWorkers bounds the number of images encoded concurrently.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithMaskSuffix sets the suffix appended to an image's base name to find its mask.
func WithMaskSuffix(suffix string) BuilderOption {
	return func(b *Builder) { b.maskSuffix = suffix }
}

// WithExtensions sets the image extensions to index (case-insensitive).
func WithExtensions(exts []string) BuilderOption {
	return func(b *Builder) {
		if len(exts) > 0 {
			b.extensions = exts
		}
	}
}

// WithProgress registers a callback invoked after each image is processed.
func WithProgress(fn func(done, total int)) BuilderOption {
	return func(b *Builder) { b.progress = fn }
}

// NewBuilder creates a builder. masker may be nil, in which case images are encoded unmasked.
func NewBuilder(embedder embedding.Embedder, masker imaging.Masker, opts ...BuilderOption) *Builder {
	if masker == nil {
		masker = imaging.NopMasker{}
	}
	b := &Builder{
		embedder:   embedder,
		masker:     masker,
		maskSuffix: "_segm.png",
		extensions: DefaultExtensions,
		workers:    4,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SkippedItem is a catalog image left out of the store and the reason why.
type SkippedItem struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// BuildReport summarises a completed build.
type BuildReport struct {
	Found          int           `json:"found"`
	Indexed        int           `json:"indexed"`
	Masked         int           `json:"masked"`
	Skipped        []SkippedItem `json:"skipped"`
	Dimensions     int           `json:"dimensions"`
	EmbeddingsPath string        `json:"embeddings_path"`
	PathsPath      string        `json:"paths_path"`
	Duration       time.Duration `json:"duration"`
}

type corpusItem struct {
	imagePath string
	maskPath  string
}

// Build encodes the images in corpusDir in sorted filename order and replaces the store at
// embeddingsPath/pathsPath. An unreadable image or mask is skipped with a warning; an
// unreadable corpus directory, an unavailable model, or cancellation aborts the build and
// leaves the previous store in place.
func (b *Builder) Build(ctx context.Context, corpusDir, maskDir, embeddingsPath, pathsPath string) (*BuildReport, error) {
	start := time.Now()
	items, err := b.listCorpus(corpusDir, maskDir)
	if err != nil {
		return nil, err
	}
	b.logger.Info("building index",
		zap.String("corpus_dir", corpusDir),
		zap.String("mask_dir", maskDir),
		zap.Int("images", len(items)),
		zap.Int("workers", b.workers))

	vectors := make([][]float32, len(items))
	itemErrs := make([]error, len(items))
	masked := make([]bool, len(items))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			defer func() {
				n := done.Add(1)
				if b.progress != nil {
					b.progress(int(n), len(items))
				}
			}()
			v, hasMask, err := b.encodeItem(gctx, it)
			if err != nil {
				if isFatal(err) {
					return err
				}
				itemErrs[i] = err
				return nil
			}
			vectors[i] = v
			masked[i] = hasMask
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build aborted: %w", err)
	}

	report := &BuildReport{
		Found:          len(items),
		Dimensions:     b.embedder.Dimensions(),
		EmbeddingsPath: embeddingsPath,
		PathsPath:      pathsPath,
		Skipped:        []SkippedItem{},
	}
	rows := make([][]float32, 0, len(items))
	paths := make([]string, 0, len(items))
	for i, it := range items {
		if itemErrs[i] != nil {
			b.logger.Warn("skipping catalog image", zap.String("path", it.imagePath), zap.Error(itemErrs[i]))
			report.Skipped = append(report.Skipped, SkippedItem{Path: it.imagePath, Reason: itemErrs[i].Error()})
			continue
		}
		rows = append(rows, vectors[i])
		paths = append(paths, it.imagePath)
		if masked[i] {
			report.Masked++
		}
	}

	store, err := vector.NewStore(report.Dimensions, rows, paths)
	if err != nil {
		return nil, fmt.Errorf("assemble store: %w", err)
	}
	if err := vector.WriteStore(store, embeddingsPath, pathsPath); err != nil {
		return nil, err
	}
	report.Indexed = store.Rows()
	report.Duration = time.Since(start)
	b.logger.Info("index built",
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("masked", report.Masked),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (b *Builder) encodeItem(ctx context.Context, it corpusItem) ([]float32, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := vector.CheckPath(it.imagePath); err != nil {
		return nil, false, err
	}
	img, err := imaging.Load(it.imagePath)
	if err != nil {
		return nil, false, err
	}
	hasMask := imaging.HasMask(it.maskPath)
	maskPath := it.maskPath
	if !hasMask {
		maskPath = ""
	}
	img, err = b.masker.Mask(img, maskPath)
	if err != nil {
		return nil, false, err
	}
	v, err := b.embedder.EncodeImage(ctx, img)
	if err != nil {
		return nil, false, err
	}
	b.logger.Debug("encoded catalog image", zap.String("path", it.imagePath), zap.Bool("masked", hasMask))
	return v, hasMask, nil
}

// listCorpus returns the indexable images in corpusDir sorted by file name.
func (b *Builder) listCorpus(corpusDir, maskDir string) ([]corpusItem, error) {
	entries, err := os.ReadDir(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("read corpus directory: %w", err)
	}
	sameDir := maskDir != "" && filepath.Clean(maskDir) == filepath.Clean(corpusDir)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !extensionAllowed(filepath.Ext(name), b.extensions) {
			continue
		}
		if sameDir && b.maskSuffix != "" && strings.HasSuffix(name, b.maskSuffix) {
			continue
		}
		// Resolve symlinks so we only index regular files
		info, statErr := os.Stat(filepath.Join(corpusDir, name))
		if statErr != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]corpusItem, len(names))
	for i, name := range names {
		p := filepath.Join(corpusDir, name)
		items[i] = corpusItem{imagePath: p, maskPath: imaging.MaskPath(maskDir, p, b.maskSuffix)}
	}
	return items, nil
}

func isFatal(err error) bool {
	return errors.Is(err, embedding.ErrModelUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
