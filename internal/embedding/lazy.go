package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader constructs the underlying embedder on first use.
type Loader func(ctx context.Context) (Embedder, error)

// Lazy defers model loading until the first encode call. Concurrent first callers share
// a single load; a failed load is reported as ErrModelUnavailable and retried on the next call.
type Lazy struct {
	load       Loader
	dimensions int
	logger     *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	inst  Embedder
}

// LazyOption configures a Lazy embedder.
type LazyOption func(*Lazy)

// WithLazyLogger sets the logger used to report model loads.
func WithLazyLogger(l *zap.Logger) LazyOption {
	return func(z *Lazy) {
		z.logger = l
	}
}

// NewLazy returns an embedder that calls load the first time it is needed.
// dimensions is reported by Dimensions before the model is loaded.
func NewLazy(dimensions int, load Loader, opts ...LazyOption) *Lazy {
	l := &Lazy{load: load, dimensions: dimensions}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

func (l *Lazy) get(ctx context.Context) (Embedder, error) {
	l.mu.RLock()
	inst := l.inst
	l.mu.RUnlock()
	if inst != nil {
		return inst, nil
	}

	v, err, _ := l.group.Do("model", func() (interface{}, error) {
		l.mu.RLock()
		inst := l.inst
		l.mu.RUnlock()
		if inst != nil {
			return inst, nil
		}
		l.logger.Info("loading embedding model")
		e, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			l.logger.Error("embedding model load failed", zap.Error(err))
			return nil, err
		}
		if e.Dimensions() != l.dimensions {
			_ = e.Close()
			return nil, fmt.Errorf("model produces %d dimensions, configured %d", e.Dimensions(), l.dimensions)
		}
		l.mu.Lock()
		l.inst = e
		l.mu.Unlock()
		return e, nil
	})
	if err != nil {
		if !errors.Is(err, ErrModelUnavailable) {
			err = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return nil, err
	}
	return v.(Embedder), nil
}

// EncodeImage loads the model if needed and encodes img.
func (l *Lazy) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	e, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.EncodeImage(ctx, img)
}

// EncodeText loads the model if needed and encodes text.
func (l *Lazy) EncodeText(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.EncodeText(ctx, text)
}

// Warm loads the model without encoding anything.
func (l *Lazy) Warm(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

// Loaded reports whether the model has been loaded.
func (l *Lazy) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inst != nil
}

// Dimensions returns the configured embedding dimension.
func (l *Lazy) Dimensions() int {
	return l.dimensions
}

// Reset closes the loaded model, if any, so the next call loads a fresh instance.
func (l *Lazy) Reset() error {
	l.mu.Lock()
	inst := l.inst
	l.inst = nil
	l.mu.Unlock()
	if inst == nil {
		return nil
	}
	return inst.Close()
}

// Close releases the loaded model.
func (l *Lazy) Close() error {
	return l.Reset()
}
