package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_FileReplaceTriggersOnce(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "embeddings.npy")
	var calls atomic.Int32
	w := NewWatcher([]string{target}, nil, func() { calls.Add(1) }, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Atomic replace: write a dot-prefixed temp file, then rename over the target.
	for i := 0; i < 3; i++ {
		tmp := filepath.Join(dir, ".embeddings.npy.tmp")
		if err := os.WriteFile(tmp, []byte{byte(i)}, 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, target); err != nil {
			t.Fatal(err)
		}
	}
	if !waitFor(t, func() bool { return calls.Load() >= 1 }, 3*time.Second) {
		t.Fatal("onChange was not called after replacing the store file")
	}
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("onChange called %d times, want 1 (debounced)", got)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := NewWatcher([]string{filepath.Join(dir, "paths.txt")}, nil, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("unrelated file triggered onChange")
	}
}

func TestWatcher_DirectoryExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := NewWatcher(nil, []string{dir}, func() { calls.Add(1) },
		WithDebounce(50*time.Millisecond), WithExtensions([]string{".jpg", ".png"}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("non-image file triggered onChange")
	}
	if err := os.WriteFile(filepath.Join(dir, "dress.JPG"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return calls.Load() == 1 }, 3*time.Second) {
		t.Errorf("image file did not trigger onChange, calls=%d", calls.Load())
	}
}

func TestWatcher_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index", "nested")
	w := NewWatcher([]string{filepath.Join(dir, "embeddings.npy")}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != dir {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_StopIsIdempotentAndCancels(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := NewWatcher(nil, []string{dir}, func() { calls.Add(1) }, WithDebounce(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatal("second Start should be a no-op")
	}
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	w.Stop()
	w.Stop()
	time.Sleep(400 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("pending change fired after stop")
	}
}

func TestMatchExtension(t *testing.T) {
	if !matchExtension("/a/b.PNG", []string{".png"}) {
		t.Error("extension match should be case-insensitive")
	}
	if matchExtension("/a/b.gif", []string{"png", "jpg"}) {
		t.Error("gif should not match")
	}
	if !matchExtension("/a/b", nil) {
		t.Error("empty list matches everything")
	}
}
