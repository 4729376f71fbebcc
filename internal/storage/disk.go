package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/katachi/internal/vector"
)

// DiskUsageBytes returns the total size in bytes of the given files and directories.
// Empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		n, err := dirSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// StoreFootprint reports the on-disk size of an embedding store with its manifest and the
// wardrobe database, including SQLite's WAL side files.
func StoreFootprint(embeddingsPath, pathsPath, dbPath string) (int64, error) {
	paths := []string{embeddingsPath, pathsPath}
	if embeddingsPath != "" {
		paths = append(paths, vector.ManifestPath(embeddingsPath))
	}
	if dbPath != "" {
		paths = append(paths, dbPath, dbPath+"-wal", dbPath+"-shm")
	}
	return DiskUsageBytes(paths...)
}
