package vector

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrCorruptIndex is returned when the embedding matrix and path list are malformed or disagree.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrEmptyIndex is returned when searching an index with no rows.
	ErrEmptyIndex = errors.New("empty index")
	// ErrDimensionMismatch is returned when a query's dimension differs from the index's.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrUnstorablePath is returned for a path that cannot be written to the path list.
	ErrUnstorablePath = errors.New("path cannot be stored in a line-oriented path list")
)

// Store is an embedding matrix with one catalog path per row. Row i belongs to Paths[i].
type Store struct {
	Dimensions int
	// Data is row-major with len(Paths)*Dimensions values.
	Data  []float32
	Paths []string
}

// NewStore assembles a store from per-row vectors. All vectors must have length dim.
func NewStore(dim int, vectors [][]float32, paths []string) (*Store, error) {
	if len(vectors) != len(paths) {
		return nil, fmt.Errorf("%d vectors for %d paths", len(vectors), len(paths))
	}
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
		data = append(data, v...)
	}
	return &Store{Dimensions: dim, Data: data, Paths: append([]string(nil), paths...)}, nil
}

// Rows returns the number of stored embeddings.
func (s *Store) Rows() int {
	return len(s.Paths)
}

// Row returns the embedding at row i. The slice aliases the store's data.
func (s *Store) Row(i int) []float32 {
	return s.Data[i*s.Dimensions : (i+1)*s.Dimensions]
}

// Validate checks that the matrix and path list are aligned.
func (s *Store) Validate() error {
	if s.Dimensions < 0 {
		return fmt.Errorf("%w: negative dimension", ErrCorruptIndex)
	}
	if len(s.Data) != len(s.Paths)*s.Dimensions {
		return fmt.Errorf("%w: %d values for %d paths of dimension %d", ErrCorruptIndex, len(s.Data), len(s.Paths), s.Dimensions)
	}
	return nil
}

// manifest pairs the checksums of one embeddings/paths write.
type manifest struct {
	Rows       int    `json:"rows"`
	Dimensions int    `json:"dimensions"`
	Embeddings string `json:"embeddings_sha256"`
	Paths      string `json:"paths_sha256"`
}

// ManifestPath returns the checksum manifest written next to embeddingsPath.
func ManifestPath(embeddingsPath string) string {
	return embeddingsPath + ".manifest.json"
}

// WriteStore persists s as an .npy matrix and a newline-separated path list.
// Each file is written to a temp file in its target directory and renamed into place,
// paths first, then the matrix, then a manifest of both checksums. ReadStore uses the
// manifest to reject a paths file and matrix that come from different builds.
func WriteStore(s *Store, embeddingsPath, pathsPath string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	var paths bytes.Buffer
	for _, p := range s.Paths {
		if err := CheckPath(p); err != nil {
			return err
		}
		paths.WriteString(p)
		paths.WriteByte('\n')
	}
	m := manifest{Rows: s.Rows(), Dimensions: s.Dimensions, Paths: checksum(paths.Bytes())}
	if err := atomicWrite(pathsPath, func(w io.Writer) error {
		_, err := w.Write(paths.Bytes())
		return err
	}); err != nil {
		return fmt.Errorf("write paths: %w", err)
	}
	if err := atomicWrite(embeddingsPath, func(w io.Writer) error {
		h := sha256.New()
		if err := writeNPY(io.MultiWriter(w, h), s.Data, s.Rows(), s.Dimensions); err != nil {
			return err
		}
		m.Embeddings = hex.EncodeToString(h.Sum(nil))
		return nil
	}); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	if err := atomicWrite(ManifestPath(embeddingsPath), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(m)
	}); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// CheckPath returns ErrUnstorablePath for an empty path or one containing a line break.
func CheckPath(p string) error {
	if p == "" || strings.ContainsAny(p, "\r\n") {
		return fmt.Errorf("%w: %q", ErrUnstorablePath, p)
	}
	return nil
}

// ReadStore loads and validates a store written by WriteStore. A store without a
// manifest (written by another tool) is accepted on row and path counts alone.
func ReadStore(embeddingsPath, pathsPath string) (*Store, error) {
	f, err := os.Open(embeddingsPath)
	if err != nil {
		return nil, fmt.Errorf("open embeddings: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	data, rows, dim, err := readNPY(io.TeeReader(f, h))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", embeddingsPath, err)
	}

	raw, err := os.ReadFile(pathsPath)
	if err != nil {
		return nil, fmt.Errorf("open paths: %w", err)
	}
	paths, err := parsePaths(bytes.NewReader(raw), pathsPath)
	if err != nil {
		return nil, err
	}
	if len(paths) != rows {
		return nil, fmt.Errorf("%w: %d embedding rows but %d paths", ErrCorruptIndex, rows, len(paths))
	}
	if err := verifyManifest(ManifestPath(embeddingsPath), hex.EncodeToString(h.Sum(nil)), checksum(raw)); err != nil {
		return nil, err
	}
	s := &Store{Dimensions: dim, Data: data, Paths: paths}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func verifyManifest(path, embeddingsSum, pathsSum string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: manifest: %v", ErrCorruptIndex, err)
	}
	if m.Embeddings != embeddingsSum || m.Paths != pathsSum {
		return fmt.Errorf("%w: embeddings and paths do not match the manifest of one build", ErrCorruptIndex)
	}
	return nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func parsePaths(r io.Reader, name string) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		p := strings.TrimSuffix(scanner.Text(), "\r")
		if p == "" {
			return nil, fmt.Errorf("%w: blank line %d in %s", ErrCorruptIndex, line, name)
		}
		paths = append(paths, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read paths: %w", err)
	}
	return paths, nil
}

func atomicWrite(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
