package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/katachi/internal/cli"
	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/testutil"
)

func TestBuildQueryText(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"red"}, "red"},
		{"multiple words", []string{"blue", "clothing"}, "blue clothing"},
		{"single quoted phrase", []string{"blue clothing"}, "blue clothing"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQueryText(tt.args); got != tt.expected {
				t.Errorf("buildQueryText(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	f, err := parseOutputFormat("json")
	require.NoError(t, err)
	assert.Equal(t, cli.OutputJSON, f)
	f, err = parseOutputFormat("")
	require.NoError(t, err)
	assert.Equal(t, cli.OutputText, f)
	_, err = parseOutputFormat("yaml")
	assert.Error(t, err)
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	origWd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(origWd) }()
	require.NoError(t, os.Chdir(dir))

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	assert.Equal(t, configPathCanon, resolvedCanon)
	assert.True(t, cfg.Debug, "debug should be true from cwd config.yaml")
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	cfg, resolved, err := loadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, resolved)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)

	_, _, err = loadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit missing config is an error")
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	require.NoError(t, writeDefaultConfig(path, false))
	assert.Error(t, writeDefaultConfig(path, false), "existing file is not overwritten")
	require.NoError(t, writeDefaultConfig(path, true))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "catalog"), cfg.Index.CorpusDir)
	assert.Equal(t, 12, cfg.Search.DefaultK)
}

// writeTestProject lays out a mock-embedder config and a three-colour catalog.
func writeTestProject(t *testing.T) (configPath, blue string) {
	t.Helper()
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog")
	require.NoError(t, os.MkdirAll(catalog, 0755))
	testutil.WritePNG(t, catalog, "a-red.png", testutil.Solid(24, testutil.Red))
	testutil.WritePNG(t, catalog, "b-green.png", testutil.Solid(24, testutil.Green))
	blue = testutil.WritePNG(t, catalog, "c-blue.png", testutil.Solid(24, testutil.Blue))

	configPath = filepath.Join(dir, "config.yaml")
	content := `
embedding:
  provider: mock
  dimensions: 64
storage:
  embeddings_path: ./index/embeddings.npy
  paths_path: ./index/paths.txt
  wardrobe_db_path: ./db/wardrobe.db
index:
  corpus_dir: ./catalog
  workers: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	return configPath, blue
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildThenQuery(t *testing.T) {
	configPath, blue := writeTestProject(t)

	out, err := execute(t, "--config", configPath, "-o", "json", "build")
	require.NoError(t, err)
	var report indexer.BuildReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, 64, report.Dimensions)

	queryImage := testutil.WritePNG(t, t.TempDir(), "q.png", testutil.Solid(16, testutil.Blue))
	out, err = execute(t, "--config", configPath, "-o", "json", "query", queryImage, "blue", "clothing", "-k", "2")
	require.NoError(t, err)
	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, blue, resp.Results[0].Path)
	assert.Equal(t, "blue clothing", resp.Text)
	assert.InDelta(t, 0.44, resp.Alpha, 1e-12)
}

func TestQueryWithoutStore(t *testing.T) {
	configPath, _ := writeTestProject(t)
	queryImage := testutil.WritePNG(t, t.TempDir(), "q.png", testutil.Solid(16, testutil.Red))
	_, err := execute(t, "--config", configPath, "query", queryImage)
	assert.Error(t, err)
}

func TestWardrobeCommands(t *testing.T) {
	configPath, blue := writeTestProject(t)

	out, err := execute(t, "--config", configPath, "wardrobe", "add", "alice", blue)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved")

	out, err = execute(t, "--config", configPath, "-o", "json", "wardrobe", "list", "alice")
	require.NoError(t, err)
	var list struct {
		Items []models.WardrobeItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, blue, list.Items[0].ProductPath)

	_, err = execute(t, "--config", configPath, "wardrobe", "remove", "alice", blue)
	require.NoError(t, err)
	_, err = execute(t, "--config", configPath, "wardrobe", "remove", "alice", blue)
	assert.Error(t, err, "removing a product that is not saved fails")
}

func TestStatusCommand(t *testing.T) {
	configPath, _ := writeTestProject(t)
	out, err := execute(t, "--config", configPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not built")

	_, err = execute(t, "--config", configPath, "-o", "json", "build")
	require.NoError(t, err)
	out, err = execute(t, "--config", configPath, "-o", "json", "status")
	require.NoError(t, err)
	var status statusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Index.Loaded)
	assert.Equal(t, 3, status.Index.Rows)
	assert.Positive(t, status.DiskUsageBytes)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "katachi version dev")
}
