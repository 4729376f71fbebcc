package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/katachi/internal/cli"
	"github.com/hyperjump/katachi/internal/imaging"
	"github.com/hyperjump/katachi/internal/models"
)

const queryLongDesc = `Rank catalog images against a query image and an optional text hint.

The text is all remaining arguments joined by spaces, so multi-word hints work
with or without quotes. An empty hint ranks by the image alone; longer hints
weigh text more, up to 60%.

By default the embedding store is read directly. Use --server to query a
running "katachi serve" instead.

Example:
  katachi query photo.jpg
  katachi query photo.jpg blue clothing -k 5
  katachi query photo.jpg "red dress" --server http://localhost:8080 -o json`

type queryCommander struct {
	k         int
	serverURL string
}

func newQueryCmd() *cobra.Command {
	cmder := &queryCommander{}
	cmd := &cobra.Command{
		Use:   "query <image> [text...]",
		Short: "Find catalog images similar to a query image",
		Long:  queryLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCommandEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			query := &models.SearchQuery{Text: buildQueryText(args[1:]), K: cmder.k}
			return cmder.run(cmd.Context(), env, args[0], query, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&cmder.k, "top", "k", 0, "number of results (default from config search.default_k)")
	cmd.Flags().StringVar(&cmder.serverURL, "server", "", "query a running server at this URL instead of the local store")
	return cmd
}

// buildQueryText joins positional args with spaces so multi-word hints
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func (c *queryCommander) run(ctx context.Context, env *commandEnv, imagePath string, query *models.SearchQuery, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		response *models.SearchResponse
		err      error
	)
	if c.serverURL != "" {
		response, err = searchViaHTTP(ctx, c.serverURL, imagePath, query)
	} else {
		response, err = searchLocal(ctx, env, imagePath, query)
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return cli.WriteSearchResults(out, response, env.format)
}

func searchLocal(ctx context.Context, env *commandEnv, imagePath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	img, err := imaging.Load(imagePath)
	if err != nil {
		return nil, err
	}
	components, err := initializeComponents(env.cfg, env.logger, componentOptions{})
	if err != nil {
		return nil, err
	}
	defer components.Close()
	if err := components.Engine.Reload(); err != nil {
		return nil, fmt.Errorf("%w (run \"katachi build\" first)", err)
	}
	return components.Engine.Search(ctx, img, query)
}

func searchViaHTTP(ctx context.Context, serverURL, imagePath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if query.Text != "" {
		_ = mw.WriteField("text", query.Text)
	}
	if query.K > 0 {
		_ = mw.WriteField("k", strconv.Itoa(query.K))
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(serverURL, "/api/v1/search")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}
