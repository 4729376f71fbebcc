package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/hyperjump/katachi/internal/cli"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/internal/storage"
)

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Index          search.Status `json:"index"`
	WardrobeItems  int64         `json:"wardrobe_items"`
	DiskUsageBytes int64         `json:"disk_usage_bytes"`
}

func newStatusCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show embedding store and wardrobe status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newCommandEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			var status *statusResponse
			if serverURL != "" {
				status, err = statusViaHTTP(cmd.Context(), serverURL)
			} else {
				status, err = statusLocal(cmd.Context(), env)
			}
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status.Index, status.WardrobeItems, status.DiskUsageBytes, env.format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "read status from a running server at this URL")
	return cmd
}

func statusLocal(ctx context.Context, env *commandEnv) (*statusResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := env.cfg
	components, err := initializeComponents(cfg, env.logger, componentOptions{wardrobe: true})
	if err != nil {
		return nil, err
	}
	defer components.Close()

	// A missing or corrupt store is reported as not loaded.
	_ = components.Engine.Reload()
	count, err := components.Storage.CountItems(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("count wardrobe items: %w", err)
	}
	diskBytes, err := storage.StoreFootprint(cfg.Storage.EmbeddingsPath, cfg.Storage.PathsPath, cfg.Storage.WardrobeDBPath)
	if err != nil {
		return nil, err
	}
	return &statusResponse{Index: components.Engine.Status(), WardrobeItems: count, DiskUsageBytes: diskBytes}, nil
}

func statusViaHTTP(ctx context.Context, serverURL string) (*statusResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint, err := url.JoinPath(serverURL, "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &status, nil
}
