package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/models"
)

// ProcessQuery trims the query text and applies the configured result-count limits.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	query.Text = strings.TrimSpace(query.Text)
	defaultK, maxK := 12, 100
	if cfg != nil {
		defaultK, maxK = cfg.DefaultK, cfg.MaxK
	}
	if err := query.Validate(defaultK, maxK); err != nil {
		return fmt.Errorf("%w: %v", embedding.ErrInvalidInput, err)
	}
	return nil
}
