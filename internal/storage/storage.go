// Package storage persists user wardrobes and reports disk usage of the stored index.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/katachi/internal/models"
)

// ErrNotFound is returned when a wardrobe item does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines wardrobe persistence operations.
type Storage interface {
	// AddItem saves a product to a user's wardrobe. Saving the same product twice returns the existing item.
	AddItem(ctx context.Context, input *models.WardrobeInput) (*models.WardrobeItem, error)
	GetItem(ctx context.Context, id string) (*models.WardrobeItem, error)
	// ListItems returns a user's items, most recently added first.
	ListItems(ctx context.Context, userID string, offset, limit int) ([]*models.WardrobeItem, error)
	// RemoveItem deletes a product from a user's wardrobe and returns how many rows were removed.
	RemoveItem(ctx context.Context, userID, productPath string) (int64, error)
	DeleteItem(ctx context.Context, id string) error

	// Stats
	CountItems(ctx context.Context, userID string) (int64, error)

	Close() error
}
