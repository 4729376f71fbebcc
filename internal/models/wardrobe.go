// Package models defines core data structures for queries, search results, and wardrobe items.
package models

import "time"

// WardrobeItem is a catalog product a user saved to their wardrobe.
type WardrobeItem struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	ProductPath string    `json:"product_path" db:"product_path"`
	ProductID   string    `json:"product_id" db:"product_id"`
	AddedAt     time.Time `json:"added_at" db:"added_at"`
}

// WardrobeInput is the input for saving a product to a wardrobe.
type WardrobeInput struct {
	UserID      string `json:"user_id"`
	ProductPath string `json:"product_path"`
}
