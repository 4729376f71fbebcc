package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/katachi/internal/fileid"
	"github.com/hyperjump/katachi/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS wardrobe (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_path TEXT NOT NULL,
		product_id TEXT NOT NULL DEFAULT '',
		added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, product_path)
	);

	CREATE INDEX IF NOT EXISTS idx_wardrobe_user_added ON wardrobe(user_id, added_at);
	`
	_, err := db.Exec(schema)
	return err
}

func validateInput(input *models.WardrobeInput) error {
	input.UserID = strings.TrimSpace(input.UserID)
	input.ProductPath = strings.TrimSpace(input.ProductPath)
	if input.UserID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	if input.ProductPath == "" {
		return fmt.Errorf("product_path cannot be empty")
	}
	return nil
}

// AddItem inserts a wardrobe item, or returns the existing one for the same user and product.
func (s *SQLiteStorage) AddItem(ctx context.Context, input *models.WardrobeInput) (*models.WardrobeItem, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	item := &models.WardrobeItem{
		ID:          uuid.New().String(),
		UserID:      input.UserID,
		ProductPath: input.ProductPath,
		ProductID:   fileid.ProductID(input.ProductPath),
		AddedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wardrobe (id, user_id, product_path, product_id, added_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_path) DO NOTHING`,
		item.ID, item.UserID, item.ProductPath, item.ProductID, item.AddedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wardrobe item: %w", err)
	}
	return s.getItemBy(ctx, `user_id = ? AND product_path = ?`, item.UserID, item.ProductPath)
}

// GetItem returns a wardrobe item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (*models.WardrobeItem, error) {
	return s.getItemBy(ctx, `id = ?`, id)
}

func (s *SQLiteStorage) getItemBy(ctx context.Context, where string, args ...interface{}) (*models.WardrobeItem, error) {
	var item models.WardrobeItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, product_path, product_id, added_at FROM wardrobe WHERE `+where, args...,
	).Scan(&item.ID, &item.UserID, &item.ProductPath, &item.ProductID, &item.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wardrobe item %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns a user's items, newest first. limit <= 0 returns all items.
func (s *SQLiteStorage) ListItems(ctx context.Context, userID string, offset, limit int) ([]*models.WardrobeItem, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, product_path, product_id, added_at
		 FROM wardrobe WHERE user_id = ?
		 ORDER BY added_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`, userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*models.WardrobeItem, 0)
	for rows.Next() {
		var item models.WardrobeItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductPath, &item.ProductID, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// RemoveItem deletes a user's saved product.
func (s *SQLiteStorage) RemoveItem(ctx context.Context, userID, productPath string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM wardrobe WHERE user_id = ? AND product_path = ?`, userID, productPath)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteItem deletes a wardrobe item by ID.
func (s *SQLiteStorage) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wardrobe WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("wardrobe item %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountItems returns the number of items saved by userID, or by all users when userID is empty.
func (s *SQLiteStorage) CountItems(ctx context.Context, userID string) (int64, error) {
	var count int64
	var err error
	if userID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wardrobe`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wardrobe WHERE user_id = ?`, userID).Scan(&count)
	}
	return count, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
