package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrTooManyImages is returned when an item already holds the maximum number of images.
var ErrTooManyImages = errors.New("too many images for item")

// ImageURL returns the public URL of a stored image.
func ImageURL(id string) string {
	return "/api/images/" + id
}

// AddItemImage appends an image to an item and returns the new image ID.
// maxImages <= 0 means unlimited.
func AddItemImage(ctx context.Context, db *sql.DB, itemID string, data []byte, mime string, maxImages int) (string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var deleted bool
	err = tx.QueryRowContext(ctx, `SELECT deleted FROM items WHERE id = ?`, itemID).Scan(&deleted)
	if err == sql.ErrNoRows || deleted {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("checking item: %w", err)
	}

	var count, next int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(position) + 1, 0) FROM item_images WHERE item_id = ?`, itemID,
	).Scan(&count, &next)
	if err != nil {
		return "", fmt.Errorf("counting item images: %w", err)
	}
	if maxImages > 0 && count >= maxImages {
		return "", ErrTooManyImages
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO item_images (id, item_id, position, data, mime) VALUES (?, ?, ?, ?, ?)`,
		id, itemID, next, data, mime,
	); err != nil {
		return "", fmt.Errorf("storing item image: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, itemID,
	); err != nil {
		return "", fmt.Errorf("touching item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing image: %w", err)
	}
	return id, nil
}

// GetImage returns image data and MIME type. Images of deleted items are not served.
func GetImage(ctx context.Context, db *sql.DB, id string) ([]byte, string, error) {
	var data []byte
	var mime string
	err := db.QueryRowContext(ctx,
		`SELECT im.data, im.mime FROM item_images im
		 JOIN items i ON i.id = im.item_id
		 WHERE im.id = ? AND i.deleted = 0`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}
	return data, mime, nil
}

// DeleteItemImages removes all images of an item.
func DeleteItemImages(ctx context.Context, db *sql.DB, itemID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM item_images WHERE item_id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("deleting item images: %w", err)
	}
	return nil
}
