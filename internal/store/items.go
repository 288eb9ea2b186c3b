package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/feed"
	"github.com/erazemk/najdeno/internal/model"
)

// PageSize is the number of items returned per ListItems page.
const PageSize = 20

// dateLayout keeps stored item dates lexically sortable.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrItemNotFound is returned when an item does not exist or is deleted.
var ErrItemNotFound = errors.New("item not found")

// NewItem holds the fields needed to create an item.
type NewItem struct {
	Title          string
	Description    string
	Category       string
	Location       string
	Date           time.Time
	Status         string
	UserID         int64
	SubmitterName  string
	SubmitterEmail string
	IsAnonymous    bool
}

// ItemUpdate holds the user-editable fields of an item. An empty Status
// keeps the current one.
type ItemUpdate struct {
	Title       string
	Description string
	Category    string
	Location    string
	Date        time.Time
	Status      string
	IsAnonymous bool
}

// ListOptions narrows ListItems. Zero values are unconstrained.
type ListOptions struct {
	Status   string
	Category string
	UserID   int64 // posted by this account
	SortBy   string

	// Page is zero-based. A negative page disables pagination.
	Page int
}

const itemColumns = `id, title, description, category, location, date, status, user_id,
	submitter_name, submitter_email, is_anonymous, deleted, created_at, updated_at, deleted_at,
	(SELECT group_concat(im.id, ',' ORDER BY im.position) FROM item_images im WHERE im.item_id = items.id)`

// FormatDate renders an item date the way it is stored.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// CreateItem creates a new item and bumps the poster's items_posted counter.
func CreateItem(ctx context.Context, db *sql.DB, n NewItem) (*model.Item, error) {
	id := uuid.NewString()
	date := n.Date
	if date.IsZero() {
		date = time.Now()
	}

	var userID *int64
	if n.UserID != 0 {
		userID = &n.UserID
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO items (id, title, description, category, location, date, status, user_id,
		                    submitter_name, submitter_email, is_anonymous)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, n.Title, n.Description, n.Category, n.Location, FormatDate(date), n.Status, userID,
		nullString(n.SubmitterName), n.SubmitterEmail, n.IsAnonymous,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	if userID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET items_posted = items_posted + 1 WHERE id = ?`, *userID,
		); err != nil {
			return nil, fmt.Errorf("counting posted item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, including soft-deleted items.
func GetItem(ctx context.Context, db *sql.DB, id string) (*model.Item, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns non-deleted items matching opts, ordered by date.
func ListItems(ctx context.Context, db *sql.DB, opts ListOptions) ([]model.Item, error) {
	var where []string
	var args []any

	where = append(where, "deleted = 0")
	if opts.Status != "" && opts.Status != feed.StatusAll {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}

	order := "date DESC"
	if opts.SortBy == feed.SortOldest {
		order = "date ASC"
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + order + `, created_at, id`
	if opts.Page >= 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, PageSize, opts.Page*PageSize)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's editable fields and, when u.Status is set,
// its status in one transaction.
func UpdateItem(ctx context.Context, db *sql.DB, id string, u ItemUpdate) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET title = ?, description = ?, category = ?, location = ?, date = ?,
		                  is_anonymous = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted = 0`,
		u.Title, u.Description, u.Category, u.Location, FormatDate(u.Date), u.IsAnonymous, id,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if err := requireAffected(res, ErrItemNotFound); err != nil {
		return err
	}

	if u.Status != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ? WHERE id = ?`, u.Status, id,
		); err != nil {
			return fmt.Errorf("setting item status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item update: %w", err)
	}
	return nil
}

// DeleteItem soft-deletes an item.
func DeleteItem(ctx context.Context, db *sql.DB, id string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE items SET deleted = 1, deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted = 0`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return requireAffected(res, ErrItemNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var (
		date          string
		userID        sql.NullInt64
		submitterName sql.NullString
		imageIDs      sql.NullString
	)
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Category, &item.Location,
		&date, &item.Status, &userID, &submitterName, &item.SubmitterEmail, &item.IsAnonymous,
		&item.Deleted, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt, &imageIDs)
	if err != nil {
		return nil, err
	}

	item.Date, err = feed.ParseDate(item.ID, date)
	if err != nil {
		return nil, err
	}
	item.UserID = userID.Int64
	item.SubmitterName = submitterName.String
	item.Images = []string{}
	if imageIDs.String != "" {
		for _, imgID := range strings.Split(imageIDs.String, ",") {
			item.Images = append(item.Images, ImageURL(imgID))
		}
	}
	return item, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
