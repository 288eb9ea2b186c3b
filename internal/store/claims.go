package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
)

// ErrAlreadyClaimed is returned when claiming an item that is already claimed.
var ErrAlreadyClaimed = errors.New("item already claimed")

// NewClaim holds the fields needed to record a claim.
type NewClaim struct {
	ItemID        string
	ClaimantName  string
	ClaimantEmail string
	Notes         string
	RecordedBy    *int64
}

// CreateClaim records a claim and marks the item claimed in a single transaction.
func CreateClaim(ctx context.Context, db *sql.DB, c NewClaim) (*model.Claim, error) {
	if c.ClaimantName == "" {
		return nil, fmt.Errorf("claimant name required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	var deleted bool
	err = tx.QueryRowContext(ctx,
		`SELECT status, deleted FROM items WHERE id = ?`, c.ItemID,
	).Scan(&status, &deleted)
	if err == sql.ErrNoRows || (err == nil && deleted) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking item: %w", err)
	}
	if status == model.ItemStatusClaimed {
		return nil, ErrAlreadyClaimed
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.ItemStatusClaimed, c.ItemID,
	); err != nil {
		return nil, fmt.Errorf("marking item claimed: %w", err)
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO claims (id, item_id, claimant_name, claimant_email, notes, recorded_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, c.ItemID, c.ClaimantName, nullString(c.ClaimantEmail), nullString(c.Notes), c.RecordedBy,
	); err != nil {
		return nil, fmt.Errorf("recording claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	claims, err := queryClaims(ctx, db, `WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, fmt.Errorf("claim %s vanished after commit", id)
	}
	return &claims[0], nil
}

// ListClaims returns all claims, newest first.
func ListClaims(ctx context.Context, db *sql.DB) ([]model.Claim, error) {
	return queryClaims(ctx, db, ``)
}

// GetItemClaims returns the claim history of an item, newest first.
func GetItemClaims(ctx context.Context, db *sql.DB, itemID string) ([]model.Claim, error) {
	return queryClaims(ctx, db, `WHERE c.item_id = ?`, itemID)
}

func queryClaims(ctx context.Context, db *sql.DB, where string, args ...any) ([]model.Claim, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT c.id, c.item_id, c.claimant_name, c.claimant_email, c.notes, c.claimed_at,
		        c.recorded_by, i.title, u.name
		 FROM claims c
		 JOIN items i ON i.id = c.item_id
		 LEFT JOIN users u ON u.id = c.recorded_by
		 `+where+`
		 ORDER BY c.claimed_at DESC, c.rowid DESC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	defer rows.Close()

	var claims []model.Claim
	for rows.Next() {
		var c model.Claim
		var email, notes, recorderName sql.NullString
		if err := rows.Scan(&c.ID, &c.ItemID, &c.ClaimantName, &email, &notes, &c.ClaimedAt,
			&c.RecordedBy, &c.ItemTitle, &recorderName); err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		c.ClaimantEmail = email.String
		c.Notes = notes.String
		c.RecordedByName = recorderName.String
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
