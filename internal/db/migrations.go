package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: claim lookups by item.
	`CREATE INDEX IF NOT EXISTS idx_claims_item ON claims(item_id, claimed_at)`,
	// Migration 2: listing a user's own postings.
	`CREATE INDEX IF NOT EXISTS idx_items_user ON items(user_id, date)`,
}

// Migrate ensures the schema and runs the database migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
