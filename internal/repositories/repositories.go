// package repositories provides persistence layer implementations over the
// SQLite store.
//
// Each repository wraps an explicit *sql.DB handle scoped to the run; there
// is no ambient connection. PlayRepository owns the listening history,
// StagingRepository the fetched catalog rows and the resume checkpoint, and
// MappingRepository the reconciliation output tables.
package repositories

import (
	"database/sql"
	"fmt"
)

// replaceAll deletes every row of table and re-inserts via insert inside one
// transaction, so readers never observe a partially rebuilt table.
func replaceAll(db *sql.DB, table string, insert func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	if err := insert(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s rebuild: %w", table, err)
	}
	return nil
}
