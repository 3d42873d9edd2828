package migrations

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

var routeColumns = []string{"host", "path", "method"}

// PrepareRouteColumns replaces NULL route columns on an existing error_aggregates
// table with empty strings so AutoMigrate can add the NOT NULL constraints and the
// unique (hash, host, path, method) index. Only postgres tables can carry such rows.
func PrepareRouteColumns(db *gorm.DB) error {
	if db == nil || db.Dialector.Name() != "postgres" {
		return nil
	}

	for _, column := range routeColumns {
		exists, err := columnExists(db, "error_aggregates", column)
		if err != nil {
			return fmt.Errorf("inspect error_aggregates.%s: %w", column, err)
		}
		if !exists {
			continue
		}

		if err := db.Exec(fmt.Sprintf("UPDATE error_aggregates SET %s = '' WHERE %s IS NULL", column, column)).Error; err != nil {
			return fmt.Errorf("backfill empty %s on error_aggregates: %w", column, err)
		}
	}

	return nil
}

func columnExists(db *gorm.DB, table, column string) (bool, error) {
	var dataType string
	row := db.Raw(
		`SELECT data_type FROM information_schema.columns WHERE table_name = ? AND column_name = ?`,
		table,
		column,
	).Row()

	if err := row.Scan(&dataType); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
