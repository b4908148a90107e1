package storage

import (
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/mattn/go-sqlite3"

	"github.com/safefeat/safefeat/pkg/frame"
)

// identPattern restricts SQLite table names to plain identifiers so they
// can be quoted safely.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReadSQLiteTable loads one table from a SQLite database file.
func ReadSQLiteTable(path, tableName string) (*frame.Table, error) {
	if tableName == "" {
		return nil, fmt.Errorf("sqlite dataset %s requires a table name", path)
	}
	if !identPattern.MatchString(tableName) {
		return nil, fmt.Errorf("invalid sqlite table name %q", tableName)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf(`SELECT * FROM "%s"`, tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query table %q: %w", tableName, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %q: %w", tableName, err)
	}

	table := frame.New(columns...)
	values := make([]interface{}, len(columns))
	scanTargets := make([]interface{}, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %q: %w", tableName, err)
		}
		row := make([]interface{}, len(columns))
		for i, v := range values {
			// TEXT columns scan as []byte through the generic interface.
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		if err := table.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate table %q: %w", tableName, err)
	}
	return table, nil
}
