package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// columnDefaults fills NOT NULL JSON columns that a JSONL line omitted
// (empty maps are dropped by omitempty).
var columnDefaults = map[string]any{
	"payload": "{}",
	"fields":  "{}",
}

// loadAllJSONL reads each JSONL file from dataDir and inserts its records
// into the matching table in one transaction. Malformed lines and lines that
// violate a constraint are skipped; unknown keys are ignored.
func loadAllJSONL(ctx context.Context, db *sql.DB, dataDir string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range jsonlTableMapping {
		records, err := readJSONL(filepath.Join(dataDir, m.file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.file, err)
		}
		if len(records) == 0 {
			continue
		}
		if err := insertRecords(ctx, tx, m.table, m.columns, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", m.file, m.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertRecords inserts parsed JSONL records into table. Object and array
// values are re-serialized as JSON text for the TEXT columns that hold them.
func insertRecords(ctx context.Context, tx *sql.Tx, table string, columns []string, records []json.RawMessage) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}

		args := make([]any, len(columns))
		for i, col := range columns {
			val, ok := obj[col]
			if !ok || val == nil {
				args[i] = columnDefaults[col]
				continue
			}
			switch v := val.(type) {
			case map[string]any, []any:
				b, err := json.Marshal(v)
				if err != nil {
					continue
				}
				args[i] = string(b)
			default:
				args[i] = val
			}
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			continue
		}
	}
	return nil
}
