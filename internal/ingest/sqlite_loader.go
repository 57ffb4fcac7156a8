package ingest

import (
	"database/sql"
	"fmt"

	"github.com/agentic-research/medgraph/api"
	_ "modernc.org/sqlite"
)

// StreamSQLite reads the results(id, record) table of a SQLite database and
// calls fn for each row with the decoded record, or with the decode error for
// rows that are not a valid record. Only one record is decoded at a time.
// Snapshots written by WriteSnapshot use the same table, so they load back.
func StreamSQLite(dbPath string, fn func(id string, rec *api.ContentRecord, err error) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query("SELECT id, record FROM results ORDER BY id")
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		rec, decErr := decodeRecordJSON([]byte(raw))
		if err := fn(id, rec, decErr); err != nil {
			return err
		}
	}
	return rows.Err()
}
