package ingest

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/facet"
	_ "modernc.org/sqlite"
)

const snapshotSchema = `
CREATE TABLE meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE results (
	id TEXT PRIMARY KEY,
	record JSON NOT NULL
);

CREATE TABLE ordinals (
	ord INTEGER PRIMARY KEY,
	id TEXT NOT NULL
);

CREATE TABLE cross_refs (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	relationship TEXT NOT NULL,
	label TEXT,
	resolved INTEGER NOT NULL
);
CREATE INDEX idx_cross_refs_target ON cross_refs(target_id);

CREATE TABLE facet_buckets (
	facet TEXT NOT NULL,
	value TEXT NOT NULL,
	bitmap BLOB NOT NULL,
	PRIMARY KEY (facet, value)
) WITHOUT ROWID;
`

// WriteSnapshot writes gen to a fresh SQLite file at dbPath, replacing any
// existing file. Facet buckets are stored as serialized roaring bitmaps over
// the ordinals table.
func WriteSnapshot(dbPath string, gen *corpus.Generation) error {
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replace snapshot %s: %w", dbPath, err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	// Bulk load; the file is rebuilt from scratch on failure anyway.
	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // safe to ignore (no-op if committed)

	if err := writeMeta(tx, gen); err != nil {
		return err
	}
	if err := writeRecords(tx, gen); err != nil {
		return err
	}
	if err := writeCrossRefs(tx, gen); err != nil {
		return err
	}
	if err := writeFacets(tx, gen.Index); err != nil {
		return err
	}
	return tx.Commit()
}

func writeMeta(tx *sql.Tx, gen *corpus.Generation) error {
	meta := map[string]string{
		"generation_id":  gen.ID,
		"generation_seq": strconv.FormatUint(gen.Seq, 10),
		"loaded_at":      gen.LoadedAt.Format(time.RFC3339Nano),
		"records":        strconv.Itoa(gen.Store.Count()),
	}
	stmt, err := tx.Prepare("INSERT INTO meta (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare meta insert: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	for k, v := range meta {
		if _, err := stmt.Exec(k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	return nil
}

func writeRecords(tx *sql.Tx, gen *corpus.Generation) error {
	recStmt, err := tx.Prepare("INSERT INTO results (id, record) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare results insert: %w", err)
	}
	defer func() { _ = recStmt.Close() }() // safe to ignore

	ordStmt, err := tx.Prepare("INSERT INTO ordinals (ord, id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare ordinals insert: %w", err)
	}
	defer func() { _ = ordStmt.Close() }() // safe to ignore

	for rec := range gen.Store.All() {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		if _, err := recStmt.Exec(rec.ID, string(raw)); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
		ord, _ := gen.Store.Ordinal(rec.ID)
		if _, err := ordStmt.Exec(int64(ord), rec.ID); err != nil {
			return fmt.Errorf("insert ordinal %s: %w", rec.ID, err)
		}
	}
	return nil
}

func writeCrossRefs(tx *sql.Tx, gen *corpus.Generation) error {
	stmt, err := tx.Prepare("INSERT INTO cross_refs (source_id, target_id, relationship, label, resolved) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare cross_refs insert: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	for _, id := range gen.Store.IDs() {
		for _, e := range gen.Adjacency.Out(id) {
			if _, err := stmt.Exec(e.From, e.To, string(e.Relationship), e.Label, 1); err != nil {
				return fmt.Errorf("insert cross_ref %s->%s: %w", e.From, e.To, err)
			}
		}
	}
	for _, d := range gen.Resolution.Dangling {
		if _, err := stmt.Exec(d.SourceID, d.TargetID, string(d.Relationship), d.Label, 0); err != nil {
			return fmt.Errorf("insert cross_ref %s->%s: %w", d.SourceID, d.TargetID, err)
		}
	}
	return nil
}

func writeFacets(tx *sql.Tx, idx *facet.Index) error {
	stmt, err := tx.Prepare("INSERT INTO facet_buckets (facet, value, bitmap) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare facet_buckets insert: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	var buf bytes.Buffer
	return idx.Bitmaps(func(f facet.Facet, value string, bm *roaring.Bitmap) error {
		buf.Reset()
		if _, err := bm.WriteTo(&buf); err != nil {
			return fmt.Errorf("serialize bitmap for %s=%s: %w", f, value, err)
		}
		if _, err := stmt.Exec(string(f), value, buf.Bytes()); err != nil {
			return fmt.Errorf("insert bucket %s=%s: %w", f, value, err)
		}
		return nil
	})
}

// SnapshotBucket reads one facet bucket back from a snapshot, as ids in
// ascending order. A missing bucket yields no ids and no error.
func SnapshotBucket(dbPath string, f facet.Facet, value string) ([]string, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	var blob []byte
	err = db.QueryRow("SELECT bitmap FROM facet_buckets WHERE facet = ? AND value = ?", string(f), facet.Normalize(f, value)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query bucket: %w", err)
	}

	bm := roaring.New()
	if err := bm.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("unmarshal bitmap: %w", err)
	}

	stmt, err := db.Prepare("SELECT id FROM ordinals WHERE ord = ?")
	if err != nil {
		return nil, fmt.Errorf("prepare ordinal lookup: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	ids := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		var id string
		if err := stmt.QueryRow(int64(it.Next())).Scan(&id); err != nil {
			return nil, fmt.Errorf("resolve ordinal: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SnapshotMeta returns the meta table of a snapshot.
func SnapshotMeta(dbPath string) (map[string]string, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
