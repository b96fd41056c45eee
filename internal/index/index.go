// Package index provides an optional SQLite projection of a cooked
// normalize.Bundle, for `tracecook query`. The bundle's JSON document
// remains the source of truth — the index can always be rebuilt from
// it and carries no information the bundle doesn't already have.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/tracecook/tracecook/internal/normalize"
)

// Index is a queryable SQLite projection of a bundle's requests.
type Index struct {
	db *sql.DB
}

// Row is one projected request: request_id, parent_id, timestamp,
// model, tool_count.
type Row struct {
	RequestID string
	ParentID  string
	Timestamp string
	Model     string
	ToolCount int
}

// Open creates (or reopens) the SQLite index at path and ensures its
// schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			request_id TEXT PRIMARY KEY,
			parent_id  TEXT NOT NULL DEFAULT '',
			ts         TEXT NOT NULL,
			model      TEXT NOT NULL DEFAULT '',
			tool_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_parent ON requests(parent_id);
		CREATE INDEX IF NOT EXISTS idx_model ON requests(model);
		CREATE INDEX IF NOT EXISTS idx_ts ON requests(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Build truncates the index and re-inserts every request in bundle.
// Rebuilding wholesale (rather than incrementally) keeps the index
// trivially consistent with the bundle it was built from.
func (idx *Index) Build(bundle normalize.Bundle) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning index rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM requests"); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO requests (request_id, parent_id, ts, model, tool_count)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, req := range bundle.Requests {
		parentID := ""
		if req.ParentID != nil {
			parentID = *req.ParentID
		}
		if _, err := stmt.Exec(req.ID, parentID, req.Timestamp, req.Model, len(req.Tools)); err != nil {
			return fmt.Errorf("inserting request %s: %w", req.ID, err)
		}
	}

	return tx.Commit()
}

// QueryParams filters a Query call. Zero values mean "no filter" for
// Model and Since; Limit <= 0 means unbounded.
type QueryParams struct {
	Model string
	Since string // RFC3339Nano lower bound, inclusive
	Limit int
}

// Query returns matching rows, most recent first.
func (idx *Index) Query(params QueryParams) ([]Row, error) {
	query := "SELECT request_id, parent_id, ts, model, tool_count FROM requests WHERE 1=1"
	var args []any

	if params.Model != "" {
		query += " AND model = ?"
		args = append(args, params.Model)
	}
	if params.Since != "" {
		query += " AND ts >= ?"
		args = append(args, params.Since)
	}
	query += " ORDER BY ts DESC"
	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RequestID, &r.ParentID, &r.Timestamp, &r.Model, &r.ToolCount); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}
