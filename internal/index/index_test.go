package index

import (
	"path/filepath"
	"testing"

	"github.com/tracecook/tracecook/internal/normalize"
)

func strPtr(s string) *string { return &s }

func testBundle() normalize.Bundle {
	return normalize.Bundle{
		Requests: []normalize.Request{
			{ID: "r1", ParentID: nil, Timestamp: "2026-01-01T00:00:00.000Z", Model: "gpt-4", Tools: []string{"t1"}},
			{ID: "r2", ParentID: strPtr("r1"), Timestamp: "2026-01-01T00:01:00.000Z", Model: "gpt-4"},
			{ID: "r3", ParentID: strPtr("r1"), Timestamp: "2026-01-01T00:02:00.000Z", Model: "claude-3"},
		},
	}
}

func TestBuildAndQueryAll(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.Build(testBundle()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	rows, err := idx.Query(QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// most recent first
	if rows[0].RequestID != "r3" {
		t.Errorf("expected r3 first, got %s", rows[0].RequestID)
	}
}

func TestQueryFiltersByModel(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()
	idx.Build(testBundle())

	rows, err := idx.Query(QueryParams{Model: "claude-3"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || rows[0].RequestID != "r3" {
		t.Fatalf("expected only r3, got %+v", rows)
	}
}

func TestQueryFiltersBySince(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()
	idx.Build(testBundle())

	rows, err := idx.Query(QueryParams{Since: "2026-01-01T00:01:00.000Z"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestQueryRespectsLimit(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()
	idx.Build(testBundle())

	rows, err := idx.Query(QueryParams{Limit: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestBuildIsIdempotentOnRebuild(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.Build(testBundle()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := idx.Build(testBundle()); err != nil {
		t.Fatalf("second Build: %v", err)
	}

	rows, err := idx.Query(QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected rebuild to replace rather than duplicate rows, got %d", len(rows))
	}
}
