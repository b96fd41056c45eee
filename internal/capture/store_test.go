package capture

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
)

func TestStoreAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec := Record{
		ID:        "r1",
		Timestamp: "2026-01-01T00:00:00.000Z",
		Request:   Message{URL: "/v1/chat/completions", Method: "POST"},
		DurationMs: 12,
	}
	if err := s.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID != "r1" {
		t.Errorf("ID: got %q, want %q", records[0].ID, "r1")
	}
}

func TestStoreAppendAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Append(Record{ID: "x"}); err == nil {
		t.Error("expected Append after Close to fail")
	}
}

// TestStoreSerializesConcurrentWriters exercises concurrent Append calls
// and checks that every line written is independently valid JSON — i.e.
// that writes never interleave mid-line.
func TestStoreSerializesConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(Record{ID: "concurrent", DurationMs: int64(i)})
		}(i)
	}
	wg.Wait()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != n {
		t.Fatalf("expected %d records, got %d", n, len(records))
	}
}

func TestEncodeDecodeRawBody(t *testing.T) {
	orig := []byte("not json at all \x00\x01")
	wrapped := EncodeRawBody(orig)

	// Must be valid JSON.
	var v map[string]any
	if err := json.Unmarshal(wrapped, &v); err != nil {
		t.Fatalf("EncodeRawBody produced invalid JSON: %v", err)
	}

	decoded, ok := DecodeRawBody(wrapped)
	if !ok {
		t.Fatal("DecodeRawBody: ok = false")
	}
	if string(decoded) != string(orig) {
		t.Errorf("roundtrip mismatch: got %q, want %q", decoded, orig)
	}
}

func TestDecodeRawBodyRejectsPlainJSON(t *testing.T) {
	_, ok := DecodeRawBody(json.RawMessage(`{"model":"gpt-4"}`))
	if ok {
		t.Error("expected ok=false for a plain JSON body")
	}
}

func TestIsJSONContentType(t *testing.T) {
	cases := map[string]bool{
		"application/json":                 true,
		"application/json; charset=utf-8":  true,
		"text/event-stream":                false,
		"application/octet-stream":         false,
		"":                                 false,
	}
	for in, want := range cases {
		if got := IsJSONContentType(in); got != want {
			t.Errorf("IsJSONContentType(%q) = %v, want %v", in, got, want)
		}
	}
}
