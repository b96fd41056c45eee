package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Store is the append-only capture log sink. It is the only writer of its
// underlying file for the lifetime of a proxy run; concurrent callers of
// Append are serialized on a single mutex so writes never interleave.
//
// Construction is explicit (Open at proxy startup, Close at shutdown) and
// the Store is passed to the proxy handler by parameter — there is no
// process-wide singleton, matching the teacher's audit.AuditLog shape but
// without its hash chain or SQLite projection, neither of which spec.md's
// capture record schema has room for.
type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates or appends to the capture log at path. The containing
// directory must already exist; Open does not create it.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening capture log %s: %w", path, err)
	}
	return &Store{path: path, file: f}, nil
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Append serializes record as one JSON line and appends it to the log.
// Writers are serialized by the mutex, one write at a time; sync.Mutex
// does not guarantee that waiting writers acquire it in arrival order. A
// write that fails is surfaced to the caller and never silently dropped.
func (s *Store) Append(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling capture record %s: %w", record.ID, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("capture store %s is closed", s.path)
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("writing capture record %s: %w", record.ID, err)
	}
	return nil
}
