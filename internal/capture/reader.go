package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadAll reads every record from the capture log at path. It is the
// strict reader: any line that is not a valid record, including a
// partially written last line, stops the read with an error (the records
// before it are returned alongside). ReadAllTolerant is the variant that
// drops an unterminated last line. A missing file yields no records and
// no error.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening capture log %s: %w", path, err)
	}
	defer f.Close()

	return readRecords(f)
}

func readRecords(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	// Reassembled SSE bodies can be large (long conversations, thinking
	// blocks) — allow generous lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var records []Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// bufio.Scanner returns an unterminated last line as a token
			// too, so a partial write cannot be told apart from a
			// malformed line here; both are returned as an error. See
			// ReadAllTolerant for the variant used by `cook`.
			return records, fmt.Errorf("parsing capture record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("reading capture log: %w", err)
	}
	return records, nil
}

// ReadAllTolerant behaves like ReadAll but treats an unterminated final
// line as a truncated in-progress write rather than a hard error: it is
// silently dropped. A complete line that fails to parse does not abort
// the read either; it becomes a sentinel Record (empty ID, Error
// "malformed_record: ...") that cook skips. This is what `cook` uses,
// since a capture file being read may still be actively appended to by a
// live proxy.
func ReadAllTolerant(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading capture log %s: %w", path, err)
	}

	// Only a line terminated by '\n' is guaranteed to have been written in
	// full by Store.Append (Append writes the marshaled record and the
	// newline in a single Write call, but a reader can still observe a
	// short read on some filesystems/interrupts). Trim any unterminated
	// tail before splitting.
	if n := strings.LastIndexByte(string(data), '\n'); n >= 0 {
		data = data[:n+1]
	} else {
		data = nil
	}

	var records []Record
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Every line here was newline-terminated, so this is real
			// corruption rather than a partial write; cook's
			// malformed_record skip path should see it, not a silently
			// vanished line. We can't recover the original record.ID
			// here, so we return a sentinel the cooker recognizes.
			records = append(records, Record{ID: "", Error: "malformed_record: " + err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
