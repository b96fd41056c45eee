package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tracecook/tracecook/internal/capture"
)

func newTestProxy(t *testing.T, target string, opts Options) (*Proxy, *capture.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	store, err := capture.Open(path)
	if err != nil {
		t.Fatalf("capture.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	opts.Target = target
	opts.Store = store
	counter := 0
	opts.IDGenerator = func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}
	return New(opts), store, path
}

func readRecords(t *testing.T, path string) []capture.Record {
	t.Helper()
	recs, err := capture.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return recs
}

func TestProxyForwardsWholeResponseAndCaptures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "hello" {
			t.Errorf("expected forwarded header, missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer upstream.Close()

	p, _, path := newTestProxy(t, upstream.URL, Options{})
	srv := httptest.NewServer(p)
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/v1/chat/completions", strings.NewReader(`{"model":"gpt-4","messages":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "hello")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	recs := readRecords(t, path)
	if len(recs) != 1 {
		t.Fatalf("expected 1 capture record, got %d", len(recs))
	}
	if recs[0].Response == nil {
		t.Fatal("expected a response to be captured")
	}
	var body map[string]any
	if err := json.Unmarshal(recs[0].Response.Body, &body); err != nil {
		t.Fatalf("response body not valid JSON: %v", err)
	}
}

func TestProxyStreamsSSEAndCapturesRawEvents(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"choices":[{"delta":{"content":"He"}}]}`)
		flusher.Flush()
		fmt.Fprintf(w, "data: %s\n\n", `{"choices":[{"delta":{"content":"llo"}}]}`)
		flusher.Flush()
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	p, _, path := newTestProxy(t, upstream.URL, Options{})
	srv := httptest.NewServer(p)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{"model":"gpt-4","stream":true}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	if !strings.Contains(string(body[:n]), "He") {
		t.Errorf("expected client to receive streamed bytes immediately, got %q", string(body[:n]))
	}

	recs := readRecords(t, path)
	if len(recs) != 1 {
		t.Fatalf("expected 1 capture record, got %d", len(recs))
	}
	if recs[0].Response == nil {
		t.Fatal("expected a response to be captured")
	}
	var events []map[string]string
	if err := json.Unmarshal(recs[0].Response.Body, &events); err != nil {
		t.Fatalf("expected raw SSE event array capture shape, got: %v (%s)", err, recs[0].Response.Body)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one captured SSE event")
	}
}

func TestProxyRecordsUpstreamConnectFailure(t *testing.T) {
	p, _, path := newTestProxy(t, "http://127.0.0.1:1", Options{})
	srv := httptest.NewServer(p)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}

	recs := readRecords(t, path)
	if len(recs) != 1 {
		t.Fatalf("expected 1 capture record even on connect failure, got %d", len(recs))
	}
	if recs[0].Response != nil {
		t.Error("expected nil response on connect failure")
	}
	if !strings.HasPrefix(recs[0].Error, "upstream_connect") {
		t.Errorf("expected upstream_connect error, got %q", recs[0].Error)
	}
}

func TestProxyLocalPathIsNotForwarded(t *testing.T) {
	upstreamHit := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHit = true
	}))
	defer upstream.Close()

	p, _, _ := newTestProxy(t, upstream.URL, Options{})
	srv := httptest.NewServer(p)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/_local?path=bundle.json")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 with no local handler configured, got %d", resp.StatusCode)
	}
	if upstreamHit {
		t.Error("expected /_local to never reach upstream")
	}
}

func TestProxyEagerReassemblyProducesReassembledShape(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"choices":[{"delta":{"content":"Hi"}}]}`)
		flusher.Flush()
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	p, _, path := newTestProxy(t, upstream.URL, Options{ReassembleEagerly: true})
	srv := httptest.NewServer(p)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{"model":"gpt-4","stream":true}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	recs := readRecords(t, path)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	var reassembled struct {
		Reassembled bool `json:"reassembled"`
	}
	if err := json.Unmarshal(recs[0].Response.Body, &reassembled); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reassembled.Reassembled {
		t.Error("expected the eager-reassembly wrapper shape")
	}
}

