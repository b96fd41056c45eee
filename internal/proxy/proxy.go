// Package proxy implements the transparent streaming HTTP proxy that
// sits between a client and an upstream LLM API, per spec.md §4.2.
//
// Unlike the teacher's own Buffer-Then-Forward proxy (which held a
// full response in memory to inspect and potentially rewrite it before
// ever sending a byte to the client), tracecook never modifies a body
// in flight and must not add buffering latency: response bytes are
// teed to the client and to an in-memory capture buffer at the same
// time, and the capture-side reassembly happens only after the client
// stream has closed. Non-goals (spec.md §1) rule out the teacher's
// tool-call inspection and response rewriting entirely — what's kept
// here is its header-copying discipline (forwarder.go) and its
// ServeHTTP-drives-one-exchange shape, generalized from "inspect and
// maybe rewrite" to "forward and separately capture".
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tracecook/tracecook/internal/adapter"
	"github.com/tracecook/tracecook/internal/capture"
)

const maxRequestBody = 10 * 1024 * 1024

// Options holds the dependencies injected into the proxy at creation.
type Options struct {
	Target            string // upstream base URL: scheme+host[+base path]
	Store             *capture.Store
	Client            *http.Client // defaults to http.DefaultClient if nil
	FormatRules       FormatRules
	BufferTimeoutMs   int // per-exchange upstream timeout; 0 disables it
	ReassembleEagerly bool

	// LocalHandler, if set, serves the reserved /_local path instead of
	// proxying it upstream (spec.md §4.2: "the only non-proxied path").
	// Nil means /_local requests simply aren't forwarded — they 404.
	LocalHandler http.Handler

	// IDGenerator produces a capture record id. Defaults to uuid.NewString.
	IDGenerator func() string
}

// Proxy is the HTTP handler that forwards every request to Target and
// emits exactly one capture record per completed exchange.
type Proxy struct {
	target            string
	store             *capture.Store
	client            *http.Client
	formatRules       FormatRules
	bufferTimeout     time.Duration
	reassembleEagerly bool
	localHandler      http.Handler
	nextID            func() string
}

// New creates a Proxy from opts.
func New(opts Options) *Proxy {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	nextID := opts.IDGenerator
	if nextID == nil {
		nextID = defaultIDGenerator()
	}
	return &Proxy{
		target:            strings.TrimSuffix(opts.Target, "/"),
		store:             opts.Store,
		client:            client,
		formatRules:       opts.FormatRules,
		bufferTimeout:     time.Duration(opts.BufferTimeoutMs) * time.Millisecond,
		reassembleEagerly: opts.ReassembleEagerly,
		localHandler:      opts.LocalHandler,
		nextID:            nextID,
	}
}

func defaultIDGenerator() func() string {
	return func() string {
		return uuid.NewString()
	}
}

// ServeHTTP forwards r to the configured upstream target and appends
// one capture record once the exchange completes.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/_local") {
		if p.localHandler != nil {
			p.localHandler.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	start := time.Now()
	id := p.nextID()

	reqBody, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		slog.Error("reading client request body", "error", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	upstreamURL := p.target + r.URL.RequestURI()

	ctx := r.Context()
	var cancel context.CancelFunc
	if p.bufferTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.bufferTimeout)
		defer cancel()
	}
	upstreamReq := r.WithContext(ctx)

	resp, err := forwardRequest(p.client, upstreamURL, upstreamReq, reqBody)
	if err != nil {
		slog.Error("upstream request failed", "upstream", upstreamURL, "error", err)
		p.writeFailedRecord(id, start, r, reqBody, string(ErrUpstreamConnect)+": "+err.Error())
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if isEventStream(resp.Header.Get("Content-Type")) {
		p.handleStreaming(w, r, resp, id, start, reqBody)
	} else {
		p.handleWhole(w, r, resp, id, start, reqBody)
	}
}

func isEventStream(contentType string) bool {
	return strings.Contains(contentType, "text/event-stream")
}

// handleWhole implements spec.md §4.2's whole-response path: read the
// full upstream body, forward it verbatim, then capture it.
func (p *Proxy) handleWhole(w http.ResponseWriter, r *http.Request, resp *http.Response, id string, start time.Time, reqBody []byte) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("reading upstream response", "error", err)
		p.writeFailedRecord(id, start, r, reqBody, string(ErrUpstreamConnect)+": "+err.Error())
		http.Error(w, "failed to read upstream response", http.StatusBadGateway)
		return
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)

	respMsg := capture.Message{
		Status:  resp.StatusCode,
		Headers: redactHeaders(resp.Header),
		Body:    encodeBody(resp.Header.Get("Content-Type"), body),
	}
	p.appendRecord(id, start, r, reqBody, &respMsg, "")
}

// handleStreaming implements spec.md §4.2's streaming path: tee each
// chunk to the client (flushed immediately, never held back for
// completeness) and to an in-memory capture buffer, then reassemble
// only after the stream closes.
func (p *Proxy) handleStreaming(w http.ResponseWriter, r *http.Request, resp *http.Response, id string, start time.Time, reqBody []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("ResponseWriter does not support flushing; cannot stream")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)

	var captured bytes.Buffer
	mw := io.MultiWriter(flushWriter{w, flusher}, &captured)

	_, copyErr := io.Copy(mw, resp.Body)

	errKind := ""
	switch {
	case copyErr != nil && r.Context().Err() == context.Canceled:
		errKind = string(ErrClientCancelled)
	case copyErr != nil && errors.Is(copyErr, context.DeadlineExceeded):
		errKind = string(ErrUpstreamTruncated)
	case copyErr != nil:
		errKind = string(ErrUpstreamTruncated) + ": " + copyErr.Error()
	}

	respBody, reassembleErr := p.captureStreamBody(r, captured.Bytes())
	if reassembleErr != nil && errKind == "" {
		errKind = string(ErrCaptureIO) + ": " + reassembleErr.Error()
	}

	respMsg := capture.Message{
		Status:  resp.StatusCode,
		Headers: redactHeaders(resp.Header),
		Body:    respBody,
	}
	p.appendRecord(id, start, r, reqBody, &respMsg, errKind)
}

// captureStreamBody decides, per the configured reassembly mode, what
// bytes to store for a streamed response: the raw SSE event list
// (default, deferred reassembly) or an eagerly-reassembled message set.
func (p *Proxy) captureStreamBody(r *http.Request, raw []byte) ([]byte, error) {
	events, err := adapter.ParseSSEStream(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	if !p.reassembleEagerly {
		return encodeSSEEvents(events)
	}

	format, forced := p.formatRules.Match(r.URL.Path)
	if !forced {
		format = adapter.Detect(r.URL.Path, nil)
	}
	ad, ok := adapter.For(format)
	if !ok {
		// Unknown format: fall back to the raw event list rather than
		// dropping the capture entirely.
		return encodeSSEEvents(events)
	}

	msgs, err := ad.ReassembleStream(events)
	if err != nil {
		return encodeSSEEvents(events)
	}
	return encodeReassembledMessages(msgs)
}

func (p *Proxy) writeFailedRecord(id string, start time.Time, r *http.Request, reqBody []byte, errKind string) {
	p.appendRecord(id, start, r, reqBody, nil, errKind)
}

func (p *Proxy) appendRecord(id string, start time.Time, r *http.Request, reqBody []byte, respMsg *capture.Message, errKind string) {
	rec := capture.Record{
		ID:        id,
		Timestamp: start.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Request: capture.Message{
			URL:     r.URL.RequestURI(),
			Method:  r.Method,
			Headers: redactHeaders(r.Header),
			Body:    encodeBody(r.Header.Get("Content-Type"), reqBody),
		},
		Response:   respMsg,
		DurationMs: time.Since(start).Milliseconds(),
		Error:      errKind,
	}

	if p.store == nil {
		return
	}
	if err := p.store.Append(rec); err != nil {
		slog.Error("appending capture record", "id", id, "error", err)
	}
}

// captureRedactedHeaders names the headers spec.md §3 requires a capture
// record to omit beyond forwarder.go's hopByHopHeaders: Content-Length and
// Host are perfectly valid end-to-end headers to forward (so they stay out
// of hopByHopHeaders, which forwardRequest/copyResponseHeaders also use),
// but spec.md §3/§4.2 singles them out as redacted from what gets stored.
var captureRedactedHeaders = map[string]bool{
	"Host":           true,
	"Content-Length": true,
}

func redactHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		if hopByHopHeaders[k] || captureRedactedHeaders[k] {
			continue
		}
		out[k] = v
	}
	return out
}

func encodeBody(contentType string, body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	if capture.IsJSONContentType(contentType) {
		return body
	}
	return capture.EncodeRawBody(body)
}

// flushWriter flushes the underlying http.ResponseWriter after every
// Write so each chunk reaches the client as soon as it's copied —
// spec.md §4.2's "first byte MUST NOT wait for stream completion".
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err != nil {
		return n, err
	}
	fw.f.Flush()
	return n, nil
}
