// Package cook drives the offline trace pipeline end to end: read raw
// capture records, route each to its provider adapter, intern the
// resulting messages and tools, assemble a normalized Request per
// record, and link the Request set into a dependency forest.
//
// Per spec.md §9's re-architecture note, this is a straight-line
// function over an iterator of raw records, not the ad-hoc sequencing
// the teacher's runStart() uses for its own startup pipeline — each
// stage (adapter, intern, analyze) is a pure function over its inputs,
// called once each by Run.
package cook

import (
	"encoding/json"
	"fmt"

	"github.com/tracecook/tracecook/internal/adapter"
	"github.com/tracecook/tracecook/internal/capture"
	"github.com/tracecook/tracecook/internal/depgraph"
	"github.com/tracecook/tracecook/internal/dedup"
	"github.com/tracecook/tracecook/internal/normalize"
)

// Skip records one raw record that could not be cooked, and why. The
// cook pass never aborts on these — it logs and continues, per spec.md
// §7's propagation policy for unsupported_format/malformed_record.
type Skip struct {
	RecordID string
	Reason   string
}

// Options configures a cook run.
type Options struct {
	// Format forces adapter selection instead of sniffing each record's
	// URL/body (the CLI's --format openai|claude|gemini flag).
	Format adapter.Format
	// DepgraphOpt tunes dependency linking; the zero value means
	// depgraph.DefaultOptions().
	DepgraphOpt depgraph.Options
}

// Run cooks every record from path into a Bundle, reporting skipped
// records via onSkip (nil is fine — skips are simply dropped). The
// reader is the tolerant one (capture.ReadAllTolerant): a capture file
// may still be actively appended to by a live proxy.
func Run(path string, opts Options, onSkip func(Skip)) (normalize.Bundle, error) {
	records, err := capture.ReadAllTolerant(path)
	if err != nil {
		return normalize.Bundle{}, fmt.Errorf("reading capture log: %w", err)
	}
	return RunRecords(records, opts, onSkip)
}

// RunRecords is Run's testable core: it operates on an already-decoded
// record slice instead of a file path.
func RunRecords(records []capture.Record, opts Options, onSkip func(Skip)) (normalize.Bundle, error) {
	skip := func(s Skip) {
		if onSkip != nil {
			onSkip(s)
		}
	}

	interner := dedup.New()
	var requests []normalize.Request

	for _, rec := range records {
		if rec.Error != "" && rec.ID == "" {
			skip(Skip{RecordID: rec.ID, Reason: rec.Error})
			continue
		}

		req, ok := cookOne(rec, interner, opts.Format, skip)
		if !ok {
			continue
		}
		requests = append(requests, req)
	}

	depOpts := opts.DepgraphOpt
	if depOpts == (depgraph.Options{}) {
		depOpts = depgraph.DefaultOptions()
	}
	linked := depgraph.Link(requests, depOpts)

	return normalize.Bundle{
		Messages: interner.Messages(),
		Tools:    interner.Tools(),
		Requests: linked,
	}, nil
}

func cookOne(rec capture.Record, interner *dedup.Interner, forced adapter.Format, skip func(Skip)) (normalize.Request, bool) {
	format := forced
	if format == "" {
		format = adapter.Detect(rec.Request.URL, decodedBody(rec.Request.Body))
	}
	ad, ok := adapter.For(format)
	if !ok {
		skip(Skip{RecordID: rec.ID, Reason: "unsupported_format"})
		return normalize.Request{}, false
	}

	info, err := ad.ExtractRequest(decodedBody(rec.Request.Body))
	if err != nil {
		skip(Skip{RecordID: rec.ID, Reason: "malformed_record: " + err.Error()})
		return normalize.Request{}, false
	}

	req := normalize.Request{
		ID:        rec.ID,
		Timestamp: rec.Timestamp,
		Model:     info.Model,
	}
	for _, m := range info.Messages {
		req.RequestMessages = append(req.RequestMessages, interner.InternMessage(m))
	}
	for _, tl := range info.Tools {
		req.Tools = append(req.Tools, interner.InternTool(tl))
	}
	req.DurationMs = rec.DurationMs

	if rec.Response != nil {
		respMsgs, err := extractResponseMessages(ad, format, rec)
		if err != nil {
			skip(Skip{RecordID: rec.ID, Reason: "malformed_record: " + err.Error()})
			return normalize.Request{}, false
		}
		for _, m := range respMsgs {
			req.ResponseMessages = append(req.ResponseMessages, interner.InternMessage(m))
		}
	}

	return req, true
}

// extractResponseMessages handles both response shapes a capture record
// may carry, per spec.md §9(b): an already-reassembled JSON object (the
// proxy reassembled eagerly) or a raw array of SSE events (the proxy
// deferred reassembly to cook).
func extractResponseMessages(ad adapter.Adapter, format adapter.Format, rec capture.Record) ([]normalize.Message, error) {
	body := decodedBody(rec.Response.Body)
	if len(body) == 0 {
		return nil, nil
	}

	if events, ok := decodeSSEEvents(body); ok {
		return ad.ReassembleStream(events)
	}
	if msgs, ok := decodeReassembled(body); ok {
		return msgs, nil
	}
	return ad.ExtractResponse(body)
}

func decodedBody(body []byte) []byte {
	if data, ok := capture.DecodeRawBody(body); ok {
		return data
	}
	return body
}

// decodeSSEEvents recognizes the raw-events response shape: a JSON array
// of {"event":"...","data":"..."} objects, as opposed to a single
// reassembled response object. A JSON object body fails to unmarshal
// into a slice, which is exactly the discriminator we need.
func decodeSSEEvents(body []byte) ([]adapter.SSEEvent, bool) {
	var events []adapter.SSEEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, false
	}
	if len(events) == 0 {
		return nil, false
	}
	return events, true
}
