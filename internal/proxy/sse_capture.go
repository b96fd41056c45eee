package proxy

import (
	"encoding/json"

	"github.com/tracecook/tracecook/internal/adapter"
	"github.com/tracecook/tracecook/internal/cook"
	"github.com/tracecook/tracecook/internal/normalize"
)

// encodeSSEEvents is the deferred-reassembly capture shape: the raw
// ordered SSE event list, left for the cook pipeline to reassemble.
func encodeSSEEvents(events []adapter.SSEEvent) ([]byte, error) {
	return json.Marshal(events)
}

// encodeReassembledMessages is the eager-reassembly capture shape.
func encodeReassembledMessages(msgs []normalize.Message) ([]byte, error) {
	return cook.EncodeReassembled(msgs)
}
