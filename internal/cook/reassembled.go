package cook

import (
	"encoding/json"

	"github.com/tracecook/tracecook/internal/normalize"
)

// ReassembledResponse is the capture-record response shape the proxy
// writes when configured to reassemble SSE eagerly (streaming.
// reassembleEagerly, internal/config) instead of deferring reassembly
// to this package. The Reassembled marker (rather than just unmarshal
// success) distinguishes it from an arbitrary provider-native response
// object that happens to also be a JSON object.
type ReassembledResponse struct {
	Reassembled bool                `json:"reassembled"`
	Messages    []normalize.Message `json:"messages"`
}

// EncodeReassembled marshals msgs into the wire shape RunRecords
// recognizes as an eagerly-reassembled response.
func EncodeReassembled(msgs []normalize.Message) ([]byte, error) {
	return json.Marshal(ReassembledResponse{Reassembled: true, Messages: msgs})
}

func decodeReassembled(body []byte) ([]normalize.Message, bool) {
	var rr ReassembledResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, false
	}
	if !rr.Reassembled {
		return nil, false
	}
	return rr.Messages, true
}
