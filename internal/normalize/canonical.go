package normalize

import (
	"encoding/json"
	"sort"
)

// canonicalValue deep-copies v, sorting map keys is implicit in
// encoding/json (Go already marshals map[string]any keys in sorted
// order), but nested arguments/parameters maps may contain values in
// whatever order a provider's JSON happened to list them — since Go maps
// have no intrinsic order that doesn't matter for marshaling, only for
// equality of semantically-identical-but-differently-ordered inputs,
// which map marshaling already normalizes. What canonicalValue actually
// needs to fix is float/int ambiguity from round-tripping through
// json.RawMessage during adapter decoding: re-marshal through
// interface{} so "1" and "1.0" converge.
func canonicalValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalValue(val)
		}
		return out
	default:
		return t
	}
}

// CanonicalToolCallArgs returns a deterministic JSON encoding of args
// suitable for content hashing: keys sorted (encoding/json does this for
// map[string]any automatically), values normalized recursively.
func CanonicalToolCallArgs(args map[string]any) []byte {
	if len(args) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(canonicalValue(args))
	if err != nil {
		// Arguments originate from successfully-unmarshaled JSON; a
		// re-marshal of the same shape cannot fail.
		panic("normalize: re-marshaling canonical arguments: " + err.Error())
	}
	return b
}

// MessageCanonicalFields returns the ordered tuple of fields that
// determine a Message's identity, for internal/dedup to hash. Two
// messages with the same tuple are the same message and must intern to
// the same id.
func MessageCanonicalFields(m Message) []string {
	fields := []string{string(m.Role), m.Content, m.ToolUseID, boolField(m.IsError)}
	calls := append([]ToolCall(nil), m.ToolCalls...)
	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].Name != calls[j].Name {
			return calls[i].Name < calls[j].Name
		}
		return string(CanonicalToolCallArgs(calls[i].Arguments)) < string(CanonicalToolCallArgs(calls[j].Arguments))
	})
	for _, c := range calls {
		fields = append(fields, c.Name, string(CanonicalToolCallArgs(c.Arguments)))
	}
	return fields
}

// ToolCanonicalFields returns the ordered tuple of fields that determine
// a Tool's identity.
func ToolCanonicalFields(t Tool) []string {
	params := "{}"
	if len(t.Parameters) > 0 {
		b, err := json.Marshal(canonicalValue(t.Parameters))
		if err != nil {
			panic("normalize: re-marshaling canonical parameters: " + err.Error())
		}
		params = string(b)
	}
	return []string{t.Name, t.Description, params, boolField(t.IsServerSide)}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
