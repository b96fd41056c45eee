// Package dedup assigns content-addressed ids to normalized messages and
// tools so that the same message or tool definition appearing in more
// than one raw capture record (a resend, a retried request, a shared
// system prompt) interns to a single entity in the cooked bundle.
//
// The hash construction is grounded on the teacher's audit.computeHash:
// sha256 over a pipe-joined canonical field tuple, hex-encoded and
// prefixed "sha256:". Unlike the teacher's hash chain, there is no
// previous-hash linkage here — message identity must be order-independent
// so that interning is idempotent regardless of capture order.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/tracecook/tracecook/internal/normalize"
)

// Interner tracks the messages and tools already assigned an id and
// returns the same id for content it has seen before.
type Interner struct {
	messages map[string]normalize.Message
	tools    map[string]normalize.Tool
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{
		messages: make(map[string]normalize.Message),
		tools:    make(map[string]normalize.Tool),
	}
}

// InternMessage assigns m a content-addressed id (filling m.ID) and
// records it if this is the first time this exact content has been seen.
// It returns the id to use when referencing m from a Request.
func (in *Interner) InternMessage(m normalize.Message) string {
	id := hashFields("message", normalize.MessageCanonicalFields(m))
	if _, seen := in.messages[id]; !seen {
		m.ID = id
		in.messages[id] = m
	}
	return id
}

// InternTool is InternMessage's counterpart for Tool definitions.
func (in *Interner) InternTool(t normalize.Tool) string {
	id := hashFields("tool", normalize.ToolCanonicalFields(t))
	if _, seen := in.tools[id]; !seen {
		t.ID = id
		in.tools[id] = t
	}
	return id
}

// Messages returns every interned message, each with its ID field set.
// Order is unspecified; callers that need a stable bundle ordering should
// sort by ID.
func (in *Interner) Messages() []normalize.Message {
	out := make([]normalize.Message, 0, len(in.messages))
	for _, m := range in.messages {
		out = append(out, m)
	}
	return out
}

// Tools returns every interned tool, each with its ID field set.
func (in *Interner) Tools() []normalize.Tool {
	out := make([]normalize.Tool, 0, len(in.tools))
	for _, t := range in.tools {
		out = append(out, t)
	}
	return out
}

// Message looks up a previously interned message by id.
func (in *Interner) Message(id string) (normalize.Message, bool) {
	m, ok := in.messages[id]
	return m, ok
}

// Tool looks up a previously interned tool by id.
func (in *Interner) Tool(id string) (normalize.Tool, bool) {
	t, ok := in.tools[id]
	return t, ok
}

func hashFields(kind string, fields []string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, f := range fields {
		h.Write([]byte{'|'})
		h.Write([]byte(f))
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
