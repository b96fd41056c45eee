package depgraph

import (
	"testing"

	"github.com/tracecook/tracecook/internal/normalize"
)

func req(id, model, ts string, reqMsgs, respMsgs []string) normalize.Request {
	return normalize.Request{
		ID:               id,
		Model:            model,
		Timestamp:        ts,
		RequestMessages:  reqMsgs,
		ResponseMessages: respMsgs,
	}
}

func parentOf(reqs []normalize.Request, id string) *string {
	for _, r := range reqs {
		if r.ID == id {
			return r.ParentID
		}
	}
	return nil
}

func assertParent(t *testing.T, reqs []normalize.Request, childID string, wantParentID string) {
	t.Helper()
	p := parentOf(reqs, childID)
	if wantParentID == "" {
		if p != nil {
			t.Errorf("%s: expected root, got parent %q", childID, *p)
		}
		return
	}
	if p == nil || *p != wantParentID {
		got := "nil"
		if p != nil {
			got = *p
		}
		t.Errorf("%s: expected parent %q, got %q", childID, wantParentID, got)
	}
}

func TestLinkLinearDependency(t *testing.T) {
	r1 := req("1", "gpt-4", "2026-01-01T00:00:00Z", []string{"u1"}, []string{"a1"})
	r2 := req("2", "gpt-4", "2026-01-01T00:01:00Z", []string{"u1", "a1"}, []string{"a2"})
	r3 := req("3", "gpt-4", "2026-01-01T00:02:00Z", []string{"u1", "a1", "a2"}, []string{"a3"})

	out := Link([]normalize.Request{r1, r2, r3}, DefaultOptions())

	assertParent(t, out, "1", "")
	assertParent(t, out, "2", "1")
	assertParent(t, out, "3", "2")
}

func TestLinkRewindBranch(t *testing.T) {
	r1 := req("1", "gpt-4", "2026-01-01T00:00:00Z", []string{"u1"}, []string{"a1"})
	r2 := req("2", "gpt-4", "2026-01-01T00:01:00Z", []string{"u1", "a1"}, []string{"a2"})
	// r3 continues from r1, not r2: a rewind to an earlier point.
	r3 := req("3", "gpt-4", "2026-01-01T00:02:00Z", []string{"u1", "a1", "u2"}, []string{"a3"})

	out := Link([]normalize.Request{r1, r2, r3}, DefaultOptions())

	assertParent(t, out, "3", "1")
}

func TestLinkCrossModelSplit(t *testing.T) {
	r1 := req("1", "gpt-4", "2026-01-01T00:00:00Z", []string{"u1"}, []string{"a1"})
	r2 := req("2", "claude-3", "2026-01-01T00:01:00Z", []string{"u1", "a1"}, []string{"a2"})

	out := Link([]normalize.Request{r1, r2}, DefaultOptions())

	assertParent(t, out, "2", "")
}

func TestLinkFirstRequestIsAlwaysRoot(t *testing.T) {
	r1 := req("1", "gpt-4", "2026-01-01T00:00:00Z", []string{"u1"}, []string{"a1"})
	out := Link([]normalize.Request{r1}, DefaultOptions())
	assertParent(t, out, "1", "")
}

func TestLinkUnrelatedConversationBecomesRoot(t *testing.T) {
	r1 := req("1", "gpt-4", "2026-01-01T00:00:00Z", []string{"u1"}, []string{"a1"})
	// Completely unrelated message ids and different length — above the
	// root threshold, so this should not be forced onto r1.
	r2 := req("2", "gpt-4", "2026-01-01T00:01:00Z",
		[]string{"x1", "x2", "x3", "x4", "x5", "x6"}, []string{"x7"})

	out := Link([]normalize.Request{r1, r2}, DefaultOptions())
	assertParent(t, out, "2", "")
}

func TestLinkToolSetPenaltyBreaksTie(t *testing.T) {
	r1 := req("1", "gpt-4", "2026-01-01T00:00:00Z", []string{"u1"}, []string{"a1"})
	r1.Tools = []string{"t1"}
	r2 := req("2", "gpt-4", "2026-01-01T00:01:00Z", []string{"u1"}, []string{"a2"})
	r2.Tools = []string{"t2"}
	// r3 is equidistant (edit distance 2) from both r1's and r2's
	// prefix — neither is an exact prefix match — but shares r2's tool
	// set exactly, so the tool penalty should break the tie toward r2.
	r3 := req("3", "gpt-4", "2026-01-01T00:02:00Z", []string{"u1", "a3", "u2"}, []string{"a4"})
	r3.Tools = []string{"t2"}

	out := Link([]normalize.Request{r1, r2, r3}, DefaultOptions())
	assertParent(t, out, "3", "2")
}

func TestLevenshteinBasic(t *testing.T) {
	cases := []struct {
		a, b []string
		want int
	}{
		{[]string{}, []string{}, 0},
		{[]string{"a"}, []string{}, 1},
		{[]string{"a", "b", "c"}, []string{"a", "b", "c"}, 0},
		{[]string{"a", "b", "c"}, []string{"a", "x", "c"}, 1},
		{[]string{"a", "b"}, []string{"a", "b", "c"}, 1},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
