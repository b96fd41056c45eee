// Package depgraph reconstructs the implicit dependency forest linking a
// set of normalized Requests, per the algorithm in spec.md §4.5: an exact
// prefix-match pass first, falling back to an edit-distance similarity
// score over id-sequences, with a tool-set penalty and a root threshold
// to avoid forcing weak links.
//
// There is no library in the example corpus for list-level edit distance
// with custom (id) equality — sergi/go-diff's diffmatchpatch operates on
// runes/strings, and isn't even directly imported by any repo in the
// pack, only present transitively. The DP table here is hand-rolled
// against the standard library for that reason; see DESIGN.md.
package depgraph

import (
	"sort"

	"github.com/tracecook/tracecook/internal/normalize"
)

// Options tunes the similarity pass. Defaults match spec.md §4.5's
// example constants; spec.md §9(a) leaves the exact values unfixed, so
// these are exposed for callers embedding the package rather than wired
// to a CLI flag (the CLI surface in spec.md §6 has no slot for them).
type Options struct {
	// ToolPenaltyWeight scales the symmetric-difference-of-tool-ids term
	// in the similarity score.
	ToolPenaltyWeight float64
	// RootThresholdSlack is the additive constant in the root-threshold
	// floor: a candidate is rejected if its edit distance exceeds
	// min(len(prefix), len(requestMessages))/2 + RootThresholdSlack.
	RootThresholdSlack int
}

// DefaultOptions returns spec.md §4.5's example constants.
func DefaultOptions() Options {
	return Options{ToolPenaltyWeight: 0.5, RootThresholdSlack: 2}
}

// Link computes ParentID for every Request in reqs so that the Requests
// form a forest. reqs need not be sorted: Link visits them in ascending
// Timestamp order and returns the results in input order.
//
// reqs is not mutated in place; Link returns a new slice with ParentID
// populated.
func Link(reqs []normalize.Request, opts Options) []normalize.Request {
	out := make([]normalize.Request, len(reqs))
	copy(out, reqs)

	order := sortedIndices(out)

	for i, ci := range order {
		candidates := order[:i]
		parent := linkOne(out, ci, candidates, opts)
		out[ci].ParentID = parent
	}
	return out
}

func linkOne(reqs []normalize.Request, childIdx int, candidateIdxs []int, opts Options) *string {
	child := reqs[childIdx]

	// Prefix pass: most recent candidate backwards.
	for i := len(candidateIdxs) - 1; i >= 0; i-- {
		p := reqs[candidateIdxs[i]]
		if p.Model != child.Model {
			continue
		}
		prefix := append(append([]string(nil), p.RequestMessages...), p.ResponseMessages...)
		if isPrefix(prefix, child.RequestMessages) {
			id := p.ID
			return &id
		}
	}

	// Similarity pass.
	type scored struct {
		idx   int
		score float64
		edit  int
		plen  int
	}
	var best *scored
	for _, ci := range candidateIdxs {
		p := reqs[ci]
		if p.Model != child.Model {
			continue
		}
		prefix := append(append([]string(nil), p.RequestMessages...), p.ResponseMessages...)
		edit := levenshtein(prefix, child.RequestMessages)
		penalty := float64(symmetricDiffCount(p.Tools, child.Tools)) * opts.ToolPenaltyWeight
		score := -(float64(edit) + penalty)

		cand := scored{idx: ci, score: score, edit: edit, plen: len(prefix)}
		if best == nil || score > best.score ||
			(score == best.score && reqs[ci].Timestamp > reqs[best.idx].Timestamp) {
			best = &cand
		}
	}

	if best == nil {
		return nil
	}

	// Root threshold: reject a weak link.
	shorter := best.plen
	if len(child.RequestMessages) < shorter {
		shorter = len(child.RequestMessages)
	}
	floor := shorter/2 + opts.RootThresholdSlack
	if best.edit > floor {
		return nil
	}

	id := reqs[best.idx].ID
	return &id
}

func isPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i, v := range prefix {
		if full[i] != v {
			return false
		}
	}
	return true
}

func symmetricDiffCount(a, b []string) int {
	as := make(map[string]bool, len(a))
	for _, v := range a {
		as[v] = true
	}
	bs := make(map[string]bool, len(b))
	for _, v := range b {
		bs[v] = true
	}
	count := 0
	for v := range as {
		if !bs[v] {
			count++
		}
	}
	for v := range bs {
		if !as[v] {
			count++
		}
	}
	return count
}

// levenshtein computes unit-cost insert/delete/substitute edit distance
// between two sequences of opaque ids, comparing by string equality —
// per spec.md §9, operands are lists of hash ids, not characters.
func levenshtein(a, b []string) int {
	n, m := len(a), len(b)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}

	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// sortedIndices returns the indices of reqs in ascending Timestamp order.
// Timestamps are compared as strings. The proxy writes them as UTC
// RFC3339 with a fixed three-digit fraction (see capture.Record), and
// for that fixed-width form lexicographic order is chronological order.
func sortedIndices(reqs []normalize.Request) []int {
	idx := make([]int, len(reqs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return reqs[idx[a]].Timestamp < reqs[idx[b]].Timestamp
	})
	return idx
}
