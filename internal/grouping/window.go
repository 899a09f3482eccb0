package grouping

import (
	"time"

	"github.com/buildersguild/sentinel/internal/bus"
)

// Window is the trailing slice of groups sent to the classifier in one pass.
// Indices and reply edges are recomputed over the trimmed slice, so an edge
// whose target was trimmed away becomes absent and every remaining edge
// points at a smaller index.
type Window struct {
	Groups []*Group
}

// Project takes the trailing k groups of a full pass and rebuilds indices and
// edges from scratch over just that slice. Trimming happens at group
// boundaries, so the projected groups are a suffix of the full pass.
func Project(groups []*Group, k int) *Window {
	start := len(groups) - k
	if start < 0 {
		start = 0
	}
	tail := groups[start:]

	var flat []bus.Message
	for _, g := range tail {
		flat = append(flat, g.Messages...)
	}
	return &Window{Groups: Build(flat)}
}

// Flag marks groups by their current relative index. Indices outside the
// window are ignored; the classifier occasionally hallucinates one.
func (w *Window) Flag(indices []int) {
	for _, idx := range indices {
		if idx >= 0 && idx < len(w.Groups) {
			w.Groups[idx].Flagged = true
		}
	}
}

// Flagged returns the groups marked by Flag, in window order.
func (w *Window) Flagged() []*Group {
	var out []*Group
	for _, g := range w.Groups {
		if g.Flagged {
			out = append(out, g)
		}
	}
	return out
}

// BoundaryTime locates the timestamp that separates already-checked content
// from new content: the creation time of the message sitting sinceCheck
// positions from the end of the untrimmed snapshot. When eviction has
// swallowed that position the oldest retained message stands in for it.
func BoundaryTime(snapshot []bus.Message, sinceCheck int) time.Time {
	if len(snapshot) == 0 {
		return time.Time{}
	}
	idx := len(snapshot) - sinceCheck
	if idx < 0 {
		idx = 0
	}
	if idx > len(snapshot)-1 {
		idx = len(snapshot) - 1
	}
	return snapshot[idx].CreatedAt
}

// EligibleTail returns how many of the window's newest groups may receive new
// flags: the count of trailing groups whose oldest message is at or after the
// boundary, clamped to at least minFloor. Older groups ride along as context
// only. A burst from one author collapses into a single group, so without the
// floor a busy channel could shrink its own eligibility to one.
func (w *Window) EligibleTail(boundary time.Time, minFloor int) int {
	count := 0
	for i := len(w.Groups) - 1; i >= 0; i-- {
		if w.Groups[i].OldestAt().Before(boundary) {
			break
		}
		count++
	}
	if count < minFloor {
		count = minFloor
	}
	if count > len(w.Groups) {
		count = len(w.Groups)
	}
	return count
}

// EligibleIndices returns the relative indices allowed to receive new flags,
// given the eligible tail width.
func (w *Window) EligibleIndices(tail int) map[int]bool {
	eligible := make(map[int]bool, tail)
	for i := len(w.Groups) - tail; i < len(w.Groups); i++ {
		if i >= 0 {
			eligible[i] = true
		}
	}
	return eligible
}
