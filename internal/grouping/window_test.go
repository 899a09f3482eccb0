package grouping

import (
	"testing"
	"time"

	"github.com/buildersguild/sentinel/internal/bus"
)

func TestProjectTrimsToTrailingGroups(t *testing.T) {
	snapshot := []bus.Message{
		msg("m1", "alice", 0),
		msg("m2", "bob", 1),
		msg("m3", "carol", 2),
		msg("m4", "dave", 3),
	}
	full := Build(snapshot)

	w := Project(full, 2)
	if len(w.Groups) != 2 {
		t.Fatalf("window has %d groups, want 2", len(w.Groups))
	}

	// trimmed groups are a suffix of the full pass, content preserved
	for i, g := range w.Groups {
		fullGroup := full[len(full)-2+i]
		if g.OldestID() != fullGroup.OldestID() {
			t.Errorf("window group %d = %s, want %s", i, g.OldestID(), fullGroup.OldestID())
		}
		if g.RelIndex != i {
			t.Errorf("window group %d has RelIndex %d", i, g.RelIndex)
		}
	}
}

func TestProjectLargerThanPassKeepsEverything(t *testing.T) {
	full := Build([]bus.Message{msg("m1", "alice", 0), msg("m2", "bob", 1)})
	w := Project(full, 10)
	if len(w.Groups) != 2 {
		t.Fatalf("window has %d groups, want 2", len(w.Groups))
	}
}

func TestProjectDropsEdgesToTrimmedGroups(t *testing.T) {
	snapshot := []bus.Message{
		msg("m1", "alice", 0),
		msg("m2", "bob", 1),
		reply("m3", "carol", "m1", 2), // edge to alice's group
		reply("m4", "dave", "m2", 3),  // edge to bob's group
	}
	full := Build(snapshot)
	if full[2].ReplyEdge != 0 || full[3].ReplyEdge != 1 {
		t.Fatalf("unexpected full-pass edges: %d, %d", full[2].ReplyEdge, full[3].ReplyEdge)
	}

	// trim alice away: carol's edge target is gone, bob's edge rebinds to 0
	w := Project(full, 3)
	if got := w.Groups[1].ReplyEdge; got != NoEdge {
		t.Fatalf("carol's edge survived trimming: %d", got)
	}
	if got := w.Groups[2].ReplyEdge; got != 0 {
		t.Fatalf("dave's edge = %d, want 0", got)
	}
	for _, g := range w.Groups {
		if g.ReplyEdge != NoEdge && g.ReplyEdge >= g.RelIndex {
			t.Fatalf("group %d has forward/self edge %d after trimming", g.RelIndex, g.ReplyEdge)
		}
	}
}

func TestFlagIgnoresOutOfRangeIndices(t *testing.T) {
	w := Project(Build([]bus.Message{msg("m1", "alice", 0), msg("m2", "bob", 1)}), 2)
	w.Flag([]int{1, 7, -2})

	flagged := w.Flagged()
	if len(flagged) != 1 || flagged[0].RelIndex != 1 {
		t.Fatalf("flagged = %v", flagged)
	}
}

func TestBoundaryTime(t *testing.T) {
	snapshot := []bus.Message{
		msg("m1", "alice", 0),
		msg("m2", "bob", 10),
		msg("m3", "carol", 20),
		msg("m4", "dave", 30),
	}

	// two new messages: boundary is m3, the oldest of the new tail
	if got := BoundaryTime(snapshot, 2); !got.Equal(t0.Add(20 * time.Second)) {
		t.Fatalf("boundary = %v", got)
	}
	// eviction swallowed the boundary position: clamp to the oldest retained
	if got := BoundaryTime(snapshot, 9); !got.Equal(t0) {
		t.Fatalf("clamped boundary = %v", got)
	}
	if got := BoundaryTime(nil, 3); !got.IsZero() {
		t.Fatalf("empty snapshot boundary = %v", got)
	}
}

func TestEligibleTail(t *testing.T) {
	snapshot := []bus.Message{
		msg("m1", "alice", 0),
		msg("m2", "bob", 10),
		msg("m3", "carol", 20),
		msg("m4", "dave", 30),
	}
	w := Project(Build(snapshot), 10)

	// boundary at m3: two trailing groups are new
	if got := w.EligibleTail(t0.Add(20*time.Second), 0); got != 2 {
		t.Fatalf("eligible tail = %d, want 2", got)
	}
	// floor widens a too-narrow tail
	if got := w.EligibleTail(t0.Add(30*time.Second), 3); got != 3 {
		t.Fatalf("floored tail = %d, want 3", got)
	}
	// floor never exceeds the window
	if got := w.EligibleTail(t0.Add(30*time.Second), 99); got != len(w.Groups) {
		t.Fatalf("capped tail = %d, want %d", got, len(w.Groups))
	}
}

func TestEligibleIndices(t *testing.T) {
	w := Project(Build([]bus.Message{
		msg("m1", "alice", 0),
		msg("m2", "bob", 1),
		msg("m3", "carol", 2),
	}), 3)

	eligible := w.EligibleIndices(2)
	if eligible[0] || !eligible[1] || !eligible[2] {
		t.Fatalf("eligible indices = %v", eligible)
	}
}
