package grouping

import (
	"strings"
	"testing"

	"github.com/buildersguild/sentinel/internal/bus"
)

func TestFormatGroup(t *testing.T) {
	m1 := msg("m1", "alice", 0)
	m1.Content = "this design is broken"
	m2 := msg("m2", "alice", 1)
	m2.Content = "and so is the rollout plan"
	m2.Edited = true
	m2.Attachments = true
	m2.Reactions = []bus.Reaction{{Emoji: "👍", Count: 2}}

	g := Build([]bus.Message{m1, m2})[0]
	got := FormatGroup(g)

	want := "(0) alice: ❝this design is broken\nand so is the rollout plan [uploaded attachment/image]❞ (edited)\n[reactions: 👍 2]"
	if got != want {
		t.Fatalf("formatted group:\n%q\nwant:\n%q", got, want)
	}
}

func TestFormatGroupWithReplyEdge(t *testing.T) {
	groups := Build([]bus.Message{
		msg("m1", "alice", 0),
		reply("m2", "bob", "m1", 1),
	})

	got := FormatGroup(groups[1])
	if !strings.HasPrefix(got, "(1) [reply to 0] bob: ") {
		t.Fatalf("formatted reply group = %q", got)
	}
}

func TestFormatWindowOrder(t *testing.T) {
	w := Project(Build([]bus.Message{
		msg("m1", "alice", 0),
		msg("m2", "bob", 1),
	}), 2)

	lines := FormatWindow(w)
	if len(lines) != 2 {
		t.Fatalf("formatted %d groups, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "(0) alice:") || !strings.HasPrefix(lines[1], "(1) bob:") {
		t.Fatalf("window lines out of order: %v", lines)
	}
}
