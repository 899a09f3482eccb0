package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/buildersguild/sentinel/internal/bus"
)

func msg(id, author, content string, at time.Time) bus.Message {
	return bus.Message{
		ID:         id,
		ChannelID:  "c1",
		AuthorID:   author,
		AuthorName: author,
		Content:    content,
		CreatedAt:  at,
	}
}

func TestBufferEvictsOldestAtCapacity(t *testing.T) {
	b := NewBuffer("c1", 3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Append(msg(fmt.Sprintf("m%d", i), "u1", "hi", base.Add(time.Duration(i)*time.Second)))
	}

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 retained messages, got %d", len(snap))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if snap[i].ID != want {
			t.Errorf("snapshot[%d] = %s, want %s", i, snap[i].ID, want)
		}
	}
}

func TestBufferDirtyCounter(t *testing.T) {
	b := NewBuffer("c1", 10)
	base := time.Now()

	b.Append(msg("m1", "u1", "one", base))
	b.Append(msg("m2", "u2", "two", base.Add(time.Second)))
	if got := b.MessagesSinceCheck(); got != 2 {
		t.Fatalf("dirty counter = %d, want 2", got)
	}

	// edits and deletes mutate the buffer but do not count
	b.Replace(msg("m1", "u1", "one edited", base))
	b.Remove("m2")
	if got := b.MessagesSinceCheck(); got != 2 {
		t.Fatalf("dirty counter after edit+delete = %d, want 2", got)
	}

	now := base.Add(time.Minute)
	b.ResetSinceCheck(now)
	if got := b.MessagesSinceCheck(); got != 0 {
		t.Fatalf("dirty counter after reset = %d, want 0", got)
	}
	if !b.CheckBoundary().Equal(now) {
		t.Fatalf("boundary = %v, want %v", b.CheckBoundary(), now)
	}
}

func TestBufferReplaceKeepsPositionAndMarksEdited(t *testing.T) {
	b := NewBuffer("c1", 10)
	base := time.Now()
	b.Append(msg("m1", "u1", "first", base))
	b.Append(msg("m2", "u2", "second", base.Add(time.Second)))

	edited := msg("m1", "u1", "first, revised", base.Add(time.Minute))
	if !b.Replace(edited) {
		t.Fatal("Replace returned false for retained message")
	}

	snap := b.Snapshot()
	if snap[0].ID != "m1" || snap[0].Content != "first, revised" {
		t.Fatalf("edited message not updated in place: %+v", snap[0])
	}
	if !snap[0].Edited {
		t.Fatal("edited message not marked as edited")
	}
	if !snap[0].CreatedAt.Equal(base) {
		t.Fatal("edit changed the original timestamp")
	}
}

func TestBufferReplaceAndRemoveMissingAreBenign(t *testing.T) {
	b := NewBuffer("c1", 10)
	if b.Replace(msg("ghost", "u1", "x", time.Now())) {
		t.Fatal("Replace of absent message returned true")
	}
	if b.Remove("ghost") {
		t.Fatal("Remove of absent message returned true")
	}
}

func TestBufferSeedDoesNotCount(t *testing.T) {
	b := NewBuffer("t1", 5)
	base := time.Now()
	b.Seed([]bus.Message{
		msg("p1", "u1", "parent context", base),
		msg("p2", "u2", "more context", base.Add(time.Second)),
	})

	if got := b.MessagesSinceCheck(); got != 0 {
		t.Fatalf("seed bumped dirty counter to %d", got)
	}
	if got := b.Len(); got != 2 {
		t.Fatalf("seeded length = %d, want 2", got)
	}
}

func TestBufferRecentBotReply(t *testing.T) {
	b := NewBuffer("c1", 10)
	base := time.Now()
	b.Append(msg("m1", "bot", "feedback", base))
	b.Append(msg("m2", "u1", "ok", base.Add(time.Second)))
	b.Append(msg("m3", "u2", "sure", base.Add(2*time.Second)))

	if !b.RecentBotReply(3, "bot") {
		t.Fatal("expected bot reply within last 3 messages")
	}
	if b.RecentBotReply(2, "bot") {
		t.Fatal("bot reply is older than last 2 messages")
	}
}

func TestManagerSeededCreateAndRemove(t *testing.T) {
	m := NewManager(5)
	base := time.Now()

	buf := m.CreateSeeded("t1", []bus.Message{msg("p1", "u1", "ctx", base)})
	if buf.Len() != 1 {
		t.Fatalf("seeded buffer length = %d, want 1", buf.Len())
	}

	// existing buffer wins over a second seed
	again := m.CreateSeeded("t1", []bus.Message{msg("p2", "u2", "other", base)})
	if again != buf {
		t.Fatal("CreateSeeded replaced an existing buffer")
	}

	m.Remove("t1")
	if _, ok := m.Get("t1"); ok {
		t.Fatal("buffer survived Remove")
	}
}
