// Package history keeps per-channel conversation buffers: bounded rings of
// recent messages plus the bookkeeping the debounce scheduler reads (dirty
// message count and the last-check boundary).
package history

import (
	"sync"
	"time"

	"github.com/buildersguild/sentinel/internal/bus"
)

// Buffer is a bounded ring of the most recent messages in one channel,
// oldest first. Appends beyond capacity evict the oldest entry. All methods
// are safe for concurrent use.
type Buffer struct {
	channelID  string
	capacity   int
	messages   []bus.Message
	sinceCheck int
	boundary   time.Time // when the channel was last checked
	lastAt     time.Time // timestamp of the newest append
	mu         sync.Mutex
}

func NewBuffer(channelID string, capacity int) *Buffer {
	return &Buffer{
		channelID: channelID,
		capacity:  capacity,
		messages:  make([]bus.Message, 0, capacity),
	}
}

func (b *Buffer) ChannelID() string { return b.channelID }

// Append adds a message to the tail, evicting the oldest when full, and
// bumps the dirty counter. Edits and deletes do not go through here and so
// never count toward the check threshold.
func (b *Buffer) Append(msg bus.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) >= b.capacity {
		copy(b.messages, b.messages[1:])
		b.messages = b.messages[:len(b.messages)-1]
	}
	b.messages = append(b.messages, msg)
	b.sinceCheck++
	if msg.CreatedAt.After(b.lastAt) {
		b.lastAt = msg.CreatedAt
	}
}

// Seed preloads messages without touching the dirty counter. Used when a
// thread inherits context from its parent channel and on startup backfill.
func (b *Buffer) Seed(msgs []bus.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range msgs {
		if len(b.messages) >= b.capacity {
			copy(b.messages, b.messages[1:])
			b.messages = b.messages[:len(b.messages)-1]
		}
		b.messages = append(b.messages, msg)
		if msg.CreatedAt.After(b.lastAt) {
			b.lastAt = msg.CreatedAt
		}
	}
}

// Replace updates the stored copy of an edited message in place, keeping its
// position. Returns false when the message has already been evicted; callers
// treat that as benign.
func (b *Buffer) Replace(msg bus.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.messages {
		if b.messages[i].ID == msg.ID {
			msg.CreatedAt = b.messages[i].CreatedAt
			b.messages[i] = msg
			b.messages[i].Edited = true
			return true
		}
	}
	return false
}

// UpdateReactions swaps the reaction tallies on a stored message.
func (b *Buffer) UpdateReactions(messageID string, reactions []bus.Reaction) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.messages {
		if b.messages[i].ID == messageID {
			b.messages[i].Reactions = reactions
			return true
		}
	}
	return false
}

// Remove drops a deleted message. Returns false when it was not retained.
func (b *Buffer) Remove(messageID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.messages {
		if b.messages[i].ID == messageID {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the retained messages, oldest first.
func (b *Buffer) Snapshot() []bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bus.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// MessagesSinceCheck returns how many appends happened since the last check.
func (b *Buffer) MessagesSinceCheck() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sinceCheck
}

// ResetSinceCheck zeroes the dirty counter and records the check boundary.
// Called right before a check fires so messages arriving during the check
// count toward the next one.
func (b *Buffer) ResetSinceCheck(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinceCheck = 0
	b.boundary = now
}

// CheckBoundary returns when the channel was last checked. Zero means never.
func (b *Buffer) CheckBoundary() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boundary
}

// LastMessageAt returns the timestamp of the newest message seen, including
// ones already evicted.
func (b *Buffer) LastMessageAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAt
}

// RecentBotReply reports whether any of the newest n retained messages was
// authored by botID. Used to avoid re-checking a channel right after the bot
// itself replied.
func (b *Buffer) RecentBotReply(n int, botID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := len(b.messages) - n
	if start < 0 {
		start = 0
	}
	for _, msg := range b.messages[start:] {
		if msg.AuthorID == botID {
			return true
		}
	}
	return false
}
