// Package grouping collapses a conversation snapshot into utterance groups:
// maximal runs of consecutive same-author messages with reply edges resolved
// between groups. Groups are the unit the classifier sees and the unit a
// moderation flag lands on.
package grouping

import (
	"time"

	"github.com/buildersguild/sentinel/internal/bus"
)

// NoEdge marks a group with no resolved reply target.
const NoEdge = -1

// Group is a run of consecutive messages from one author.
//
// RelIndex is a pass-scoped coordinate: it is reassigned from scratch every
// time groups are built or a window is projected, and must never be used as
// identity across passes. Identity for dedup is the oldest message's ID.
type Group struct {
	Messages   []bus.Message
	AuthorID   string
	AuthorName string
	RelIndex   int
	ReplyEdge  int // RelIndex of an earlier group, or NoEdge
	Flagged    bool
}

// OldestID returns the stable identity of the group: its oldest message's ID.
func (g *Group) OldestID() string {
	if len(g.Messages) == 0 {
		return ""
	}
	return g.Messages[0].ID
}

// OldestAt returns the timestamp of the group's oldest message.
func (g *Group) OldestAt() time.Time {
	if len(g.Messages) == 0 {
		return time.Time{}
	}
	return g.Messages[0].CreatedAt
}

// Build walks an ordered snapshot and produces groups with dense relative
// indices 0..n-1. A new group starts whenever the author changes. The first
// message in a group that carries a reply target resolves the group's single
// reply edge by scanning earlier groups newest-first; a target that is not
// retained in the snapshot (deleted, evicted, or in the same group) yields
// no edge. Build is pure: the same snapshot always yields the same groups.
func Build(snapshot []bus.Message) []*Group {
	var groups []*Group
	var current *Group

	for _, msg := range snapshot {
		if current == nil || msg.AuthorID != current.AuthorID {
			current = &Group{
				AuthorID:   msg.AuthorID,
				AuthorName: msg.AuthorName,
				RelIndex:   len(groups),
				ReplyEdge:  NoEdge,
			}
			groups = append(groups, current)
		}
		current.Messages = append(current.Messages, msg)

		if current.ReplyEdge == NoEdge && msg.ReplyToID != "" {
			current.ReplyEdge = resolveEdge(groups[:len(groups)-1], msg.ReplyToID)
		}
	}
	return groups
}

// resolveEdge scans earlier groups newest-first for the reply target.
func resolveEdge(earlier []*Group, targetID string) int {
	for i := len(earlier) - 1; i >= 0; i-- {
		for _, msg := range earlier[i].Messages {
			if msg.ID == targetID {
				return earlier[i].RelIndex
			}
		}
	}
	return NoEdge
}
