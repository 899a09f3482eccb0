// Package store defines the persistence boundary for flagged spans and eval
// cases. The core depends on these interfaces only; the SQLite implementation
// lives in the sqlite subpackage.
package store

import (
	"context"
	"time"
)

// OutcomeRecord is one persisted flag, keyed by the flagged group's oldest
// message ID. RelativeIndex is the group's coordinate within the window at
// flag time and is audit data only, never identity.
type OutcomeRecord struct {
	MessageID     string    `json:"message_id"`
	ChannelID     string    `json:"channel_id"`
	GuildID       string    `json:"guild_id,omitempty"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	FlaggedAt     time.Time `json:"flagged_at"`
	JumpURL       string    `json:"jump_url,omitempty"`
	RelativeIndex int       `json:"relative_index"`
	Confidence    string    `json:"confidence"`
	Window        []string  `json:"window,omitempty"` // formatted window at flag time
	Reason        string    `json:"reason,omitempty"` // human-authored, via feedback command
	WaivedPeople  []string  `json:"waived_people,omitempty"`
}

// QueryFilter narrows List results. Zero-valued fields match everything.
type QueryFilter struct {
	AuthorID  string
	ChannelID string
	GuildID   string
}

// OutcomeStore persists flagged spans. Add is insert-if-absent: the same
// message ID is never recorded twice, even under concurrent or retried
// calls, and the second attempt reports inserted=false without mutation.
type OutcomeStore interface {
	Add(ctx context.Context, rec OutcomeRecord) (inserted bool, err error)
	Get(ctx context.Context, messageID string) (*OutcomeRecord, error)
	List(ctx context.Context, filter QueryFilter) ([]OutcomeRecord, error)
	SetReason(ctx context.Context, messageID, reason string) error
	Close() error
}

// EvalCase is a labeled conversation window used to measure classifier
// drift: the window as formatted at flag time, the flagged group's relative
// index, and a human verdict on whether flagging it was correct.
type EvalCase struct {
	MessageID     string    `json:"message_id"`
	Window        []string  `json:"window"`
	WaivedPeople  []string  `json:"waived_people,omitempty"`
	RelativeIndex int       `json:"relative_index"`
	ShouldFlag    bool      `json:"should_flag"`
	CreatedAt     time.Time `json:"created_at"`
}

// EvalStore persists eval cases harvested from confirmed outcomes.
type EvalStore interface {
	AddCase(ctx context.Context, c EvalCase) error
	Cases(ctx context.Context) ([]EvalCase, error)
}
