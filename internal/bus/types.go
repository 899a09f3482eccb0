package bus

import (
	"context"
	"time"
)

// EventKind identifies the platform event carried by a ChatEvent.
type EventKind string

const (
	EventMessageCreated EventKind = "message_created"
	EventMessageEdited  EventKind = "message_edited"
	EventMessageDeleted EventKind = "message_deleted"
	EventThreadCreated  EventKind = "thread_created"
	EventThreadArchived EventKind = "thread_archived"
	EventReactionAdded  EventKind = "reaction_added"
	EventBackfill       EventKind = "backfill"        // startup history preload
	EventCheckRequested EventKind = "check_requested" // manual check command
)

// Reaction is an emoji tally on a message.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Message is the platform-neutral view of a chat message that the moderation
// core consumes. It is read-only to the core.
type Message struct {
	ID          string     `json:"id"`
	ChannelID   string     `json:"channel_id"`
	GuildID     string     `json:"guild_id,omitempty"`
	AuthorID    string     `json:"author_id"`
	AuthorName  string     `json:"author_name"`
	Bot         bool       `json:"bot,omitempty"`
	Ephemeral   bool       `json:"ephemeral,omitempty"`
	Content     string     `json:"content"`
	ReplyToID   string     `json:"reply_to_id,omitempty"`
	Attachments bool       `json:"attachments,omitempty"`
	Edited      bool       `json:"edited,omitempty"`
	Reactions   []Reaction `json:"reactions,omitempty"`
	Roles       []string   `json:"roles,omitempty"` // author's role names at receive time
	CreatedAt   time.Time  `json:"created_at"`
	JumpURL     string     `json:"jump_url,omitempty"`
}

// ChatEvent is an inbound event from the chat platform.
// ChannelID scopes the event to a conversation buffer; for thread events it
// is the thread's own ID and ParentID is the parent channel.
type ChatEvent struct {
	Kind        EventKind `json:"kind"`
	Channel     string    `json:"channel"` // source channel name, e.g. "discord"
	ChannelID   string    `json:"channel_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Message     *Message  `json:"message,omitempty"`    // created/edited/deleted
	MessageID   string    `json:"message_id,omitempty"` // deleted/reaction when no full message
	Reaction    *Reaction `json:"reaction,omitempty"`
	Seed        []Message `json:"seed,omitempty"` // thread_created/backfill: preloaded context
	ThreadTitle string    `json:"thread_title,omitempty"`
	Mentioned   bool      `json:"mentioned,omitempty"`
}

// OutboundAction is a side effect the moderation core asks a channel to perform.
type OutboundAction struct {
	Channel   string            `json:"channel"`
	ChannelID string            `json:"channel_id"`
	Content   string            `json:"content,omitempty"`
	ReplyToID string            `json:"reply_to_id,omitempty"`
	Reaction  string            `json:"reaction,omitempty"` // emoji to add to ReplyToID
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event is a server-side event broadcast to gateway WebSocket clients.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription, decoupling the
// gateway server from the concrete EventBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// EventRouter abstracts inbound/outbound routing between channels and the
// moderation core.
type EventRouter interface {
	PublishInbound(ev ChatEvent)
	ConsumeInbound(ctx context.Context) (ChatEvent, bool)
	PublishOutbound(act OutboundAction)
	SubscribeOutbound(ctx context.Context) (OutboundAction, bool)
}
