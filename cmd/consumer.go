package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/buildersguild/sentinel/internal/bus"
	"github.com/buildersguild/sentinel/internal/channels"
	"github.com/buildersguild/sentinel/internal/classifier"
	"github.com/buildersguild/sentinel/internal/history"
	"github.com/buildersguild/sentinel/internal/moderation"
)

// consumeEvents is the inbound event loop: platform events update the
// per-channel buffers, and fresh human messages arm the debounce scheduler.
func consumeEvents(ctx context.Context, eventBus *bus.EventBus, buffers *history.Manager, sched *moderation.Scheduler, moderator *moderation.Moderator) {
	for {
		ev, ok := eventBus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		switch ev.Kind {
		case bus.EventMessageCreated:
			if ev.Message == nil {
				continue
			}
			buffers.GetOrCreate(ev.ChannelID).Append(*ev.Message)
			// The bot's own replies are buffered for context but never
			// schedule a check of their own.
			if !ev.Message.Bot {
				sched.OnMessage(ctx, ev.ChannelID)
			}

		case bus.EventMessageEdited:
			if ev.Message == nil {
				continue
			}
			buf, ok := buffers.Get(ev.ChannelID)
			if !ok {
				continue
			}
			if !buf.Replace(*ev.Message) {
				slog.Debug("edited message not in buffer", "channel", ev.ChannelID, "message", ev.Message.ID)
			}

		case bus.EventMessageDeleted:
			buf, ok := buffers.Get(ev.ChannelID)
			if !ok {
				continue
			}
			if !buf.Remove(ev.MessageID) {
				slog.Debug("deleted message not in buffer", "channel", ev.ChannelID, "message", ev.MessageID)
			}

		case bus.EventReactionAdded:
			buf, ok := buffers.Get(ev.ChannelID)
			if !ok {
				continue
			}
			if ev.Message != nil {
				buf.UpdateReactions(ev.MessageID, ev.Message.Reactions)
			}

		case bus.EventBackfill:
			buffers.CreateSeeded(ev.ChannelID, ev.Seed)

		case bus.EventThreadCreated:
			buffers.CreateSeeded(ev.ChannelID, threadSeed(buffers, ev))
			tc := classifier.ThreadContext{Title: ev.ThreadTitle}
			if len(ev.Seed) > 0 {
				tc.FirstAuthor = ev.Seed[0].AuthorName
				tc.FirstMessage = ev.Seed[0].Content
			}
			moderator.SetThreadContext(ev.ChannelID, tc)

		case bus.EventThreadArchived:
			buffers.Remove(ev.ChannelID)
			sched.Forget(ev.ChannelID)
			moderator.ForgetThread(ev.ChannelID)

		case bus.EventCheckRequested:
			go moderator.Check(ctx, ev.ChannelID)

		default:
			slog.Debug("unhandled chat event", "kind", string(ev.Kind))
		}
	}
}

// threadSeed builds a new thread's initial buffer: the parent channel's
// context from before the thread was opened, then the starter message.
func threadSeed(buffers *history.Manager, ev bus.ChatEvent) []bus.Message {
	parent, ok := buffers.Get(ev.ParentID)
	if !ok {
		return ev.Seed
	}

	var cutoff time.Time
	starterIDs := make(map[string]bool, len(ev.Seed))
	for _, m := range ev.Seed {
		starterIDs[m.ID] = true
		if cutoff.IsZero() || m.CreatedAt.Before(cutoff) {
			cutoff = m.CreatedAt
		}
	}

	var seed []bus.Message
	for _, m := range parent.Snapshot() {
		if starterIDs[m.ID] {
			continue
		}
		if !cutoff.IsZero() && m.CreatedAt.After(cutoff) {
			continue
		}
		seed = append(seed, m)
	}
	return append(seed, ev.Seed...)
}

// deliverOutbound forwards moderation actions to the channel they came from.
func deliverOutbound(ctx context.Context, eventBus *bus.EventBus, ch channels.Channel) {
	for {
		act, ok := eventBus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := ch.Send(ctx, act); err != nil {
			slog.Error("failed to deliver outbound action",
				"channel", act.ChannelID, "error", err)
		}
	}
}
