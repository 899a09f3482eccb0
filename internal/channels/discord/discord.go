// Package discord connects the moderation core to Discord gateway events
// via discordgo. It is intentionally thin: every decision about buffering,
// scheduling and classification lives behind the event bus.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/buildersguild/sentinel/internal/bus"
	"github.com/buildersguild/sentinel/internal/channels"
	"github.com/buildersguild/sentinel/internal/config"
)

const maxMessageLen = 2000

// Channel is the Discord implementation of channels.Channel.
type Channel struct {
	*channels.BaseChannel
	session        *discordgo.Session
	cfg            *config.Config
	botUserID      string
	watchedThreads sync.Map // thread ID → struct{}
}

func New(cfg *config.Config, eventBus *bus.EventBus) (*Channel, error) {
	token := cfg.DiscordSettings().Token
	if token == "" {
		return nil, fmt.Errorf("discord token not set (SENTINEL_DISCORD_TOKEN)")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", eventBus),
		session:     session,
		cfg:         cfg,
	}, nil
}

// Start opens the gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord connection")

	c.session.AddHandler(c.handleReady)
	c.session.AddHandler(c.handleMessageCreate)
	c.session.AddHandler(c.handleMessageUpdate)
	c.session.AddHandler(c.handleMessageDelete)
	c.session.AddHandler(c.handleThreadCreate)
	c.session.AddHandler(c.handleThreadUpdate)
	c.session.AddHandler(c.handleReactionAdd)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord connection")
	c.SetRunning(false)
	return c.session.Close()
}

// BotUserID returns the bot's own user ID, available after Start.
func (c *Channel) BotUserID() string { return c.botUserID }

// Send performs one outbound action: an emoji reaction, a reply, or a plain
// message. Long content is chunked under Discord's 2000-char limit.
func (c *Channel) Send(_ context.Context, act bus.OutboundAction) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord channel not running")
	}
	if act.ChannelID == "" {
		return fmt.Errorf("empty channel id for discord send")
	}

	if act.Reaction != "" {
		if err := c.session.MessageReactionAdd(act.ChannelID, act.ReplyToID, act.Reaction); err != nil {
			return fmt.Errorf("add discord reaction: %w", err)
		}
		return nil
	}

	chunks := channels.SplitMessage(act.Content, maxMessageLen)
	for i, chunk := range chunks {
		var err error
		if i == 0 && act.ReplyToID != "" {
			_, err = c.session.ChannelMessageSendReply(act.ChannelID, chunk, &discordgo.MessageReference{
				MessageID: act.ReplyToID,
				ChannelID: act.ChannelID,
			})
		} else {
			_, err = c.session.ChannelMessageSend(act.ChannelID, chunk)
		}
		if err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// watched reports whether events from a channel or thread should be
// ingested: either the channel is on the allowlist or it is a thread under
// an allowlisted parent.
func (c *Channel) watched(channelID string) bool {
	if c.cfg.ChannelAllowed(channelID) {
		return true
	}
	_, ok := c.watchedThreads.Load(channelID)
	return ok
}

// backfill preloads each allowlisted channel's recent history so the first
// check after a restart sees full context instead of an empty ring.
func (c *Channel) backfill() {
	capacity := c.cfg.ModerationSettings().BufferCapacity
	for _, channelID := range c.cfg.DiscordSettings().AllowChannels {
		msgs, err := c.session.ChannelMessages(channelID, capacity, "", "", "")
		if err != nil {
			slog.Warn("backfill failed", "channel_id", channelID, "error", err)
			continue
		}

		// API returns newest first
		seed := make([]bus.Message, 0, len(msgs))
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Author == nil {
				continue
			}
			seed = append(seed, c.convert(msgs[i]))
		}
		c.Publish(bus.ChatEvent{
			Kind:      bus.EventBackfill,
			ChannelID: channelID,
			Seed:      seed,
		})
		slog.Info("backfilled channel history", "channel_id", channelID, "messages", len(seed))
	}
}
