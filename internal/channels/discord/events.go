package discord

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/buildersguild/sentinel/internal/bus"
	"github.com/buildersguild/sentinel/internal/channels"
)

func (c *Channel) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		c.botUserID = r.User.ID
	}
	go c.backfill()
}

func (c *Channel) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || !c.watched(m.ChannelID) {
		return
	}
	if m.Flags&discordgo.MessageFlagsEphemeral != 0 {
		return // ephemeral messages are invisible to the rest of the channel
	}

	own := m.Author.ID == c.botUserID
	if m.Author.Bot && !own {
		return
	}

	msg := c.convert(m.Message)
	slog.Debug("discord message received",
		"channel_id", m.ChannelID,
		"author", msg.AuthorName,
		"preview", channels.Truncate(msg.Content, 50))

	c.Publish(bus.ChatEvent{
		Kind:      bus.EventMessageCreated,
		ChannelID: m.ChannelID,
		Message:   &msg,
		Mentioned: !own && c.mentioned(m.Mentions),
	})

	if own || !c.mentioned(m.Mentions) {
		return
	}
	if isCheckRequest(m.Content) {
		c.Publish(bus.ChatEvent{
			Kind:      bus.EventCheckRequested,
			ChannelID: m.ChannelID,
			MessageID: m.ID,
		})
		return
	}
	// plain mention: answer the ping directly, nothing for the core to do
	if ping := c.cfg.DiscordSettings().PingResponse; ping != "" {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, ping, &discordgo.MessageReference{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
		}); err != nil {
			slog.Warn("ping reply failed", "channel_id", m.ChannelID, "error", err)
		}
	}
}

func (c *Channel) handleMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	// embed unfurls arrive as author-less updates
	if m.Author == nil || m.Author.Bot || !c.watched(m.ChannelID) {
		return
	}

	msg := c.convert(m.Message)
	msg.Edited = true
	c.Publish(bus.ChatEvent{
		Kind:      bus.EventMessageEdited,
		ChannelID: m.ChannelID,
		Message:   &msg,
	})
}

func (c *Channel) handleMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	if !c.watched(m.ChannelID) {
		return
	}
	c.Publish(bus.ChatEvent{
		Kind:      bus.EventMessageDeleted,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
	})
}

func (c *Channel) handleThreadCreate(s *discordgo.Session, t *discordgo.ThreadCreate) {
	if !c.cfg.ChannelAllowed(t.ParentID) {
		return
	}
	c.watchedThreads.Store(t.ID, struct{}{})

	// a thread spawned from a message shares its ID; that message is the
	// context deciding whether criticism in the thread was solicited
	var seed []bus.Message
	if starter, err := s.ChannelMessage(t.ParentID, t.ID); err == nil && starter.Author != nil {
		seed = append(seed, c.convert(starter))
	}

	slog.Info("watching new thread", "thread_id", t.ID, "parent_id", t.ParentID, "title", t.Name)
	c.Publish(bus.ChatEvent{
		Kind:        bus.EventThreadCreated,
		ChannelID:   t.ID,
		ParentID:    t.ParentID,
		ThreadTitle: t.Name,
		Seed:        seed,
	})
}

func (c *Channel) handleThreadUpdate(s *discordgo.Session, t *discordgo.ThreadUpdate) {
	if t.ThreadMetadata == nil || !t.ThreadMetadata.Archived {
		return
	}
	if _, ok := c.watchedThreads.LoadAndDelete(t.ID); !ok {
		return
	}
	slog.Info("thread archived, dropping state", "thread_id", t.ID)
	c.Publish(bus.ChatEvent{
		Kind:      bus.EventThreadArchived,
		ChannelID: t.ID,
		ParentID:  t.ParentID,
	})
}

func (c *Channel) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if !c.watched(r.ChannelID) || r.UserID == c.botUserID {
		return
	}

	// fetch the message for its full reaction tally; a bare add event only
	// carries the one emoji
	msg, err := s.ChannelMessage(r.ChannelID, r.MessageID)
	if err != nil {
		slog.Debug("reaction target fetch failed", "message_id", r.MessageID, "error", err)
		return
	}
	if msg.Author == nil {
		return
	}

	converted := c.convert(msg)
	c.Publish(bus.ChatEvent{
		Kind:      bus.EventReactionAdded,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		Message:   &converted,
	})
}

func (c *Channel) mentioned(mentions []*discordgo.User) bool {
	for _, u := range mentions {
		if u.ID == c.botUserID {
			return true
		}
	}
	return false
}

// isCheckRequest matches a mention asking for an immediate moderation pass,
// e.g. "@sentinel check".
func isCheckRequest(content string) bool {
	for _, word := range strings.Fields(strings.ToLower(content)) {
		if word == "check" {
			return true
		}
	}
	return false
}

// convert maps a discordgo message onto the platform-neutral shape the core
// consumes.
func (c *Channel) convert(m *discordgo.Message) bus.Message {
	msg := bus.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		AuthorID:    m.Author.ID,
		AuthorName:  displayName(m),
		Bot:         m.Author.Bot,
		Ephemeral:   m.Flags&discordgo.MessageFlagsEphemeral != 0,
		Content:     m.Content,
		Attachments: len(m.Attachments) > 0,
		Edited:      m.EditedTimestamp != nil,
		CreatedAt:   m.Timestamp,
		JumpURL:     jumpURL(m),
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	for _, r := range m.Reactions {
		if r.Emoji == nil {
			continue
		}
		msg.Reactions = append(msg.Reactions, bus.Reaction{Emoji: r.Emoji.Name, Count: r.Count})
	}
	if m.Member != nil {
		msg.Roles = c.roleNames(m.GuildID, m.Member.Roles)
	}
	return msg
}

// roleNames resolves role IDs to names via the session state cache, so the
// core can match the waiver role by its configured name.
func (c *Channel) roleNames(guildID string, roleIDs []string) []string {
	if guildID == "" {
		return nil
	}
	var names []string
	for _, id := range roleIDs {
		role, err := c.session.State.Role(guildID, id)
		if err != nil {
			continue
		}
		names = append(names, role.Name)
	}
	return names
}

// displayName prefers server nickname, then global display name, then the
// account username.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func jumpURL(m *discordgo.Message) string {
	guild := m.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, m.ChannelID, m.ID)
}
