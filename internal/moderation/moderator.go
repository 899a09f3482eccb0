// Package moderation is the aggregation and scheduling core: it decides when
// to call the classifier, what slice of conversation to show it, and records
// the outcomes exactly once per flagged span.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/buildersguild/sentinel/internal/bus"
	"github.com/buildersguild/sentinel/internal/classifier"
	"github.com/buildersguild/sentinel/internal/config"
	"github.com/buildersguild/sentinel/internal/grouping"
	"github.com/buildersguild/sentinel/internal/history"
	"github.com/buildersguild/sentinel/internal/store"
)

// recentBotWindow is how many trailing messages are scanned for the bot's
// own reply before skipping a check, so the bot does not moderate the
// conversation about its own feedback.
const recentBotWindow = 3

const defaultRetryDelay = 5 * time.Second

// Moderator runs the full check pipeline for a channel: snapshot, group,
// project, classify, filter, persist, respond.
type Moderator struct {
	cfg        *config.Config
	buffers    *history.Manager
	classifier classifier.Classifier
	outcomes   store.OutcomeStore
	events     *bus.EventBus
	gate       *Gate
	tracer     trace.Tracer
	retryDelay time.Duration

	botID   string
	threads map[string]classifier.ThreadContext
	mu      sync.RWMutex
}

func NewModerator(cfg *config.Config, buffers *history.Manager, cls classifier.Classifier, outcomes store.OutcomeStore, events *bus.EventBus) *Moderator {
	return &Moderator{
		cfg:        cfg,
		buffers:    buffers,
		classifier: cls,
		outcomes:   outcomes,
		events:     events,
		gate:       &Gate{},
		tracer:     otel.Tracer("sentinel/moderation"),
		retryDelay: defaultRetryDelay,
		threads:    make(map[string]classifier.ThreadContext),
	}
}

// SetBotID records the bot's own user ID once the platform session is ready.
func (m *Moderator) SetBotID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botID = id
}

// SetThreadContext registers the opening post of a thread so flag calls on
// that channel can tell whether criticism was solicited.
func (m *Moderator) SetThreadContext(channelID string, tc classifier.ThreadContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[channelID] = tc
}

// ForgetThread drops thread context on teardown.
func (m *Moderator) ForgetThread(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, channelID)
}

// Check runs one moderation pass over a channel. The entire operation sits
// behind the single-flight gate: if another check holds it, this one is
// requeued whole after a short delay and will take a fresh snapshot when it
// eventually runs.
func (m *Moderator) Check(ctx context.Context, channelID string) {
	if !m.gate.TryAcquire() {
		time.AfterFunc(m.retryDelay, func() {
			if ctx.Err() == nil {
				m.Check(ctx, channelID)
			}
		})
		slog.Debug("classifier gate held, check requeued", "channel_id", channelID, "delay", m.retryDelay)
		return
	}
	defer m.gate.Release()

	runID := uuid.NewString()
	ctx, span := m.tracer.Start(ctx, "moderation.check", trace.WithAttributes(
		attribute.String("channel_id", channelID),
		attribute.String("run_id", runID),
	))
	defer span.End()

	if err := m.runCheck(ctx, channelID, span); err != nil {
		span.RecordError(err)
		slog.Warn("moderation check abandoned", "channel_id", channelID, "run_id", runID, "error", err)
	}
}

func (m *Moderator) runCheck(ctx context.Context, channelID string, span trace.Span) error {
	buf, ok := m.buffers.Get(channelID)
	if !ok {
		return nil // channel torn down before the check ran
	}

	m.mu.RLock()
	botID := m.botID
	tc, hasThread := m.threads[channelID]
	m.mu.RUnlock()

	if botID != "" && buf.RecentBotReply(recentBotWindow, botID) {
		slog.Debug("skipping check right after own reply", "channel_id", channelID)
		return nil
	}

	sinceCheck := buf.MessagesSinceCheck()
	if sinceCheck == 0 {
		return nil // fired on a deadline that a check already serviced
	}
	snapshot := buf.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	cfg := m.cfg.ModerationSettings()
	boundary := grouping.BoundaryTime(snapshot, sinceCheck)
	buf.ResetSinceCheck(time.Now())

	window := grouping.Project(grouping.Build(snapshot), cfg.WindowGroups)
	formatted := grouping.FormatWindow(window)
	if hasThread {
		formatted = append([]string{tc.Render()}, formatted...)
	}
	exempt := waivedAuthors(snapshot, cfg.WaiverRole)

	span.SetAttributes(
		attribute.Int("messages", len(snapshot)),
		attribute.Int("groups", len(window.Groups)),
		attribute.Int("since_check", sinceCheck),
	)

	raw, err := m.classifier.Flag(ctx, formatted, exempt)
	if err != nil {
		return fmt.Errorf("classifier call: %w", err)
	}
	flags, err := classifier.ExtractFlags(raw)
	if err != nil {
		if errors.Is(err, classifier.ErrUnparseable) {
			return err
		}
		return fmt.Errorf("parse response: %w", err)
	}

	threshold, _ := classifier.ParseConfidence(cfg.Confidence)
	eligible := window.EligibleIndices(window.EligibleTail(boundary, cfg.MinNewGroups))
	exemptSet := make(map[string]bool, len(exempt))
	for _, name := range exempt {
		exemptSet[name] = true
	}

	var recorded []recordedFlag
	for _, flag := range flags {
		if flag.Index < 0 || flag.Index >= len(window.Groups) {
			continue
		}
		group := window.Groups[flag.Index]
		switch {
		case !eligible[flag.Index]:
			slog.Debug("flag outside eligible tail, context only", "channel_id", channelID, "index", flag.Index)
		case !flag.Confidence.Meets(threshold):
			slog.Debug("flag below confidence threshold", "channel_id", channelID,
				"index", flag.Index, "confidence", flag.Confidence.String())
		case exemptSet[group.AuthorName]:
			// waived authors are context for the model, never a target
		default:
			rec := m.buildRecord(channelID, group, flag, formatted, exempt)
			inserted, err := m.outcomes.Add(ctx, rec)
			if err != nil {
				slog.Error("persist flagged span", "channel_id", channelID,
					"message_id", rec.MessageID, "error", err)
				continue
			}
			if !inserted {
				slog.Debug("span already flagged, dedup", "message_id", rec.MessageID)
				continue
			}
			window.Flag([]int{flag.Index})
			recorded = append(recorded, recordedFlag{group: group, record: rec})
		}
	}

	span.SetAttributes(attribute.Int("flagged", len(recorded)))
	if len(recorded) == 0 {
		return nil
	}

	slog.Info("flagged unconstructive spans", "channel_id", channelID, "count", len(recorded))
	m.respond(ctx, channelID, window, formatted, recorded, cfg)
	return nil
}

type recordedFlag struct {
	group  *grouping.Group
	record store.OutcomeRecord
}

func (m *Moderator) buildRecord(channelID string, group *grouping.Group, flag classifier.Flag, window []string, waived []string) store.OutcomeRecord {
	oldest := group.Messages[0]
	return store.OutcomeRecord{
		MessageID:     oldest.ID,
		ChannelID:     channelID,
		GuildID:       oldest.GuildID,
		AuthorID:      group.AuthorID,
		AuthorName:    group.AuthorName,
		Content:       oldest.Content,
		Timestamp:     oldest.CreatedAt,
		FlaggedAt:     time.Now().UTC(),
		JumpURL:       oldest.JumpURL,
		RelativeIndex: group.RelIndex,
		Confidence:    flag.Confidence.String(),
		Window:        window,
		WaivedPeople:  waived,
	}
}

// respond performs the configured side effects for freshly recorded flags
// and broadcasts each to gateway subscribers. Side-effect failures never
// undo the stored outcome.
func (m *Moderator) respond(ctx context.Context, channelID string, window *grouping.Window, formatted []string, recorded []recordedFlag, cfg config.ModerationConfig) {
	for _, rf := range recorded {
		m.events.Broadcast(bus.Event{Name: "moderation.flagged", Payload: rf.record})
	}

	discord := m.cfg.DiscordSettings()
	if discord.LogChannel != "" {
		for _, rf := range recorded {
			note := fmt.Sprintf("Flagged %s in <#%s> (%s confidence)", rf.record.AuthorName, channelID, rf.record.Confidence)
			if rf.record.JumpURL != "" {
				note += "\n" + rf.record.JumpURL
			}
			m.events.PublishOutbound(bus.OutboundAction{
				Channel:   "discord",
				ChannelID: discord.LogChannel,
				Content:   note,
			})
		}
	}

	switch cfg.RespondMode {
	case config.RespondReact:
		for _, rf := range recorded {
			m.events.PublishOutbound(bus.OutboundAction{
				Channel:   "discord",
				ChannelID: channelID,
				ReplyToID: rf.record.MessageID,
				Reaction:  cfg.ReactionEmoji,
			})
		}
	case config.RespondReply:
		indices := make([]int, len(recorded))
		for i, rf := range recorded {
			indices[i] = rf.group.RelIndex
		}
		feedback, err := m.classifier.Feedback(ctx, formatted, indices, cfg.Guidelines)
		if err != nil {
			slog.Warn("feedback generation failed", "channel_id", channelID, "error", err)
			return
		}
		text := classifier.ExtractFeedback(feedback)
		if text == "" {
			slog.Warn("feedback response carried no text", "channel_id", channelID)
			return
		}
		newest := recorded[len(recorded)-1]
		replyTo := newest.group.Messages[len(newest.group.Messages)-1].ID
		m.events.PublishOutbound(bus.OutboundAction{
			Channel:   "discord",
			ChannelID: channelID,
			Content:   text,
			ReplyToID: replyTo,
		})
	case config.RespondLogOnly:
		// log channel announcement above is the whole response
	}
}

// waivedAuthors collects display names of snapshot authors carrying the
// waiver role.
func waivedAuthors(snapshot []bus.Message, waiverRole string) []string {
	if waiverRole == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, msg := range snapshot {
		if seen[msg.AuthorName] {
			continue
		}
		for _, role := range msg.Roles {
			if role == waiverRole {
				seen[msg.AuthorName] = true
				out = append(out, msg.AuthorName)
				break
			}
		}
	}
	return out
}
