package moderation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buildersguild/sentinel/internal/bus"
	"github.com/buildersguild/sentinel/internal/config"
	"github.com/buildersguild/sentinel/internal/history"
	"github.com/buildersguild/sentinel/internal/store"
)

type fakeClassifier struct {
	flagResp    string
	flagErr     error
	feedback    string
	block       chan struct{}
	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeClassifier) Flag(ctx context.Context, groups []string, exempt []string) (string, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if cur > f.maxInFlight.Load() {
		f.maxInFlight.Store(cur)
	}
	if f.block != nil {
		<-f.block
	}
	f.calls.Add(1)
	return f.flagResp, f.flagErr
}

func (f *fakeClassifier) Feedback(ctx context.Context, groups []string, flagged []int, guidelines string) (string, error) {
	return f.feedback, nil
}

type memStore struct {
	recs map[string]store.OutcomeRecord
	mu   sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]store.OutcomeRecord)}
}

func (m *memStore) Add(ctx context.Context, rec store.OutcomeRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.MessageID]; ok {
		return false, nil
	}
	m.recs[rec.MessageID] = rec
	return true, nil
}

func (m *memStore) Get(ctx context.Context, messageID string) (*store.OutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[messageID]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memStore) List(ctx context.Context, filter store.QueryFilter) ([]store.OutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.OutcomeRecord
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) SetReason(ctx context.Context, messageID, reason string) error { return nil }
func (m *memStore) Close() error                                                  { return nil }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Moderation.Confidence = "medium"
	cfg.Moderation.RespondMode = config.RespondReact
	return cfg
}

func seedChannel(buffers *history.Manager, channelID string) *history.Buffer {
	buf := buffers.GetOrCreate(channelID)
	base := time.Now().Add(-time.Minute)
	buf.Append(bus.Message{ID: "m1", ChannelID: channelID, AuthorID: "alice", AuthorName: "alice",
		Content: "check out my new build", CreatedAt: base})
	buf.Append(bus.Message{ID: "m2", ChannelID: channelID, AuthorID: "bob", AuthorName: "bob",
		Content: "where efficacy", CreatedAt: base.Add(time.Second)})
	buf.Append(bus.Message{ID: "m3", ChannelID: channelID, AuthorID: "bob", AuthorName: "bob",
		Content: "objectively never needed", CreatedAt: base.Add(2 * time.Second)})
	return buf
}

func drainOutbound(t *testing.T, events *bus.EventBus) []bus.OutboundAction {
	t.Helper()
	var out []bus.OutboundAction
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		act, ok := events.SubscribeOutbound(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, act)
	}
}

func TestCheckRecordsAndReacts(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	outcomes := newMemStore()
	cls := &fakeClassifier{flagResp: "<analysis>bob is piling on</analysis><result>[1:high]</result>"}

	m := NewModerator(testConfig(), buffers, cls, outcomes, events)
	buf := seedChannel(buffers, "c1")

	m.Check(context.Background(), "c1")

	if got := outcomes.len(); got != 1 {
		t.Fatalf("store holds %d records, want 1", got)
	}
	rec, _ := outcomes.Get(context.Background(), "m2")
	if rec == nil {
		t.Fatal("record not keyed by the group's oldest message id")
	}
	if rec.AuthorName != "bob" || rec.Confidence != "high" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if buf.MessagesSinceCheck() != 0 {
		t.Fatal("dirty counter not reset by the check")
	}

	acts := drainOutbound(t, events)
	if len(acts) != 1 {
		t.Fatalf("got %d outbound actions, want 1", len(acts))
	}
	if acts[0].Reaction == "" || acts[0].ReplyToID != "m2" {
		t.Fatalf("expected reaction on m2, got %+v", acts[0])
	}
}

func TestCheckBroadcastsFlagEvents(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	cls := &fakeClassifier{flagResp: "<result>[1:high]</result>"}

	got := make(chan bus.Event, 1)
	events.Subscribe("test", func(ev bus.Event) { got <- ev })

	m := NewModerator(testConfig(), buffers, cls, newMemStore(), events)
	seedChannel(buffers, "c1")
	m.Check(context.Background(), "c1")

	select {
	case ev := <-got:
		if ev.Name != "moderation.flagged" {
			t.Fatalf("event name = %q", ev.Name)
		}
	default:
		t.Fatal("no flag event broadcast")
	}
}

func TestLowConfidenceBelowThresholdIsDropped(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	outcomes := newMemStore()
	cls := &fakeClassifier{flagResp: "<result>[1:low]</result>"}

	cfg := testConfig()
	cfg.Moderation.Confidence = "high"
	m := NewModerator(cfg, buffers, cls, outcomes, events)
	seedChannel(buffers, "c1")

	m.Check(context.Background(), "c1")

	if outcomes.len() != 0 {
		t.Fatal("low-confidence flag was recorded against a high threshold")
	}
	if acts := drainOutbound(t, events); len(acts) != 0 {
		t.Fatalf("low-confidence flag produced side effects: %+v", acts)
	}
}

func TestUnparseableResponseAbortsWithoutMutation(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	outcomes := newMemStore()
	cls := &fakeClassifier{flagResp: "messages 1 and 2 seem rude"}

	m := NewModerator(testConfig(), buffers, cls, outcomes, events)
	seedChannel(buffers, "c1")
	m.Check(context.Background(), "c1")

	if outcomes.len() != 0 {
		t.Fatal("unparseable response mutated the store")
	}
	if acts := drainOutbound(t, events); len(acts) != 0 {
		t.Fatalf("unparseable response produced side effects: %+v", acts)
	}
}

func TestRepeatedFlagDedupsOnMessageIdentity(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	outcomes := newMemStore()
	cls := &fakeClassifier{flagResp: "<result>[1:high]</result>"}

	m := NewModerator(testConfig(), buffers, cls, outcomes, events)
	buf := seedChannel(buffers, "c1")
	m.Check(context.Background(), "c1")

	// new chatter arrives; the next pass re-includes bob's group as context
	// and the model flags it again
	buf.Append(bus.Message{ID: "m4", ChannelID: "c1", AuthorID: "carol", AuthorName: "carol",
		Content: "looks fine to me", CreatedAt: time.Now()})
	m.Check(context.Background(), "c1")

	if got := outcomes.len(); got != 1 {
		t.Fatalf("store holds %d records after re-flag, want 1", got)
	}
	if acts := drainOutbound(t, events); len(acts) != 1 {
		t.Fatalf("re-flag produced %d outbound actions, want 1", len(acts))
	}
}

func TestReplyModeGeneratesFeedback(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	cls := &fakeClassifier{
		flagResp: "<result>[1:high]</result>",
		feedback: "<response>Hey bob, try pairing critique with suggestions.</response>",
	}

	cfg := testConfig()
	cfg.Moderation.RespondMode = config.RespondReply
	m := NewModerator(cfg, buffers, cls, newMemStore(), events)
	seedChannel(buffers, "c1")
	m.Check(context.Background(), "c1")

	acts := drainOutbound(t, events)
	if len(acts) != 1 {
		t.Fatalf("got %d outbound actions, want 1", len(acts))
	}
	if acts[0].Content != "Hey bob, try pairing critique with suggestions." {
		t.Fatalf("feedback content = %q", acts[0].Content)
	}
	if acts[0].ReplyToID != "m3" {
		t.Fatalf("feedback replies to %q, want the group's newest message m3", acts[0].ReplyToID)
	}
}

func TestWaivedAuthorIsNeverFlagged(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	outcomes := newMemStore()
	cls := &fakeClassifier{flagResp: "<result>[1:high]</result>"}

	m := NewModerator(testConfig(), buffers, cls, outcomes, events)
	buf := buffers.GetOrCreate("c1")
	base := time.Now().Add(-time.Minute)
	buf.Append(bus.Message{ID: "m1", AuthorID: "alice", AuthorName: "alice",
		Content: "my build", CreatedAt: base})
	buf.Append(bus.Message{ID: "m2", AuthorID: "bob", AuthorName: "bob", Roles: []string{"Waiver"},
		Content: "where efficacy", CreatedAt: base.Add(time.Second)})

	m.Check(context.Background(), "c1")

	if outcomes.len() != 0 {
		t.Fatal("flag recorded against a waived author")
	}
}

func TestGateSerializesChecks(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	outcomes := newMemStore()
	cls := &fakeClassifier{flagResp: "<result>[]</result>", block: make(chan struct{})}

	m := NewModerator(testConfig(), buffers, cls, outcomes, events)
	m.retryDelay = 10 * time.Millisecond

	for _, ch := range []string{"c1", "c2", "c3"} {
		seedChannel(buffers, ch)
	}
	for _, ch := range []string{"c1", "c2", "c3"} {
		go m.Check(context.Background(), ch)
	}

	time.Sleep(50 * time.Millisecond)
	close(cls.block)

	deadline := time.After(3 * time.Second)
	for cls.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d checks completed, want 3", cls.calls.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if got := cls.maxInFlight.Load(); got != 1 {
		t.Fatalf("max concurrent classifier calls = %d, want 1", got)
	}
	if got := outcomes.len(); got != 0 {
		t.Fatalf("empty result lists produced %d records", got)
	}
}

func TestCheckSkipsRightAfterOwnReply(t *testing.T) {
	buffers := history.NewManager(50)
	events := bus.NewEventBus()
	defer events.Close()
	cls := &fakeClassifier{flagResp: "<result>[]</result>"}

	m := NewModerator(testConfig(), buffers, cls, newMemStore(), events)
	m.SetBotID("sentinel-bot")

	buf := seedChannel(buffers, "c1")
	buf.Append(bus.Message{ID: "m4", AuthorID: "sentinel-bot", AuthorName: "sentinel",
		Content: "please keep it constructive", CreatedAt: time.Now()})

	m.Check(context.Background(), "c1")
	if cls.calls.Load() != 0 {
		t.Fatal("check called the classifier right after the bot's own reply")
	}
}
