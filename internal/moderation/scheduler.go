package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/buildersguild/sentinel/internal/history"
)

// CheckFunc runs a moderation check for one channel.
type CheckFunc func(ctx context.Context, channelID string)

// channelState is the per-channel debounce state machine: idle when no poll
// loop is running, armed(deadline) while one is. Rearming replaces the
// deadline; the poll loop re-reads it, so only one logical timer exists per
// channel.
type channelState struct {
	deadline time.Time
	running  bool
	mu       sync.Mutex
}

// Scheduler coalesces bursts of channel activity into single deferred
// checks. Every new message pushes the channel's deadline out by the quiet
// period; once the threshold of unchecked messages is crossed the check
// fires immediately instead.
type Scheduler struct {
	buffers      *history.Manager
	check        CheckFunc
	quiet        func() time.Duration
	threshold    func() int
	pollInterval time.Duration

	states map[string]*channelState
	mu     sync.Mutex
}

const defaultPollInterval = time.Second

func NewScheduler(buffers *history.Manager, check CheckFunc, quiet func() time.Duration, threshold func() int) *Scheduler {
	return &Scheduler{
		buffers:      buffers,
		check:        check,
		quiet:        quiet,
		threshold:    threshold,
		pollInterval: defaultPollInterval,
		states:       make(map[string]*channelState),
	}
}

func (s *Scheduler) state(channelID string) *channelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[channelID]
	if !ok {
		st = &channelState{}
		s.states[channelID] = st
	}
	return st
}

// Forget drops a channel's debounce state, e.g. when its thread is archived.
// An in-flight poll loop notices the missing buffer and abandons silently.
func (s *Scheduler) Forget(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, channelID)
}

// OnMessage reacts to a new message in a channel: fire the check right away
// when the dirty count crosses the threshold, otherwise arm or rearm the
// quiet-period deadline.
func (s *Scheduler) OnMessage(ctx context.Context, channelID string) {
	buf, ok := s.buffers.Get(channelID)
	if !ok {
		return
	}

	if threshold := s.threshold(); threshold > 0 && buf.MessagesSinceCheck() >= threshold {
		go s.check(ctx, channelID)
		return
	}

	st := s.state(channelID)
	st.mu.Lock()
	st.deadline = time.Now().Add(s.quiet())
	if !st.running {
		st.running = true
		go s.pollLoop(ctx, channelID, st)
	}
	st.mu.Unlock()
}

// pollLoop sleeps until the channel's deadline passes without being pushed
// further out, then fires the check if anything is unchecked. The deadline
// is re-read each iteration rather than cancelling timers, so a rearm is
// just a write. The running flag is cleared under the same lock that
// OnMessage uses to decide whether to spawn a new loop, closing the
// rearm-vs-exit race; each exit path clears it exactly once, so a stale
// loop can never stomp the flag of a successor.
func (s *Scheduler) pollLoop(ctx context.Context, channelID string, st *channelState) {
	release := func() {
		st.mu.Lock()
		st.running = false
		st.mu.Unlock()
	}

	for {
		for {
			st.mu.Lock()
			deadline := st.deadline
			st.mu.Unlock()

			wait := time.Until(deadline)
			if wait <= 0 {
				break
			}
			if wait > s.pollInterval {
				wait = s.pollInterval
			}
			select {
			case <-ctx.Done():
				release()
				return
			case <-time.After(wait):
			}
		}

		buf, ok := s.buffers.Get(channelID)
		if !ok {
			release() // channel torn down mid-wait
			return
		}
		if buf.MessagesSinceCheck() > 0 {
			s.check(ctx, channelID)
		}

		st.mu.Lock()
		if time.Now().Before(st.deadline) {
			// rearmed while the check ran, keep the loop alive
			st.mu.Unlock()
			continue
		}
		st.running = false
		st.mu.Unlock()
		return
	}
}
