package history

import (
	"log/slog"
	"sync"

	"github.com/buildersguild/sentinel/internal/bus"
)

// Manager owns one Buffer per watched channel. Threads get their own buffer,
// seeded from the parent channel when they are created, and are dropped when
// archived.
type Manager struct {
	capacity int
	buffers  map[string]*Buffer
	mu       sync.RWMutex
}

func NewManager(capacity int) *Manager {
	return &Manager{
		capacity: capacity,
		buffers:  make(map[string]*Buffer),
	}
}

func (m *Manager) Get(channelID string) (*Buffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.buffers[channelID]
	return buf, ok
}

func (m *Manager) GetOrCreate(channelID string) *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok := m.buffers[channelID]; ok {
		return buf
	}
	buf := NewBuffer(channelID, m.capacity)
	m.buffers[channelID] = buf
	return buf
}

// CreateSeeded makes a buffer preloaded with inherited context. If the
// channel already has a buffer the seed is ignored.
func (m *Manager) CreateSeeded(channelID string, seed []bus.Message) *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok := m.buffers[channelID]; ok {
		return buf
	}
	buf := NewBuffer(channelID, m.capacity)
	buf.Seed(seed)
	m.buffers[channelID] = buf
	slog.Debug("seeded channel buffer", "channel_id", channelID, "seed", len(seed))
	return buf
}

// Remove drops a channel's buffer, e.g. when a thread is archived.
func (m *Manager) Remove(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, channelID)
}

// ChannelIDs returns the channels that currently hold a buffer.
func (m *Manager) ChannelIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	return ids
}
