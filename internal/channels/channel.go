// Package channels provides the platform abstraction layer. A channel
// connects an external chat platform to the moderation core via the event
// bus; Discord is the only implementation today but the core never imports
// it directly.
package channels

import (
	"context"

	"github.com/buildersguild/sentinel/internal/bus"
)

// Channel is the interface every platform implementation satisfies.
type Channel interface {
	// Name returns the channel identifier, e.g. "discord".
	Name() string

	// Start opens the platform connection. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts the connection down.
	Stop(ctx context.Context) error

	// Send performs one outbound action (message, reply or reaction).
	Send(ctx context.Context, act bus.OutboundAction) error

	// IsRunning reports whether the channel is processing events.
	IsRunning() bool
}

// BaseChannel provides the shared plumbing channel implementations embed.
type BaseChannel struct {
	name    string
	bus     *bus.EventBus
	running bool
}

func NewBaseChannel(name string, eventBus *bus.EventBus) *BaseChannel {
	return &BaseChannel{name: name, bus: eventBus}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running }

func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the event bus reference.
func (c *BaseChannel) Bus() *bus.EventBus { return c.bus }

// Publish forwards an inbound event, stamping the channel name.
func (c *BaseChannel) Publish(ev bus.ChatEvent) {
	ev.Channel = c.name
	c.bus.PublishInbound(ev)
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
