// Package channel connects messaging transports to the bus. Each channel
// turns its platform's updates into bus.InboundMessage values and renders
// bus.OutboundMessage values back onto the platform.
package channel

import (
	"context"

	"github.com/hamyarlab/yadavar/internal/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries the pieces every channel shares: its name, the bus it
// publishes inbound messages to, and an optional sender allow-list.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	var allow map[string]bool
	if len(allowFrom) > 0 {
		allow = make(map[string]bool, len(allowFrom))
		for _, id := range allowFrom {
			allow[id] = true
		}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allow}
}

func (b *BaseChannel) Name() string { return b.name }

// IsAllowed reports whether senderID may talk to the bot. An empty
// allow-list admits everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if b.allowFrom == nil {
		return true
	}
	return b.allowFrom[senderID]
}
