package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus decouples transport channels from the processing loop. Inbound
// events are consumed by the gateway; outbound messages are fanned out to
// the handler registered for their channel name.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu       sync.RWMutex
	handlers map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:  make(chan InboundMessage, bufSize),
		Outbound: make(chan OutboundMessage, bufSize),
		handlers: make(map[string]func(OutboundMessage)),
	}
}

// SubscribeOutbound registers the send callback for a channel name. The
// last registration for a name wins.
func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = fn
}

// DispatchOutbound drains the outbound queue until ctx is cancelled. Each
// message runs through its handler synchronously; a missing handler is
// logged and dropped rather than blocking the queue.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			fn := b.handlers[msg.Channel]
			b.mu.RUnlock()
			if fn == nil {
				log.Printf("[bus] no outbound handler for channel %q, dropping", msg.Channel)
				continue
			}
			fn(msg)
		case <-ctx.Done():
			return
		}
	}
}
