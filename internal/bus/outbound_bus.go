package bus

import "context"

// OutboundBus carries replies from the dispatcher → outbound gateway.
// The dispatcher calls Publish; the gateway reads via Subscribe.
type OutboundBus struct {
	ch chan OutboundMessage
}

func NewOutboundBus(bufSize int) *OutboundBus {
	return &OutboundBus{ch: make(chan OutboundMessage, bufSize)}
}

// Publish hands a reply to the gateway. It blocks while the buffer is full
// and gives up when ctx is done.
func (b *OutboundBus) Publish(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a receive-only view of the outbound channel.
func (b *OutboundBus) Subscribe() <-chan OutboundMessage {
	return b.ch
}

// Len reports the number of replies waiting for delivery.
func (b *OutboundBus) Len() int { return len(b.ch) }
