// Package gateway delivers replies from the outbound bus to the platforms.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	gwconfig "github.com/crystaldolphin/dolphinbot/internal/config/gateway"
)

// ErrUnknownPlatform is returned for messages addressed to a platform with
// no registered sender.
var ErrUnknownPlatform = errors.New("no sender for platform")

const flushTimeout = 5 * time.Second

// Sender delivers a message to one platform.
type Sender interface {
	Platform() bus.Platform
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// DeliveryError reports a message that could not be delivered.
type DeliveryError struct {
	Platform bus.Platform
	ChatID   string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s after %d attempt(s): %v", bus.RoutingKey(e.Platform, e.ChatID), e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Gateway routes outbound messages to senders with rate limiting and retries.
type Gateway struct {
	outbound *bus.OutboundBus
	senders  map[bus.Platform]Sender
	limiters map[bus.Platform]*rate.Limiter
	cfg      gwconfig.GatewayConfig

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Gateway reading from outbound.
func New(cfg *gwconfig.GatewayConfig, outbound *bus.OutboundBus, senders ...Sender) *Gateway {
	c := *cfg
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}

	g := &Gateway{
		outbound: outbound,
		senders:  make(map[bus.Platform]Sender, len(senders)),
		limiters: make(map[bus.Platform]*rate.Limiter, len(senders)),
		cfg:      c,
	}
	for _, s := range senders {
		g.senders[s.Platform()] = s
		limit := rate.Inf
		if c.RatePerSec > 0 {
			limit = rate.Limit(c.RatePerSec)
		}
		g.limiters[s.Platform()] = rate.NewLimiter(limit, max(c.Burst, 1))
		slog.Info("sender enabled", "platform", s.Platform())
	}
	return g
}

// Run delivers messages from the outbound bus until ctx is cancelled, then
// flushes what is still buffered.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-g.outbound.Subscribe():
			g.deliverAndLog(ctx, msg)
		case <-ctx.Done():
			g.flush()
			return nil
		}
	}
}

func (g *Gateway) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case msg := <-g.outbound.Subscribe():
			g.deliverAndLog(ctx, msg)
		default:
			return
		}
	}
}

func (g *Gateway) deliverAndLog(ctx context.Context, msg bus.OutboundMessage) {
	if err := g.Deliver(ctx, msg); err != nil {
		slog.Error("send error", "platform", msg.Platform(), "chat", msg.ChatID(), "err", err)
	}
}

// Deliver sends msg, retrying transient failures with exponential backoff.
func (g *Gateway) Deliver(ctx context.Context, msg bus.OutboundMessage) error {
	sender, ok := g.senders[msg.Platform()]
	if !ok {
		g.failed.Add(1)
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, msg.Platform())
	}
	limiter := g.limiters[msg.Platform()]

	delay := g.cfg.BaseDelay
	attempt := 0
	var err error
	for attempt < g.cfg.MaxAttempts {
		attempt++
		if werr := limiter.Wait(ctx); werr != nil {
			err = werr
			break
		}
		if err = sender.Send(ctx, msg); err == nil {
			g.delivered.Add(1)
			return nil
		}
		if isPermanent(err) || attempt == g.cfg.MaxAttempts {
			break
		}

		wait := max(delay, retryAfterOf(err))
		slog.Warn("send failed, retrying", "platform", msg.Platform(), "chat", msg.ChatID(),
			"attempt", attempt, "wait", wait, "err", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			err = ctx.Err()
			g.failed.Add(1)
			return &DeliveryError{Platform: msg.Platform(), ChatID: msg.ChatID(), Attempts: attempt, Err: err}
		}
		delay = min(delay*2, g.cfg.MaxDelay)
	}

	g.failed.Add(1)
	return &DeliveryError{Platform: msg.Platform(), ChatID: msg.ChatID(), Attempts: attempt, Err: err}
}

// Platforms returns the platforms with a registered sender.
func (g *Gateway) Platforms() []bus.Platform {
	out := make([]bus.Platform, 0, len(g.senders))
	for p := range g.senders {
		out = append(out, p)
	}
	return out
}

// Counts returns the number of delivered and failed messages.
func (g *Gateway) Counts() (delivered, failed uint64) {
	return g.delivered.Load(), g.failed.Load()
}
