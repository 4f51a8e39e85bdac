// Package dispatcher routes normalized updates to handlers.
//
// Dispatch de-duplicates, looks up the most specific route, runs the
// handler under a time budget and classifies the outcome. Handler failures
// never escape Dispatch. Replies are handed to the outbound bus.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/dedup"
	"github.com/crystaldolphin/dolphinbot/internal/router"
)

const defaultHandlerTimeout = 30 * time.Second

// Outbox accepts replies for delivery. *bus.OutboundBus implements it.
type Outbox interface {
	Publish(ctx context.Context, msg bus.OutboundMessage) error
}

// Options tunes a Dispatcher. Empty reply strings disable that reply.
type Options struct {
	HandlerTimeout time.Duration
	FallbackReply  string   // sent after a handler failure
	NoMatchReply   string   // sent for unknown commands
	ForbiddenReply string   // sent when a non-admin hits an admin route
	Admins         []string // sender IDs or usernames allowed on admin routes
}

// Stats counts dispatch outcomes since start.
type Stats struct {
	Deduplicated uint64
	NoMatch      uint64
	Success      uint64
	HandlerError uint64
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	seen    *dedup.Cache
	routes  *router.Registry
	outbox  Outbox
	opts    Options
	admins  map[string]bool
	counts  [OutcomeHandlerError + 1]atomic.Uint64
	started time.Time
}

// New creates a Dispatcher.
func New(seen *dedup.Cache, routes *router.Registry, outbox Outbox, opts Options) *Dispatcher {
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = defaultHandlerTimeout
	}
	admins := make(map[string]bool, len(opts.Admins))
	for _, a := range opts.Admins {
		admins[a] = true
	}
	return &Dispatcher{
		seen:    seen,
		routes:  routes,
		outbox:  outbox,
		opts:    opts,
		admins:  admins,
		started: time.Now(),
	}
}

// Dispatch processes one update to a terminal outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, upd bus.Update) (res Result) {
	start := time.Now()
	res = Result{DispatchID: uuid.NewString(), UpdateKey: upd.Key()}
	defer func() {
		res.Duration = time.Since(start)
		d.counts[res.Outcome].Add(1)
		d.log(upd, res)
	}()

	if d.seen.Seen(upd.Key()) {
		res.Outcome = OutcomeDeduplicated
		return res
	}

	route, ok := d.routes.Match(upd)
	if !ok {
		res.Outcome = OutcomeNoMatch
		if upd.Kind == bus.KindCommand && d.opts.NoMatchReply != "" {
			d.reply(ctx, upd, router.Text(d.opts.NoMatchReply))
		}
		return res
	}
	res.Route = route.Name()

	if route.AdminOnly && !d.IsAdmin(upd) {
		res.Outcome = OutcomeHandlerError
		res.Err = &HandlerError{Route: res.Route, Err: ErrForbidden}
		if d.opts.ForbiddenReply != "" {
			d.reply(ctx, upd, router.Text(d.opts.ForbiddenReply))
		}
		return res
	}

	resp, err := d.invoke(ctx, route, upd)
	if err != nil {
		res.Outcome = OutcomeHandlerError
		res.Err = &HandlerError{Route: res.Route, Err: err}
		if d.opts.FallbackReply != "" {
			d.reply(ctx, upd, router.Text(d.opts.FallbackReply))
		}
		return res
	}

	res.Outcome = OutcomeSuccess
	if !resp.Empty() {
		d.reply(ctx, upd, resp)
	}
	return res
}

// invoke runs the handler in its own goroutine so a handler that ignores
// its context still cannot hold the lane past the timeout.
func (d *Dispatcher) invoke(ctx context.Context, route router.Route, upd bus.Update) (*router.Response, error) {
	hctx, cancel := context.WithTimeout(ctx, d.opts.HandlerTimeout)
	defer cancel()

	type outcome struct {
		resp *router.Response
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("handler panic", "route", route.Name(), "panic", r, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)}
			}
		}()
		resp, err := route.Handler.Handle(hctx, upd)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-hctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrHandlerTimeout, d.opts.HandlerTimeout)
	}
}

func (d *Dispatcher) reply(ctx context.Context, upd bus.Update, resp *router.Response) {
	md := make(map[string]any, len(upd.Metadata)+len(resp.Metadata)+1)
	for k, v := range upd.Metadata {
		md[k] = v
	}
	for k, v := range resp.Metadata {
		md[k] = v
	}
	if resp.CallbackText != "" {
		md["callback_text"] = resp.CallbackText
	}

	b := bus.NewOutboundMessageBuilder(upd.Platform, upd.ChatID, resp.Text).
		Buttons(resp.Buttons).
		Metadata(md)
	if resp.Reply {
		b.ReplyTo(upd.MessageID)
	}

	if err := d.outbox.Publish(ctx, b.Build()); err != nil {
		slog.Error("dispatch: reply dropped", "update", upd.Key(), "chat", upd.ChatID, "err", err)
	}
}

// IsAdmin reports whether the sender of upd is a configured admin.
func (d *Dispatcher) IsAdmin(upd bus.Update) bool {
	if upd.SenderID != "" && d.admins[upd.SenderID] {
		return true
	}
	return upd.SenderName != "" && d.admins[upd.SenderName]
}

// Stats returns outcome counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Deduplicated: d.counts[OutcomeDeduplicated].Load(),
		NoMatch:      d.counts[OutcomeNoMatch].Load(),
		Success:      d.counts[OutcomeSuccess].Load(),
		HandlerError: d.counts[OutcomeHandlerError].Load(),
	}
}

// Uptime returns the time since the dispatcher was created.
func (d *Dispatcher) Uptime() time.Duration {
	return time.Since(d.started)
}

func (d *Dispatcher) log(upd bus.Update, res Result) {
	attrs := []any{
		"id", res.DispatchID,
		"update", res.UpdateKey,
		"kind", upd.Kind,
		"chat", upd.ChatID,
		"outcome", res.Outcome.String(),
		"duration", res.Duration,
	}
	if res.Route != "" {
		attrs = append(attrs, "route", res.Route)
	}

	switch res.Outcome {
	case OutcomeHandlerError:
		slog.Error("dispatch failed", append(attrs, "err", res.Err)...)
	case OutcomeSuccess:
		slog.Info("dispatched", attrs...)
	default:
		slog.Debug("dispatch skipped", append(attrs, "preview", upd.Preview())...)
	}
}
