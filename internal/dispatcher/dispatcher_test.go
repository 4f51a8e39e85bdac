package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/dedup"
	"github.com/crystaldolphin/dolphinbot/internal/router"
)

func newTestDispatcher(t *testing.T, opts Options) (*Dispatcher, *router.Registry, *bus.OutboundBus) {
	t.Helper()
	routes := router.NewRegistry()
	out := bus.NewOutboundBus(100)
	return New(dedup.New(100, time.Hour), routes, out, opts), routes, out
}

func command(id, chat, cmd string) bus.Update {
	return bus.Update{
		ID:        id,
		Platform:  bus.PlatformTelegram,
		Kind:      bus.KindCommand,
		ChatID:    chat,
		SenderID:  "7",
		MessageID: "m" + id,
		Text:      "/" + cmd,
		Command:   cmd,
	}
}

func mustRoute(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func drainOne(t *testing.T, out *bus.OutboundBus) bus.OutboundMessage {
	t.Helper()
	select {
	case msg := <-out.Subscribe():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no outbound message")
		return bus.OutboundMessage{}
	}
}

func TestDispatch_SuccessPublishesReply(t *testing.T) {
	d, routes, out := newTestDispatcher(t, Options{})
	mustRoute(t, routes.Command("start", router.HandlerFunc(func(_ context.Context, upd bus.Update) (*router.Response, error) {
		return &router.Response{Text: "hello " + upd.SenderID, Reply: true}, nil
	})))

	res := d.Dispatch(context.Background(), command("1", "42", "start"))
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v, err = %v", res.Outcome, res.Err)
	}
	if res.Route != "command:start" || res.DispatchID == "" || res.UpdateKey != "telegram:1" {
		t.Errorf("unexpected result %+v", res)
	}

	msg := drainOne(t, out)
	if msg.ChatID() != "42" || msg.Content() != "hello 7" || msg.ReplyTo() != "m1" {
		t.Errorf("unexpected reply %+v", msg)
	}
	if out.Len() != 0 {
		t.Errorf("expected exactly one reply, %d left", out.Len())
	}
}

func TestDispatch_EmptyResponseSendsNothing(t *testing.T) {
	d, routes, out := newTestDispatcher(t, Options{})
	mustRoute(t, routes.Command("quiet", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		return nil, nil
	})))

	if res := d.Dispatch(context.Background(), command("1", "42", "quiet")); res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if out.Len() != 0 {
		t.Errorf("expected no reply, got %d", out.Len())
	}
}

func TestDispatch_Deduplicated(t *testing.T) {
	d, routes, out := newTestDispatcher(t, Options{})
	var calls atomic.Int32
	mustRoute(t, routes.Command("start", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		calls.Add(1)
		return router.Text("hi"), nil
	})))

	upd := command("5", "42", "start")
	if res := d.Dispatch(context.Background(), upd); res.Outcome != OutcomeSuccess {
		t.Fatalf("first outcome = %v", res.Outcome)
	}
	if res := d.Dispatch(context.Background(), upd); res.Outcome != OutcomeDeduplicated {
		t.Fatalf("second outcome = %v", res.Outcome)
	}
	if calls.Load() != 1 {
		t.Errorf("handler called %d times", calls.Load())
	}
	if out.Len() != 1 {
		t.Errorf("expected one reply, got %d", out.Len())
	}

	// Same ID on another platform is a different update.
	other := upd
	other.Platform = bus.PlatformSlack
	if res := d.Dispatch(context.Background(), other); res.Outcome != OutcomeSuccess {
		t.Errorf("slack copy outcome = %v", res.Outcome)
	}
}

func TestDispatch_ConcurrentCopiesDispatchOnce(t *testing.T) {
	d, routes, _ := newTestDispatcher(t, Options{})
	var calls atomic.Int32
	mustRoute(t, routes.Command("start", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		calls.Add(1)
		return nil, nil
	})))

	const n = 50
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Dispatch(context.Background(), command("9", "42", "start"))
		}(i)
	}
	wg.Wait()

	var dispatched, deduped int
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSuccess:
			dispatched++
		case OutcomeDeduplicated:
			deduped++
		}
	}
	if dispatched != 1 || deduped != n-1 {
		t.Errorf("dispatched=%d deduped=%d", dispatched, deduped)
	}
	if calls.Load() != 1 {
		t.Errorf("handler called %d times", calls.Load())
	}
	if s := d.Stats(); s.Success != 1 || s.Deduplicated != n-1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestDispatch_NoMatch(t *testing.T) {
	d, _, out := newTestDispatcher(t, Options{})
	if res := d.Dispatch(context.Background(), command("1", "42", "nope")); res.Outcome != OutcomeNoMatch {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if out.Len() != 0 {
		t.Error("no reply expected without NoMatchReply")
	}

	d, _, out = newTestDispatcher(t, Options{NoMatchReply: "Unknown command."})
	d.Dispatch(context.Background(), command("1", "42", "nope"))
	if msg := drainOne(t, out); msg.Content() != "Unknown command." {
		t.Errorf("reply = %q", msg.Content())
	}

	// Plain messages never get the unknown-command reply.
	d.Dispatch(context.Background(), bus.Update{ID: "2", Platform: bus.PlatformTelegram, Kind: bus.KindMessage, ChatID: "42", Text: "hey"})
	if out.Len() != 0 {
		t.Error("unexpected reply to plain message")
	}
}

func TestDispatch_HandlerErrorIsIsolated(t *testing.T) {
	d, routes, out := newTestDispatcher(t, Options{FallbackReply: "Something went wrong."})
	boom := errors.New("boom")
	mustRoute(t, routes.Command("fail", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		return nil, boom
	})))
	mustRoute(t, routes.Command("ok", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		return router.Text("fine"), nil
	})))

	res := d.Dispatch(context.Background(), command("1", "42", "fail"))
	if res.Outcome != OutcomeHandlerError || !errors.Is(res.Err, boom) {
		t.Fatalf("outcome = %v err = %v", res.Outcome, res.Err)
	}
	if res.Err.Route != "command:fail" {
		t.Errorf("route = %q", res.Err.Route)
	}
	if msg := drainOne(t, out); msg.Content() != "Something went wrong." {
		t.Errorf("fallback = %q", msg.Content())
	}

	if res := d.Dispatch(context.Background(), command("2", "42", "ok")); res.Outcome != OutcomeSuccess {
		t.Errorf("next update outcome = %v", res.Outcome)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	d, routes, _ := newTestDispatcher(t, Options{HandlerTimeout: 20 * time.Millisecond})
	mustRoute(t, routes.Command("slow", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		time.Sleep(500 * time.Millisecond) // ignores ctx on purpose
		return router.Text("late"), nil
	})))

	start := time.Now()
	res := d.Dispatch(context.Background(), command("1", "42", "slow"))
	if !errors.Is(res.Err, ErrHandlerTimeout) {
		t.Fatalf("err = %v", res.Err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("dispatch waited %s for a timed-out handler", elapsed)
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	d, routes, _ := newTestDispatcher(t, Options{})
	mustRoute(t, routes.Command("panic", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		panic("kaboom")
	})))

	res := d.Dispatch(context.Background(), command("1", "42", "panic"))
	if res.Outcome != OutcomeHandlerError || !errors.Is(res.Err, ErrHandlerPanic) {
		t.Fatalf("outcome = %v err = %v", res.Outcome, res.Err)
	}
}

func TestDispatch_AdminOnly(t *testing.T) {
	d, routes, out := newTestDispatcher(t, Options{Admins: []string{"1", "boss"}, ForbiddenReply: "Admins only."})
	var calls atomic.Int32
	mustRoute(t, routes.Command("status", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		calls.Add(1)
		return router.Text("ok"), nil
	}), router.AdminOnly()))

	res := d.Dispatch(context.Background(), command("1", "42", "status"))
	if !errors.Is(res.Err, ErrForbidden) {
		t.Fatalf("err = %v", res.Err)
	}
	if msg := drainOne(t, out); msg.Content() != "Admins only." {
		t.Errorf("reply = %q", msg.Content())
	}

	byID := command("2", "42", "status")
	byID.SenderID = "1"
	if res := d.Dispatch(context.Background(), byID); res.Outcome != OutcomeSuccess {
		t.Errorf("admin by id outcome = %v", res.Outcome)
	}
	byName := command("3", "42", "status")
	byName.SenderName = "boss"
	if res := d.Dispatch(context.Background(), byName); res.Outcome != OutcomeSuccess {
		t.Errorf("admin by name outcome = %v", res.Outcome)
	}
	if calls.Load() != 2 {
		t.Errorf("handler called %d times", calls.Load())
	}
}

func TestDispatch_CallbackReplyCarriesMetadata(t *testing.T) {
	d, routes, out := newTestDispatcher(t, Options{})
	mustRoute(t, routes.Callback("menu:", router.HandlerFunc(func(context.Context, bus.Update) (*router.Response, error) {
		return &router.Response{
			Text:         "Help text",
			CallbackText: "Opening help",
			Buttons:      [][]bus.Button{{{Text: "Back", Data: "menu:home"}}},
		}, nil
	})))

	upd := bus.Update{
		ID:           "c1",
		Platform:     bus.PlatformTelegram,
		Kind:         bus.KindCallback,
		ChatID:       "42",
		CallbackData: "menu:help",
		Metadata:     map[string]any{"callback_id": "cbq-1"},
	}
	if res := d.Dispatch(context.Background(), upd); res.Route != "callback:menu:*" {
		t.Fatalf("route = %q", res.Route)
	}

	msg := drainOne(t, out)
	if msg.MetaString("callback_id") != "cbq-1" || msg.MetaString("callback_text") != "Opening help" {
		t.Errorf("metadata = %v", msg.Metadata())
	}
	if len(msg.Buttons()) != 1 {
		t.Errorf("buttons = %v", msg.Buttons())
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeNoMatch.String() != "no_match" || Outcome(0).String() != "unknown" {
		t.Error("unexpected outcome names")
	}
	if OutcomeNoMatch.Dispatched() || !OutcomeHandlerError.Dispatched() {
		t.Error("unexpected Dispatched()")
	}
}
