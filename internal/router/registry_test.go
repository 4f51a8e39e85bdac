package router

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
)

func named(name string) Handler {
	return HandlerFunc(func(context.Context, bus.Update) (*Response, error) {
		return Text(name), nil
	})
}

func respond(t *testing.T, route Route) string {
	t.Helper()
	resp, err := route.Handler.Handle(context.Background(), bus.Update{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return resp.Text
}

func TestMatch_Command(t *testing.T) {
	r := NewRegistry()
	if err := r.Command("/start", named("start")); err != nil {
		t.Fatal(err)
	}

	route, ok := r.Match(bus.Update{Kind: bus.KindCommand, Command: "start"})
	if !ok {
		t.Fatal("expected /start to match")
	}
	if got := respond(t, route); got != "start" {
		t.Errorf("matched %q", got)
	}
	if route.Name() != "command:start" {
		t.Errorf("Name() = %q", route.Name())
	}

	if _, ok := r.Match(bus.Update{Kind: bus.KindCommand, Command: "stop"}); ok {
		t.Error("unexpected match for /stop")
	}
	if _, ok := r.Match(bus.Update{Kind: bus.KindMessage, Text: "start"}); ok {
		t.Error("command route matched a plain message")
	}
}

func TestMatch_MostSpecificWins(t *testing.T) {
	r := NewRegistry()
	mustHandle(t, r.Kind(bus.KindCallback, named("any")))
	mustHandle(t, r.Callback("tz_", named("tz")))
	mustHandle(t, r.Callback("tz_Europe/", named("tz-europe")))
	mustHandle(t, r.Handle(Route{Kind: bus.KindCallback, Match: MatchExact, Pattern: "tz_UTC", Handler: named("utc")}))

	tests := []struct {
		data string
		want string
	}{
		{"tz_UTC", "utc"},
		{"tz_Europe/Moscow", "tz-europe"},
		{"tz_Asia/Tokyo", "tz"},
		{"send_location", "any"},
	}
	for _, tt := range tests {
		route, ok := r.Match(bus.Update{Kind: bus.KindCallback, CallbackData: tt.data})
		if !ok {
			t.Fatalf("%q: no match", tt.data)
		}
		if got := respond(t, route); got != tt.want {
			t.Errorf("%q matched %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestMatch_LongerPrefixWinsRegardlessOfOrder(t *testing.T) {
	r := NewRegistry()
	mustHandle(t, r.Callback("a", named("short")))
	mustHandle(t, r.Callback("ab", named("long")))
	mustHandle(t, r.Callback("ac", named("other")))

	route, _ := r.Match(bus.Update{Kind: bus.KindCallback, CallbackData: "abc"})
	if got := respond(t, route); got != "long" {
		t.Errorf("got %q", got)
	}
}

func TestHandle_RejectsDuplicatesAndInvalid(t *testing.T) {
	r := NewRegistry()
	mustHandle(t, r.Command("help", named("a")))

	if err := r.Command("/HELP", named("b")); !errors.Is(err, ErrDuplicateRoute) {
		t.Errorf("expected ErrDuplicateRoute, got %v", err)
	}
	if err := r.Command("ping", nil); !errors.Is(err, ErrInvalidRoute) {
		t.Errorf("expected ErrInvalidRoute for nil handler, got %v", err)
	}
	if err := r.Handle(Route{Kind: bus.KindCallback, Match: MatchPrefix, Handler: named("x")}); !errors.Is(err, ErrInvalidRoute) {
		t.Errorf("expected ErrInvalidRoute for empty prefix, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestMatch_TextAndScheduled(t *testing.T) {
	r := NewRegistry()
	mustHandle(t, r.Text("🏠 Main menu", named("menu")))
	mustHandle(t, r.Handle(Route{Kind: bus.KindScheduled, Match: MatchExact, Pattern: "daily", Handler: named("daily")}))

	route, ok := r.Match(bus.Update{Kind: bus.KindMessage, Text: " 🏠 Main menu "})
	if !ok || respond(t, route) != "menu" {
		t.Error("text route did not match trimmed text")
	}
	route, ok = r.Match(bus.Update{Kind: bus.KindScheduled, Command: "daily"})
	if !ok || respond(t, route) != "daily" {
		t.Error("scheduled route did not match")
	}
}

func TestCommands_ListsDescribedRoutes(t *testing.T) {
	r := NewRegistry()
	mustHandle(t, r.Command("start", named("start"), Describe("Start the bot")))
	mustHandle(t, r.Command("hidden", named("hidden")))
	mustHandle(t, r.Command("help", named("help"), Describe("Show help")))
	mustHandle(t, r.Command("status", named("status"), Describe("Bot status"), AdminOnly()))

	var got []string
	for _, c := range r.Commands() {
		got = append(got, c.Pattern)
	}
	want := []string{"help", "start", "status"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Commands() mismatch (-want +got):\n%s", diff)
	}

	route, _ := r.Match(bus.Update{Kind: bus.KindCommand, Command: "status"})
	if !route.AdminOnly {
		t.Error("expected status route to be admin only")
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		upd  bus.Update
		want string
	}{
		{bus.Update{Kind: bus.KindCommand, Command: "start", Text: "/start x"}, "start"},
		{bus.Update{Kind: bus.KindCallback, CallbackData: "menu:help"}, "menu:help"},
		{bus.Update{Kind: bus.KindMessage, Text: " hi "}, "hi"},
		{bus.Update{Kind: bus.KindLocation, Text: "ignored"}, ""},
	}
	for _, tt := range tests {
		if got := Subject(tt.upd); got != tt.want {
			t.Errorf("Subject(%v) = %q, want %q", tt.upd.Kind, got, tt.want)
		}
	}
}

func mustHandle(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
