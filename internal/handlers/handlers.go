// Package handlers holds the built-in bot commands.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/dispatcher"
	"github.com/crystaldolphin/dolphinbot/internal/router"
)

// MenuPrefix prefixes the callback data of main menu buttons.
const MenuPrefix = "menu:"

// Status exposes runtime counters for /status. *dispatcher.Dispatcher
// implements it.
type Status interface {
	Stats() dispatcher.Stats
	Uptime() time.Duration
}

type builtins struct {
	routes *router.Registry
	status Status
}

// Register adds the built-in routes to routes.
func Register(routes *router.Registry, status Status) error {
	b := &builtins{routes: routes, status: status}
	return errors.Join(
		routes.Command("start", router.HandlerFunc(b.start), router.Describe("Show the main menu")),
		routes.Command("help", router.HandlerFunc(b.help), router.Describe("List available commands")),
		routes.Command("ping", router.HandlerFunc(b.ping), router.Describe("Check that the bot is alive")),
		routes.Command("status", router.HandlerFunc(b.statusReport), router.Describe("Show uptime and counters"), router.AdminOnly()),
		routes.Callback(MenuPrefix, router.HandlerFunc(b.menu)),
		routes.Kind(bus.KindScheduled, router.HandlerFunc(b.scheduled)),
		routes.Kind(bus.KindLocation, router.HandlerFunc(b.location)),
	)
}

func mainMenu() [][]bus.Button {
	return [][]bus.Button{
		{{Text: "❓ Help", Data: MenuPrefix + "help"}, {Text: "🏓 Ping", Data: MenuPrefix + "ping"}},
	}
}

func (b *builtins) start(_ context.Context, upd bus.Update) (*router.Response, error) {
	name := upd.MetaString("first_name")
	if name == "" {
		name = upd.SenderName
	}
	greeting := "Welcome! 👋"
	if name != "" {
		greeting = fmt.Sprintf("Welcome, %s! 👋", name)
	}
	return &router.Response{
		Text:    greeting + "\nChoose an action:",
		Buttons: mainMenu(),
	}, nil
}

func (b *builtins) help(context.Context, bus.Update) (*router.Response, error) {
	return router.Text(b.helpText()), nil
}

func (b *builtins) helpText() string {
	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, r := range b.routes.Commands() {
		fmt.Fprintf(&sb, "/%s - %s", r.Pattern, r.Description)
		if r.AdminOnly {
			sb.WriteString(" (admin)")
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *builtins) ping(context.Context, bus.Update) (*router.Response, error) {
	return &router.Response{Text: "pong", Reply: true}, nil
}

func (b *builtins) statusReport(context.Context, bus.Update) (*router.Response, error) {
	st := b.status.Stats()
	text := fmt.Sprintf("Uptime: %s\nHandled: %d\nFailed: %d\nUnmatched: %d\nDuplicates: %d",
		b.status.Uptime().Round(time.Second), st.Success, st.HandlerError, st.NoMatch, st.Deduplicated)
	return router.Text(text), nil
}

func (b *builtins) menu(ctx context.Context, upd bus.Update) (*router.Response, error) {
	var (
		resp *router.Response
		err  error
	)
	switch item := strings.TrimPrefix(upd.CallbackData, MenuPrefix); item {
	case "help":
		resp, err = b.help(ctx, upd)
	case "ping":
		resp, err = b.ping(ctx, upd)
	default:
		return &router.Response{CallbackText: "This option is no longer available"}, nil
	}
	if err != nil {
		return nil, err
	}
	resp.Reply = false
	resp.CallbackText = "✅"
	return resp, nil
}

// scheduled delivers the job's text. Jobs configured with a command only
// fall back to a generic notice.
func (b *builtins) scheduled(_ context.Context, upd bus.Update) (*router.Response, error) {
	if upd.Text != "" {
		return router.Text(upd.Text), nil
	}
	return router.Text(fmt.Sprintf("⏰ Scheduled job %s", upd.MetaString("job"))), nil
}

func (b *builtins) location(_ context.Context, upd bus.Update) (*router.Response, error) {
	lat, lon := upd.Metadata["latitude"], upd.Metadata["longitude"]
	if lat == nil || lon == nil {
		return nil, errors.New("location update without coordinates")
	}
	return &router.Response{
		Text:  fmt.Sprintf("📍 Got your location: %v, %v", lat, lon),
		Reply: true,
	}, nil
}
