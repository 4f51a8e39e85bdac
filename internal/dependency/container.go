// Package dependency wires dolphinbot services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/slack-go/slack"
	"go.uber.org/dig"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/config"
	"github.com/crystaldolphin/dolphinbot/internal/dedup"
	"github.com/crystaldolphin/dolphinbot/internal/dispatcher"
	"github.com/crystaldolphin/dolphinbot/internal/gateway"
	"github.com/crystaldolphin/dolphinbot/internal/handlers"
	"github.com/crystaldolphin/dolphinbot/internal/heartbeat"
	"github.com/crystaldolphin/dolphinbot/internal/receiver"
	"github.com/crystaldolphin/dolphinbot/internal/router"
	"github.com/crystaldolphin/dolphinbot/internal/schedule"
	"github.com/crystaldolphin/dolphinbot/internal/server"
)

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
// Platform components are nil when the platform or mode does not use them.
type Container struct {
	cfg        *config.Config
	routes     *router.Registry
	dispatcher *dispatcher.Dispatcher
	pool       *dispatcher.Pool
	outbound   *bus.OutboundBus
	gateway    *gateway.Gateway
	scheduler  *schedule.Scheduler
	server     *server.Server
	heartbeat  *heartbeat.Service
	bot        *tgbotapi.BotAPI
	webhook    *receiver.TelegramWebhook
	poller     *receiver.TelegramPoller
	slack      *receiver.SlackEvents
}

func (c *Container) Config() *config.Config                     { return c.cfg }
func (c *Container) Routes() *router.Registry                   { return c.routes }
func (c *Container) Dispatcher() *dispatcher.Dispatcher         { return c.dispatcher }
func (c *Container) Pool() *dispatcher.Pool                     { return c.pool }
func (c *Container) Outbound() *bus.OutboundBus                 { return c.outbound }
func (c *Container) Gateway() *gateway.Gateway                  { return c.gateway }
func (c *Container) Scheduler() *schedule.Scheduler             { return c.scheduler }
func (c *Container) Server() *server.Server                     { return c.server }
func (c *Container) Heartbeat() *heartbeat.Service              { return c.heartbeat }
func (c *Container) TelegramBot() *tgbotapi.BotAPI              { return c.bot }
func (c *Container) TelegramWebhook() *receiver.TelegramWebhook { return c.webhook }
func (c *Container) TelegramPoller() *receiver.TelegramPoller   { return c.poller }
func (c *Container) SlackEvents() *receiver.SlackEvents         { return c.slack }

type services struct {
	dig.In
	Routes     *router.Registry
	Dispatcher *dispatcher.Dispatcher
	Pool       *dispatcher.Pool
	Outbound   *bus.OutboundBus
	Gateway    *gateway.Gateway
	Scheduler  *schedule.Scheduler
	Server     *server.Server
	Heartbeat  *heartbeat.Service
	Bot        *tgbotapi.BotAPI
	Webhook    *receiver.TelegramWebhook
	Poller     *receiver.TelegramPoller
	Slack      *receiver.SlackEvents
}

// New builds and wires all services from cfg. cfg must already be valid.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		newDedup,
		router.NewRegistry,
		newOutboundBus,
		newDispatcher,
		newPool,
		NewTelegramBot,
		newSlackClient,
		newGateway,
		newTelegramWebhook,
		newTelegramPoller,
		newSlackEvents,
		newScheduler,
		newServer,
		newHeartbeat,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(in services) error {
		if err := handlers.Register(in.Routes, in.Dispatcher); err != nil {
			return fmt.Errorf("register handlers: %w", err)
		}
		result = &Container{
			cfg:        cfg,
			routes:     in.Routes,
			dispatcher: in.Dispatcher,
			pool:       in.Pool,
			outbound:   in.Outbound,
			gateway:    in.Gateway,
			scheduler:  in.Scheduler,
			server:     in.Server,
			heartbeat:  in.Heartbeat,
			bot:        in.Bot,
			webhook:    in.Webhook,
			poller:     in.Poller,
			slack:      in.Slack,
		}
		return nil
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newDedup(cfg *config.Config) *dedup.Cache {
	return dedup.New(cfg.Dispatch.DedupSize, cfg.Dispatch.DedupTTL)
}

func newOutboundBus(cfg *config.Config) *bus.OutboundBus {
	return bus.NewOutboundBus(cfg.Gateway.BufferSize)
}

func newDispatcher(cfg *config.Config, seen *dedup.Cache, routes *router.Registry, out *bus.OutboundBus) *dispatcher.Dispatcher {
	return dispatcher.New(seen, routes, out, dispatcher.Options{
		HandlerTimeout: cfg.Dispatch.HandlerTimeout,
		FallbackReply:  cfg.Dispatch.FallbackReply,
		NoMatchReply:   cfg.Dispatch.NoMatchReply,
		ForbiddenReply: cfg.Dispatch.ForbiddenReply,
		Admins:         cfg.Admins,
	})
}

func newPool(cfg *config.Config, d *dispatcher.Dispatcher) *dispatcher.Pool {
	return dispatcher.NewPool(d, dispatcher.PoolOptions{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		IdleTimeout: cfg.Dispatch.IdleTimeout,
	})
}

// NewTelegramBot authenticates with getMe, so a bad token fails startup.
// It returns nil when Telegram is disabled.
func NewTelegramBot(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	tc := cfg.Channels.Telegram
	if !tc.Enabled {
		return nil, nil
	}
	endpoint := tgbotapi.APIEndpoint
	if tc.APIEndpoint != "" {
		endpoint = tc.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(tc.Token, endpoint, &http.Client{Timeout: apiTimeout(tc.PollTimeout)})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	slog.Info("telegram: authorized", "bot", bot.Self.UserName)
	return bot, nil
}

// apiTimeout leaves room for a long-poll getUpdates call to return.
func apiTimeout(pollSeconds int) time.Duration {
	return time.Duration(pollSeconds)*time.Second + 10*time.Second
}

func newSlackClient(cfg *config.Config) *slack.Client {
	sc := cfg.Channels.Slack
	if !sc.Enabled {
		return nil
	}
	var opts []slack.Option
	if sc.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(sc.APIURL))
	}
	return slack.New(sc.BotToken, opts...)
}

func newGateway(cfg *config.Config, out *bus.OutboundBus, bot *tgbotapi.BotAPI, sc *slack.Client) *gateway.Gateway {
	var senders []gateway.Sender
	if bot != nil {
		senders = append(senders, gateway.NewTelegramSender(&cfg.Channels.Telegram, bot))
	}
	if sc != nil {
		senders = append(senders, gateway.NewSlackSender(sc))
	}
	return gateway.New(&cfg.Gateway, out, senders...)
}

func newTelegramWebhook(cfg *config.Config, pool *dispatcher.Pool) *receiver.TelegramWebhook {
	if !cfg.Channels.Telegram.Enabled || cfg.Mode != config.ModeWebhook {
		return nil
	}
	return receiver.NewTelegramWebhook(&cfg.Channels.Telegram, pool)
}

func newTelegramPoller(cfg *config.Config, bot *tgbotapi.BotAPI, pool *dispatcher.Pool) *receiver.TelegramPoller {
	if bot == nil || cfg.Mode != config.ModePolling {
		return nil
	}
	return receiver.NewTelegramPoller(&cfg.Channels.Telegram, bot, pool)
}

func newSlackEvents(cfg *config.Config, pool *dispatcher.Pool) *receiver.SlackEvents {
	if !cfg.Channels.Slack.Enabled {
		return nil
	}
	return receiver.NewSlackEvents(&cfg.Channels.Slack, pool)
}

func newScheduler(cfg *config.Config, pool *dispatcher.Pool) (*schedule.Scheduler, error) {
	s := schedule.New(pool)
	for _, job := range cfg.Jobs {
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newServer(cfg *config.Config, tg *receiver.TelegramWebhook, sl *receiver.SlackEvents) *server.Server {
	s := server.New(&cfg.Server)
	receiver.RegisterRoutes(s.Router(),
		cfg.Channels.Telegram.WebhookPath, tg,
		cfg.Channels.Slack.EventsPath, sl)
	return s
}

func newHeartbeat(d *dispatcher.Dispatcher, pool *dispatcher.Pool, gw *gateway.Gateway) *heartbeat.Service {
	return heartbeat.NewService(runtimeStats{d: d, pool: pool, gw: gw}, 0)
}

type runtimeStats struct {
	d    *dispatcher.Dispatcher
	pool *dispatcher.Pool
	gw   *gateway.Gateway
}

func (r runtimeStats) Stats() dispatcher.Stats        { return r.d.Stats() }
func (r runtimeStats) Pending() int                   { return r.pool.Pending() }
func (r runtimeStats) Delivered() (ok, failed uint64) { return r.gw.Counts() }
