package receiver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/config/channel"
)

// UpdateSource is the long-poll side of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

const (
	submitRetryBase = 100 * time.Millisecond
	submitRetryMax  = 2 * time.Second
)

// TelegramPoller receives updates through getUpdates instead of a webhook.
type TelegramPoller struct {
	Base
	source  UpdateSource
	timeout int
}

// NewTelegramPoller creates a TelegramPoller.
func NewTelegramPoller(cfg *channel.TelegramConfig, source UpdateSource, sink Submitter) *TelegramPoller {
	return &TelegramPoller{
		Base:    NewBase(bus.PlatformTelegram, sink, cfg.AllowFrom),
		source:  source,
		timeout: cfg.PollTimeout,
	}
}

// Run polls until ctx is cancelled.
func (p *TelegramPoller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.timeout
	updates := p.source.GetUpdatesChan(u)
	slog.Info("telegram: polling started", "timeout", p.timeout)

	for {
		select {
		case tu, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, tu)
		case <-ctx.Done():
			p.source.StopReceivingUpdates()
			slog.Info("telegram: polling stopped")
			return nil
		}
	}
}

func (p *TelegramPoller) handle(ctx context.Context, tu tgbotapi.Update) {
	upd, err := NormalizeTelegram(tu)
	if err != nil {
		slog.Warn("telegram: skipping update", "update_id", tu.UpdateID, "err", err)
		return
	}
	if raw, err := json.Marshal(tu); err == nil {
		upd.Payload = raw
	}
	if !p.IsAllowed(upd.SenderID, upd.SenderName) {
		slog.Warn("access denied", "platform", bus.PlatformTelegram, "sender", upd.SenderID, "chat", upd.ChatID)
		return
	}
	p.submit(ctx, upd)
}

// submit retries while the pool is saturated. getUpdates has already
// advanced its offset, so there is no redelivery to fall back on.
func (p *TelegramPoller) submit(ctx context.Context, upd bus.Update) {
	delay := submitRetryBase
	for {
		err := p.sink.Submit(upd)
		if err == nil {
			return
		}
		if closed(err) {
			slog.Warn("telegram: update dropped", "update", upd.Key(), "err", err)
			return
		}
		slog.Warn("telegram: pool busy, retrying", "update", upd.Key(), "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay = min(delay*2, submitRetryMax)
	}
}
