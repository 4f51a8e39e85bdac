package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/config/channel"
)

// TelegramAPI is the part of *tgbotapi.BotAPI the sender needs.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramSender delivers replies through the Bot API sendMessage method.
type TelegramSender struct {
	api            TelegramAPI
	replyToMessage bool
}

func NewTelegramSender(cfg *channel.TelegramConfig, api TelegramAPI) *TelegramSender {
	return &TelegramSender{api: api, replyToMessage: cfg.ReplyToMessage}
}

func (t *TelegramSender) Platform() bus.Platform { return bus.PlatformTelegram }

// Send answers a pending callback query, then posts the content in chunks.
// Buttons are attached to the last chunk.
func (t *TelegramSender) Send(_ context.Context, msg bus.OutboundMessage) error {
	if id := msg.MetaString("callback_id"); id != "" {
		if _, err := t.api.Request(tgbotapi.NewCallback(id, msg.MetaString("callback_text"))); err != nil {
			slog.Debug("telegram: answer callback failed", "callback", id, "err", err)
		}
	}
	if msg.Content() == "" {
		return nil
	}

	chatID, err := strconv.ParseInt(msg.ChatID(), 10, 64)
	if err != nil {
		return Permanent(fmt.Errorf("telegram: invalid chat id %q", msg.ChatID()))
	}
	replyTo := t.replyTarget(msg)

	chunks := splitText(msg.Content(), telegramChunkSize)
	for i, chunk := range chunks {
		out := tgbotapi.NewMessage(chatID, toTelegramHTML(chunk))
		out.ParseMode = tgbotapi.ModeHTML
		out.DisableWebPagePreview = true
		if i == 0 && replyTo != 0 {
			out.ReplyToMessageID = replyTo
			out.AllowSendingWithoutReply = true
		}
		if i == len(chunks)-1 && len(msg.Buttons()) > 0 {
			out.ReplyMarkup = inlineKeyboard(msg.Buttons())
		}

		_, err := t.api.Send(out)
		if isBadRequest(err) {
			// Usually a markup the HTML parser refused; resend as plain text.
			out.Text = chunk
			out.ParseMode = ""
			_, err = t.api.Send(out)
		}
		if err != nil {
			return classifyTelegram(err)
		}
	}
	return nil
}

func (t *TelegramSender) replyTarget(msg bus.OutboundMessage) int {
	ref := msg.ReplyTo()
	if ref == "" && t.replyToMessage {
		ref = msg.MetaString("message_id")
	}
	id, _ := strconv.Atoi(ref)
	return id
}

func inlineKeyboard(rows [][]bus.Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

func isBadRequest(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest
}

func classifyTelegram(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return Throttled(err, time.Duration(apiErr.RetryAfter)*time.Second)
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return Permanent(err)
	}
	return err
}
