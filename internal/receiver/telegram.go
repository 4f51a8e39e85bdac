package receiver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/config/channel"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramWebhook serves Telegram webhook deliveries.
type TelegramWebhook struct {
	Base
	secret string
}

// NewTelegramWebhook creates a TelegramWebhook.
func NewTelegramWebhook(cfg *channel.TelegramConfig, sink Submitter) *TelegramWebhook {
	return &TelegramWebhook{
		Base:   NewBase(bus.PlatformTelegram, sink, cfg.AllowFrom),
		secret: cfg.WebhookSecret,
	}
}

func (t *TelegramWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(t.secret)) != 1 {
			reject(w, bus.PlatformTelegram, fmt.Errorf("%w: secret token mismatch", ErrUnauthorized))
			return
		}
	}

	body, err := readBody(w, r)
	if err != nil {
		reject(w, bus.PlatformTelegram, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return
	}
	upd, err := ParseTelegram(body)
	if err != nil {
		reject(w, bus.PlatformTelegram, err)
		return
	}
	t.accept(w, upd)
}

// ParseTelegram decodes a raw webhook body and normalizes it.
func ParseTelegram(body []byte) (bus.Update, error) {
	var probe struct {
		UpdateID *int `json:"update_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return bus.Update{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if probe.UpdateID == nil {
		return bus.Update{}, fmt.Errorf("%w: missing update_id", ErrMalformedPayload)
	}

	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return bus.Update{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	upd, err := NormalizeTelegram(u)
	if err != nil {
		return bus.Update{}, err
	}
	upd.Payload = json.RawMessage(body)
	return upd, nil
}

// NormalizeTelegram maps a Telegram update onto bus.Update.
func NormalizeTelegram(u tgbotapi.Update) (bus.Update, error) {
	upd := bus.Update{
		ID:         strconv.Itoa(u.UpdateID),
		Platform:   bus.PlatformTelegram,
		Kind:       bus.KindOther,
		ReceivedAt: time.Now(),
		Metadata:   map[string]any{},
	}

	switch {
	case u.Message != nil:
		if err := fromMessage(&upd, u.Message); err != nil {
			return bus.Update{}, err
		}
		switch {
		case u.Message.Location != nil:
			upd.Kind = bus.KindLocation
			upd.Metadata["latitude"] = u.Message.Location.Latitude
			upd.Metadata["longitude"] = u.Message.Location.Longitude
		default:
			upd.Kind = bus.KindMessage
			if cmd, args, ok := parseCommand(upd.Text); ok {
				upd.Kind = bus.KindCommand
				upd.Command = cmd
				upd.Args = args
			}
		}

	case u.EditedMessage != nil:
		if err := fromMessage(&upd, u.EditedMessage); err != nil {
			return bus.Update{}, err
		}
		upd.Kind = bus.KindEdited

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		upd.Kind = bus.KindCallback
		upd.CallbackData = cq.Data
		upd.Metadata["callback_id"] = cq.ID
		if cq.From != nil {
			setSender(&upd, cq.From)
			upd.ChatID = strconv.FormatInt(cq.From.ID, 10)
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			upd.ChatID = strconv.FormatInt(cq.Message.Chat.ID, 10)
			upd.MessageID = strconv.Itoa(cq.Message.MessageID)
			upd.Metadata["message_id"] = upd.MessageID
		}
		if upd.ChatID == "" {
			return bus.Update{}, fmt.Errorf("%w: callback_query without chat or sender", ErrMalformedPayload)
		}

	case u.ChannelPost != nil:
		if err := fromMessage(&upd, u.ChannelPost); err != nil {
			return bus.Update{}, err
		}
	}

	return upd, nil
}

func fromMessage(upd *bus.Update, msg *tgbotapi.Message) error {
	if msg.Chat == nil {
		return fmt.Errorf("%w: message without chat", ErrMalformedPayload)
	}
	upd.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
	upd.MessageID = strconv.Itoa(msg.MessageID)
	upd.Text = msg.Text
	if upd.Text == "" {
		upd.Text = msg.Caption
	}
	if msg.From != nil {
		setSender(upd, msg.From)
	}
	upd.Metadata["message_id"] = upd.MessageID
	upd.Metadata["is_group"] = msg.Chat.Type != "private"
	return nil
}

func setSender(upd *bus.Update, from *tgbotapi.User) {
	upd.SenderID = strconv.FormatInt(from.ID, 10)
	upd.SenderName = from.UserName
	upd.Metadata["first_name"] = from.FirstName
}

// parseCommand splits "/Cmd@bot args" into ("cmd", "args").
func parseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}

	cmd = text[1:]
	if i := strings.IndexFunc(cmd, unicode.IsSpace); i >= 0 {
		cmd, args = cmd[:i], strings.TrimSpace(cmd[i:])
	}
	if at := strings.Index(cmd, "@"); at != -1 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", "", false
	}
	return strings.ToLower(cmd), args, true
}
