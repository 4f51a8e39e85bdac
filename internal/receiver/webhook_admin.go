package receiver

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/dolphinbot/internal/config/channel"
)

// WebhookAPI is the part of *tgbotapi.BotAPI used to manage the webhook.
type WebhookAPI interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// WebhookEndpoint returns the public URL Telegram should post to: the
// configured webhook URL with the webhook path appended unless already
// present.
func WebhookEndpoint(cfg *channel.TelegramConfig) (string, error) {
	base := strings.TrimRight(cfg.WebhookURL, "/")
	if base == "" {
		return "", errors.New("telegram webhookUrl is not configured")
	}
	if !strings.HasPrefix(base, "https://") {
		return "", fmt.Errorf("telegram webhookUrl must be https, got %q", cfg.WebhookURL)
	}
	if strings.HasSuffix(base, cfg.WebhookPath) {
		return base, nil
	}
	return base + "/" + strings.TrimLeft(cfg.WebhookPath, "/"), nil
}

// SetWebhook registers the webhook with Telegram, including the secret
// token echoed back in SecretHeader.
func SetWebhook(api WebhookAPI, cfg *channel.TelegramConfig, dropPending bool) (string, error) {
	url, err := WebhookEndpoint(cfg)
	if err != nil {
		return "", err
	}
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", cfg.WebhookSecret)
	params.AddBool("drop_pending_updates", dropPending)
	if err := params.AddInterface("allowed_updates", []string{"message", "edited_message", "callback_query"}); err != nil {
		return "", err
	}

	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return "", fmt.Errorf("setWebhook: %w", err)
	}
	return url, nil
}

// DeleteWebhook removes the webhook so long polling can be used.
func DeleteWebhook(api WebhookAPI, dropPending bool) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	return nil
}
