package receiver

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the enabled webhook endpoints on r. A nil receiver
// is skipped.
func RegisterRoutes(r chi.Router, telegramPath string, tg *TelegramWebhook, slackPath string, sl *SlackEvents) {
	if tg != nil {
		r.Method("POST", telegramPath, tg)
	}
	if sl != nil {
		r.Method("POST", slackPath, sl)
	}
}
