package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
)

// SlackAPI is the part of *slack.Client the sender needs.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackSender delivers replies with chat.postMessage.
type SlackSender struct {
	api SlackAPI
}

func NewSlackSender(api SlackAPI) *SlackSender {
	return &SlackSender{api: api}
}

func (s *SlackSender) Platform() bus.Platform { return bus.PlatformSlack }

func (s *SlackSender) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.Content() == "" {
		return nil
	}
	if len(msg.Buttons()) > 0 {
		slog.Debug("slack: buttons not supported, sending text only", "chat", msg.ChatID())
	}

	options := []slack.MsgOption{slack.MsgOptionText(msg.Content(), false)}
	if ts := msg.MetaString("thread_ts"); ts != "" && msg.MetaString("channel_type") != "im" {
		options = append(options, slack.MsgOptionTS(ts))
	}

	_, _, err := s.api.PostMessageContext(ctx, msg.ChatID(), options...)
	return classifySlack(err)
}

func classifySlack(err error) error {
	if err == nil {
		return nil
	}
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return Throttled(err, limited.RetryAfter)
	}
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		// channel_not_found, not_in_channel, invalid_auth and friends.
		return Permanent(err)
	}
	return err
}
