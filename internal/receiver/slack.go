package receiver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/config/channel"
)

var reMention = regexp.MustCompile(`^\s*<@[A-Z0-9]+>\s*`)

// SlackEvents serves the Slack Events API request URL.
type SlackEvents struct {
	Base
	signingSecret string
	replyInThread bool
}

// NewSlackEvents creates a SlackEvents receiver.
func NewSlackEvents(cfg *channel.SlackConfig, sink Submitter) *SlackEvents {
	return &SlackEvents{
		Base:          NewBase(bus.PlatformSlack, sink, cfg.AllowFrom),
		signingSecret: cfg.SigningSecret,
		replyInThread: cfg.ReplyInThread,
	}
}

func (s *SlackEvents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		reject(w, bus.PlatformSlack, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return
	}

	if s.signingSecret != "" {
		if err := s.verify(r.Header, body); err != nil {
			reject(w, bus.PlatformSlack, fmt.Errorf("%w: %v", ErrUnauthorized, err))
			return
		}
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		// Inner event types we do not model still parse as a callback envelope.
		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Type == slackevents.CallbackEvent {
			slog.Debug("slack: ignoring unsupported event", "err", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		reject(w, bus.PlatformSlack, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			reject(w, bus.PlatformSlack, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		cb, ok := ev.Data.(*slackevents.EventsAPICallbackEvent)
		if !ok || cb.EventID == "" {
			reject(w, bus.PlatformSlack, fmt.Errorf("%w: callback without event_id", ErrMalformedPayload))
			return
		}
		upd, ok := s.normalize(cb.EventID, ev.InnerEvent)
		if !ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		upd.Payload = json.RawMessage(body)
		s.accept(w, upd)

	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *SlackEvents) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, s.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

// normalize maps message and app_mention events. Bot echoes and message
// subtypes (edits, joins, deletions) are skipped.
func (s *SlackEvents) normalize(eventID string, inner slackevents.EventsAPIInnerEvent) (bus.Update, bool) {
	var user, channelID, text, ts, threadTS, channelType string

	switch e := inner.Data.(type) {
	case *slackevents.MessageEvent:
		if e.BotID != "" || e.SubType != "" || e.User == "" {
			return bus.Update{}, false
		}
		user, channelID, text, ts, threadTS, channelType = e.User, e.Channel, e.Text, e.TimeStamp, e.ThreadTimeStamp, e.ChannelType
	case *slackevents.AppMentionEvent:
		if e.BotID != "" || e.User == "" {
			return bus.Update{}, false
		}
		user, channelID, text, ts, threadTS = e.User, e.Channel, e.Text, e.TimeStamp, e.ThreadTimeStamp
	default:
		return bus.Update{}, false
	}

	if s.replyInThread && threadTS == "" {
		threadTS = ts
	}

	upd := bus.Update{
		ID:         eventID,
		Platform:   bus.PlatformSlack,
		Kind:       bus.KindMessage,
		ChatID:     channelID,
		SenderID:   user,
		MessageID:  ts,
		Text:       strings.TrimSpace(reMention.ReplaceAllString(text, "")),
		ReceivedAt: time.Now(),
		Metadata: map[string]any{
			"thread_ts":    threadTS,
			"channel_type": channelType,
			"event_type":   inner.Type,
		},
	}
	if cmd, args, ok := parseCommand(upd.Text); ok {
		upd.Kind = bus.KindCommand
		upd.Command = cmd
		upd.Args = args
	}
	return upd, true
}
