package receiver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/config/channel"
	"github.com/crystaldolphin/dolphinbot/internal/dispatcher"
)

type fakeSink struct {
	mu  sync.Mutex
	got []bus.Update
	err error
}

func (f *fakeSink) Submit(upd bus.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, upd)
	return nil
}

func (f *fakeSink) updates() []bus.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bus.Update(nil), f.got...)
}

const startCommand = `{
  "update_id": 1001,
  "message": {
    "message_id": 7,
    "date": 1700000000,
    "from": {"id": 42, "is_bot": false, "first_name": "Ann", "username": "ann"},
    "chat": {"id": 42, "type": "private"},
    "text": "/Start@DolphinBot hello there"
  }
}`

func newWebhook(sink *fakeSink, allow ...string) *TelegramWebhook {
	return NewTelegramWebhook(&channel.TelegramConfig{WebhookSecret: "s3cret", AllowFrom: allow}, sink)
}

func post(h http.Handler, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTelegramWebhook_AcceptsCommand(t *testing.T) {
	sink := &fakeSink{}
	rec := post(newWebhook(sink), startCommand, "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	got := sink.updates()
	if len(got) != 1 {
		t.Fatalf("submitted %d updates", len(got))
	}
	upd := got[0]
	if upd.Key() != "telegram:1001" || upd.SessionKey() != "telegram:42" {
		t.Errorf("keys = %q %q", upd.Key(), upd.SessionKey())
	}
	if upd.Kind != bus.KindCommand || upd.Command != "start" || upd.Args != "hello there" {
		t.Errorf("command = %v %q %q", upd.Kind, upd.Command, upd.Args)
	}
	if upd.SenderID != "42" || upd.SenderName != "ann" || upd.MessageID != "7" {
		t.Errorf("sender = %q %q msg=%q", upd.SenderID, upd.SenderName, upd.MessageID)
	}
	if len(upd.Payload) == 0 {
		t.Error("raw payload not kept")
	}
}

func TestTelegramWebhook_WrongSecret(t *testing.T) {
	sink := &fakeSink{}
	for _, secret := range []string{"", "nope"} {
		rec := post(newWebhook(sink), startCommand, secret)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want 401", secret, rec.Code)
		}
	}
	if n := len(sink.updates()); n != 0 {
		t.Errorf("dispatched %d updates", n)
	}
}

func TestTelegramWebhook_Malformed(t *testing.T) {
	bodies := map[string]string{
		"not json":        `{"update_id":`,
		"no update_id":    `{"message": {"message_id": 1, "chat": {"id": 1, "type": "private"}, "text": "hi"}}`,
		"message no chat": `{"update_id": 5, "message": {"message_id": 1, "text": "hi"}}`,
		"wrong type":      `{"update_id": "five"}`,
	}
	for name, body := range bodies {
		sink := &fakeSink{}
		rec := post(newWebhook(sink), body, "s3cret")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
		if len(sink.updates()) != 0 {
			t.Errorf("%s: update dispatched", name)
		}
	}
}

func TestTelegramWebhook_DisallowedSenderAcked(t *testing.T) {
	sink := &fakeSink{}
	rec := post(newWebhook(sink, "1", "bob"), startCommand, "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(sink.updates()) != 0 {
		t.Error("disallowed sender dispatched")
	}

	sink = &fakeSink{}
	post(newWebhook(sink, "@ann"), startCommand, "s3cret")
	if len(sink.updates()) != 1 {
		t.Error("allowed username not dispatched")
	}
}

func TestTelegramWebhook_PoolBusy(t *testing.T) {
	for _, err := range []error{dispatcher.ErrQueueFull, dispatcher.ErrPoolClosed} {
		sink := &fakeSink{err: fmt.Errorf("%w: telegram:42", err)}
		rec := post(newWebhook(sink), startCommand, "s3cret")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%v: status = %d, want 503", err, rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Errorf("%v: missing Retry-After", err)
		}
	}
}

func TestParseTelegram_Kinds(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind bus.Kind
		chat string
	}{
		{"message", `{"update_id":1,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"hi"}}`, bus.KindMessage, "5"},
		{"location", `{"update_id":2,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"location":{"latitude":55.7,"longitude":37.6}}}`, bus.KindLocation, "5"},
		{"edited", `{"update_id":3,"edited_message":{"message_id":1,"chat":{"id":6,"type":"group"},"text":"fixed"}}`, bus.KindEdited, "6"},
		{"callback", `{"update_id":4,"callback_query":{"id":"cb1","from":{"id":9,"first_name":"A"},"message":{"message_id":3,"chat":{"id":7,"type":"private"}},"data":"tz_UTC"}}`, bus.KindCallback, "7"},
		{"inline callback", `{"update_id":5,"callback_query":{"id":"cb2","from":{"id":9,"first_name":"A"},"inline_message_id":"x","data":"menu:help"}}`, bus.KindCallback, "9"},
		{"other", `{"update_id":6,"poll":{"id":"p1","question":"?","options":[]}}`, bus.KindOther, ""},
	}
	for _, tt := range tests {
		upd, err := ParseTelegram([]byte(tt.body))
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if upd.Kind != tt.kind || upd.ChatID != tt.chat {
			t.Errorf("%s: kind=%v chat=%q, want %v %q", tt.name, upd.Kind, upd.ChatID, tt.kind, tt.chat)
		}
	}

	upd, _ := ParseTelegram([]byte(tests[3].body))
	if upd.CallbackData != "tz_UTC" || upd.MetaString("callback_id") != "cb1" {
		t.Errorf("callback fields = %q %q", upd.CallbackData, upd.MetaString("callback_id"))
	}
}

func TestNormalizeTelegram_Caption(t *testing.T) {
	upd, err := NormalizeTelegram(tgbotapi.Update{
		UpdateID: 9,
		Message: &tgbotapi.Message{
			MessageID: 2,
			Chat:      &tgbotapi.Chat{ID: 11, Type: "private"},
			Caption:   "/help",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if upd.Kind != bus.KindCommand || upd.Command != "help" {
		t.Errorf("kind=%v command=%q", upd.Kind, upd.Command)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, cmd, args string
		ok            bool
	}{
		{"/start", "start", "", true},
		{"/HELP@my_bot", "help", "", true},
		{"  /remind 10m  stretch ", "remind", "10m  stretch", true},
		{"/add\nmilk", "add", "milk", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.in)
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.in, cmd, args, ok, tt.cmd, tt.args, tt.ok)
		}
	}
}
