// Package receiver accepts platform updates over HTTP webhooks or long
// polling, normalizes them into bus.Update and hands them to the pool.
//
// Webhook acknowledgement:
//
//	400  malformed payload, nothing dispatched
//	401  signature or secret mismatch, nothing dispatched
//	503  pool saturated or stopping; the platform redelivers
//	200  everything else, whatever the handler outcome
package receiver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/dispatcher"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnauthorized     = errors.New("unauthorized")
)

const (
	maxBodyBytes = 1 << 20
	retryAfter   = 5 // seconds
)

// Submitter takes normalized updates. *dispatcher.Pool implements it.
type Submitter interface {
	Submit(upd bus.Update) error
}

// Base holds state shared by all receivers.
type Base struct {
	platform  bus.Platform
	sink      Submitter
	allowFrom []string // empty = allow all
}

// NewBase creates a Base for platform.
func NewBase(platform bus.Platform, sink Submitter, allowFrom []string) Base {
	return Base{platform: platform, sink: sink, allowFrom: allowFrom}
}

// IsAllowed reports whether any of the sender identifiers is on the allowlist.
// An identifier may be "id|username".
func (b *Base) IsAllowed(ids ...string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, id := range ids {
		for _, part := range strings.Split(id, "|") {
			if part == "" {
				continue
			}
			for _, allowed := range b.allowFrom {
				if strings.TrimPrefix(allowed, "@") == part {
					return true
				}
			}
		}
	}
	return false
}

// accept applies the allowlist and submits upd, then writes the webhook
// acknowledgement.
func (b *Base) accept(w http.ResponseWriter, upd bus.Update) {
	if !b.IsAllowed(upd.SenderID, upd.SenderName) {
		slog.Warn("access denied", "platform", b.platform, "sender", upd.SenderID, "chat", upd.ChatID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := b.sink.Submit(upd); err != nil {
		slog.Warn("update not accepted", "platform", b.platform, "update", upd.Key(), "err", err)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func reject(w http.ResponseWriter, platform bus.Platform, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, ErrUnauthorized) {
		status = http.StatusUnauthorized
	}
	slog.Warn("webhook rejected", "platform", platform, "status", status, "err", err)
	http.Error(w, http.StatusText(status), status)
}

// closed reports whether err means the pool will not take more work.
func closed(err error) bool {
	return errors.Is(err, dispatcher.ErrPoolClosed)
}
