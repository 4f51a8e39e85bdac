// Package bus defines the update and reply types that flow between
// receivers, the dispatcher and the outbound gateway.
package bus

import (
	"encoding/json"
	"time"
)

// Update is a single inbound event normalized from a platform payload.
type Update struct {
	ID           string          // platform-assigned identifier, unique per platform
	Platform     Platform        // "telegram" or "slack"; scheduled updates carry their target platform
	Kind         Kind            // routing class
	ChatID       string          // chat / channel / DM identifier
	SenderID     string          // user identifier within the platform
	SenderName   string          // username, when the platform exposes one
	MessageID    string          // platform message id, used for reply-to
	Text         string          // message text or caption
	Command      string          // lowercased command without slash or @bot suffix
	Args         string          // text after the command
	CallbackData string          // inline button payload
	Payload      json.RawMessage // raw platform payload, opaque to the dispatcher
	ReceivedAt   time.Time       // when the receiver accepted the update
	Metadata     map[string]any  // platform-specific extras (thread_ts, callback id, ...)
}

// Key returns the dedup identity of the update: "platform:id".
func (u Update) Key() string {
	return string(u.Platform) + ":" + u.ID
}

// SessionKey returns the serialization lane of the update: "platform:chat".
func (u Update) SessionKey() string {
	return RoutingKey(u.Platform, u.ChatID)
}

// Preview returns a short snippet of the update text for logging.
func (u Update) Preview() string {
	preview := u.Text
	if u.Kind == KindCallback {
		preview = u.CallbackData
	}
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	return preview
}

// MetaString returns the string metadata value for key, or "".
func (u Update) MetaString(key string) string {
	if u.Metadata == nil {
		return ""
	}
	s, _ := u.Metadata[key].(string)
	return s
}
