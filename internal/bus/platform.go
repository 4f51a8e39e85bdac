package bus

import "strings"

// Platform identifies the messaging platform an update came from or a reply goes to.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformSlack    Platform = "slack"
)

// Kind classifies an update for routing.
type Kind string

const (
	KindMessage   Kind = "message"
	KindCommand   Kind = "command"
	KindEdited    Kind = "edited_message"
	KindCallback  Kind = "callback"
	KindLocation  Kind = "location"
	KindScheduled Kind = "scheduled"
	KindOther     Kind = "other"
)

// RoutingKey joins a platform and chat ID into a "platform:chat" key.
func RoutingKey(platform Platform, chatID string) string {
	if chatID == "" {
		return string(platform)
	}

	return string(platform) + ":" + chatID
}

// ParseRoutingKey splits a routing key into platform and chat ID.
func ParseRoutingKey(key string) (platform Platform, chatID string) {
	if i := strings.Index(key, ":"); i >= 0 {
		return Platform(key[:i]), key[i+1:]
	}

	return Platform(key), ""
}
