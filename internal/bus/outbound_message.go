package bus

// Button is a single inline keyboard button. Data is returned to the bot
// as callback data when the button is pressed.
type Button struct {
	Text string
	Data string
}

// OutboundMessage is a reply to be delivered through a platform sender.
type OutboundMessage struct {
	platform Platform       // destination platform
	chatID   string         // destination chat / channel / DM identifier
	content  string         // text to send
	replyTo  string         // original message ID to quote/reply to (optional)
	buttons  [][]Button     // inline keyboard rows (optional)
	metadata map[string]any // platform-specific hints (thread_ts, callback_id, ...)
}

func (m OutboundMessage) Platform() Platform       { return m.platform }
func (m OutboundMessage) ChatID() string           { return m.chatID }
func (m OutboundMessage) Content() string          { return m.content }
func (m OutboundMessage) ReplyTo() string          { return m.replyTo }
func (m OutboundMessage) Buttons() [][]Button      { return m.buttons }
func (m OutboundMessage) Metadata() map[string]any { return m.metadata }

// MetaString returns the string metadata value for key, or "".
func (m OutboundMessage) MetaString(key string) string {
	if m.metadata == nil {
		return ""
	}
	s, _ := m.metadata[key].(string)
	return s
}

func NewOutboundMessage(platform Platform, chatID, content string) OutboundMessage {
	return OutboundMessage{
		platform: platform,
		chatID:   chatID,
		content:  content,
	}
}

type OutboundMessageBuilder struct {
	msg OutboundMessage
}

func NewOutboundMessageBuilder(platform Platform, chatID, content string) *OutboundMessageBuilder {
	return &OutboundMessageBuilder{msg: NewOutboundMessage(platform, chatID, content)}
}

func (b *OutboundMessageBuilder) ReplyTo(messageID string) *OutboundMessageBuilder {
	b.msg.replyTo = messageID
	return b
}

func (b *OutboundMessageBuilder) Buttons(rows [][]Button) *OutboundMessageBuilder {
	b.msg.buttons = rows
	return b
}

func (b *OutboundMessageBuilder) Metadata(md map[string]any) *OutboundMessageBuilder {
	b.msg.metadata = md
	return b
}

func (b *OutboundMessageBuilder) Build() OutboundMessage {
	return b.msg
}
