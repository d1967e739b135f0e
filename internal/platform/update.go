package platform

import "strings"

// User identifies the sender of an update.
type User struct {
	ID        int64
	Username  string
	FirstName string
}

// MessageKind is a coarse classification of message content.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindPhoto    MessageKind = "photo"
	KindVideo    MessageKind = "video"
	KindDocument MessageKind = "document"
	KindAudio    MessageKind = "audio"
	KindOther    MessageKind = "other"
)

// IncomingMessage is a message received by the bot.
type IncomingMessage struct {
	ChatID    int64
	MessageID int
	From      User
	Kind      MessageKind
	Text      string
	Caption   string
	// VideoDuration is the length of a video in seconds, zero otherwise.
	VideoDuration int
	// ForwardFromChat is set when the message was forwarded from a channel.
	ForwardFromChat      int64
	ForwardFromMessageID int
	ReplyTo              *IncomingMessage
}

// Body returns the text or, for media, the caption.
func (m *IncomingMessage) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// Command returns the bot command and its arguments, or ok=false for
// ordinary messages. "/start@mybot abc" yields ("start", "abc").
func (m *IncomingMessage) Command() (name, args string, ok bool) {
	if !strings.HasPrefix(m.Text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(m.Text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	From      User
	ChatID    int64
	MessageID int
	Data      string
}

// Update is one inbound event. Exactly one field is set.
type Update struct {
	Message  *IncomingMessage
	Callback *Callback
}

// Sender returns the user who produced the update.
func (u Update) Sender() User {
	switch {
	case u.Message != nil:
		return u.Message.From
	case u.Callback != nil:
		return u.Callback.From
	}
	return User{}
}
