// Package platform describes the messaging-platform operations the bot
// relies on, independent of any particular Bot API client.
package platform

import (
	"context"
	"errors"
)

// MemberStatus is a user's membership state in a chat.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// IsMember reports whether the status counts as being subscribed.
func (s MemberStatus) IsMember() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	}
	return false
}

// Button is an inline keyboard button. Exactly one of URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// OutgoingMessage is a text message sent by the bot.
type OutgoingMessage struct {
	ChatID   int64
	Text     string
	HTML     bool
	ReplyTo  int
	Keyboard Keyboard
}

// ErrMessageNotFound is returned when the referenced message no longer exists.
var ErrMessageNotFound = errors.New("message not found")

// Client is the set of remote calls the core performs. Every call may fail
// and failures are visible to the caller.
type Client interface {
	ChatMember(ctx context.Context, chatID, userID int64) (MemberStatus, error)
	// CopyMessage copies a message into chat to and returns the new message id.
	// A nil caption keeps the original caption.
	CopyMessage(ctx context.Context, to, from int64, messageID int, opts CopyOptions) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendMessage(ctx context.Context, msg OutgoingMessage) (int, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// CopyOptions adjusts a copy.
type CopyOptions struct {
	Caption *string
	ReplyTo int
}
