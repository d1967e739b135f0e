package telegram

import (
	"github.com/Noha9900/advance-filestorebot/internal/platform"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func convertUpdate(upd tgbotapi.Update) (platform.Update, bool) {
	switch {
	case upd.Message != nil && upd.Message.Chat != nil && upd.Message.From != nil:
		return platform.Update{Message: convertMessage(upd.Message, true)}, true
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		cq := upd.CallbackQuery
		cb := &platform.Callback{
			ID:   cq.ID,
			From: convertUser(cq.From),
			Data: cq.Data,
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			cb.ChatID = cq.Message.Chat.ID
			cb.MessageID = cq.Message.MessageID
		}
		return platform.Update{Callback: cb}, true
	}
	return platform.Update{}, false
}

func convertUser(u *tgbotapi.User) platform.User {
	if u == nil {
		return platform.User{}
	}
	return platform.User{ID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}

// convertMessage converts m and, when withReply is set, the message it replies to.
func convertMessage(m *tgbotapi.Message, withReply bool) *platform.IncomingMessage {
	out := &platform.IncomingMessage{
		MessageID: m.MessageID,
		From:      convertUser(m.From),
		Text:      m.Text,
		Caption:   m.Caption,
		Kind:      kindOf(m),
	}
	if m.Chat != nil {
		out.ChatID = m.Chat.ID
	}
	if m.Video != nil {
		out.VideoDuration = m.Video.Duration
	}
	if m.ForwardFromChat != nil {
		out.ForwardFromChat = m.ForwardFromChat.ID
		out.ForwardFromMessageID = m.ForwardFromMessageID
	}
	if withReply && m.ReplyToMessage != nil {
		out.ReplyTo = convertMessage(m.ReplyToMessage, false)
	}
	return out
}

func kindOf(m *tgbotapi.Message) platform.MessageKind {
	switch {
	case m.Video != nil:
		return platform.KindVideo
	case len(m.Photo) > 0:
		return platform.KindPhoto
	case m.Document != nil:
		return platform.KindDocument
	case m.Audio != nil || m.Voice != nil:
		return platform.KindAudio
	case m.Text != "":
		return platform.KindText
	}
	return platform.KindOther
}
