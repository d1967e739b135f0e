package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Noha9900/advance-filestorebot/internal/content"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/identity"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
	"github.com/Noha9900/advance-filestorebot/internal/relay"
)

// handleOperatorCommand runs operator-only commands and reports whether name
// was one of them.
func (b *Bot) handleOperatorCommand(ctx context.Context, m *platform.IncomingMessage, name, args string) bool {
	switch name {
	case "add":
		b.cmdAdd(ctx, m, args)
	case "batch":
		b.cmdBatch(ctx, m, args)
	case "close":
		b.cmdClose(ctx, m, args)
	case "stats":
		b.cmdStats(ctx, m)
	default:
		return false
	}
	return true
}

func (b *Bot) operatorReply(ctx context.Context, m *platform.IncomingMessage) {
	userID, err := b.Relay.Reply(ctx, m)
	if err != nil {
		if !errors.Is(err, relay.ErrUnknownRecipient) && !errors.Is(err, relay.ErrNotActive) {
			b.Logger.Warn("Operator reply failed", "user_id", userID, "error", err)
		}
		return
	}
	b.Logger.Debug("Operator reply relayed", "user_id", userID)
}

// cmdAdd stores the message the operator replied to. Forwarded channel posts
// are stored by their channel origin. Arguments become a caption override.
func (b *Bot) cmdAdd(ctx context.Context, m *platform.IncomingMessage, args string) {
	src := m.ReplyTo
	if src == nil {
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: "Reply to a message with /add [caption]."})
		return
	}
	nc := content.NewContent{
		Kind:       domain.ContentSingle,
		SourceChat: src.ChatID,
		StartMsg:   src.MessageID,
		Caption:    args,
		CreatedBy:  m.From.ID,
	}
	if src.ForwardFromChat != 0 {
		nc.SourceChat = src.ForwardFromChat
		nc.StartMsg = src.ForwardFromMessageID
	}
	b.mint(ctx, m.ChatID, nc)
}

// cmdBatch stores a message range: /batch <chat_id> <first> <last>.
func (b *Bot) cmdBatch(ctx context.Context, m *platform.IncomingMessage, args string) {
	const usage = "Usage: /batch <channel_id> <first_message_id> <last_message_id>"
	fields := strings.Fields(args)
	if len(fields) != 3 {
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: usage})
		return
	}
	chat, err1 := strconv.ParseInt(fields[0], 10, 64)
	first, err2 := strconv.Atoi(fields[1])
	last, err3 := strconv.Atoi(fields[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: usage})
		return
	}
	b.mint(ctx, m.ChatID, content.NewContent{
		Kind:       domain.ContentBatch,
		SourceChat: chat,
		StartMsg:   first,
		EndMsg:     last,
		CreatedBy:  m.From.ID,
	})
}

func (b *Bot) mint(ctx context.Context, chatID int64, nc content.NewContent) {
	d, err := b.Content.Create(ctx, nc)
	if errors.Is(err, content.ErrInvalidRange) {
		b.send(ctx, platform.OutgoingMessage{ChatID: chatID, Text: "❌ Invalid message range: the last id must not be lower than the first."})
		return
	}
	if errors.Is(err, content.ErrBatchTooLarge) {
		b.send(ctx, platform.OutgoingMessage{ChatID: chatID, Text: fmt.Sprintf("❌ A batch can hold at most %d messages.", content.MaxBatch)})
		return
	}
	if err != nil {
		b.Logger.Error("Failed to store content", "error", err)
		b.send(ctx, platform.OutgoingMessage{ChatID: chatID, Text: "⚠️ Could not save the content."})
		return
	}

	link := content.Link(b.opts.BotUsername, d.Token)
	text := fmt.Sprintf("✅ <b>Content Saved!</b>\n\n<code>%s</code>", link)
	if d.Kind == domain.ContentBatch {
		text = fmt.Sprintf("✅ <b>Batch Saved!</b> (%d messages)\n\n<code>%s</code>", d.Count(), link)
	}
	b.send(ctx, platform.OutgoingMessage{
		ChatID:   chatID,
		Text:     text,
		HTML:     true,
		Keyboard: platform.Keyboard{{{Text: "↗️ Share Link", URL: "https://t.me/share/url?url=" + url.QueryEscape(link)}}},
	})
	b.Logger.Info("Content stored", "token", d.Token, "kind", string(d.Kind), "count", d.Count())
}

// cmdClose closes a session by explicit id or by replying to a relayed message.
func (b *Bot) cmdClose(ctx context.Context, m *platform.IncomingMessage, args string) {
	var userID int64
	if args != "" {
		id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(args), identity.TagPrefix), 10, 64)
		if err != nil {
			b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: "Usage: /close <user_id>, or reply to a relayed message with /close."})
			return
		}
		userID = id
	} else if id, ok := b.Relay.Recipient(ctx, m.ReplyTo); ok {
		userID = id
	} else {
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: "⚠️ Could not determine recipient."})
		return
	}

	err := b.Relay.Close(ctx, userID, true)
	b.convs.Set(userID, Idle{})
	switch {
	case errors.Is(err, relay.ErrNotActive):
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: "ℹ️ No open session with " + identity.Tag(userID) + "."})
	case err != nil:
		b.Logger.Error("Failed to close relay session", "user_id", userID, "error", err)
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: "⚠️ Could not close the session."})
	default:
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: "🔒 Closed the session with " + identity.Tag(userID) + "."})
	}
}

func (b *Bot) cmdStats(ctx context.Context, m *platform.IncomingMessage) {
	users, err := b.Store.CountUsers(ctx)
	if err != nil {
		b.Logger.Error("Failed to count users", "error", err)
		b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: "⚠️ Could not load statistics."})
		return
	}
	text := fmt.Sprintf("📊 <b>Statistics</b>\n\n👥 Users: %d\n🗑 Pending deletions: %d\n💬 Open conversations: %d",
		users, len(b.Janitor.Pending()), b.convs.Len())
	b.send(ctx, platform.OutgoingMessage{ChatID: m.ChatID, Text: text, HTML: true})
}
