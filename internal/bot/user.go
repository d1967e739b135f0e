package bot

import (
	"context"
	"errors"

	"github.com/Noha9900/advance-filestorebot/internal/content"
	"github.com/Noha9900/advance-filestorebot/internal/delivery"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/expiry"
	"github.com/Noha9900/advance-filestorebot/internal/gate"
	"github.com/Noha9900/advance-filestorebot/internal/metrics"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
	"github.com/Noha9900/advance-filestorebot/internal/relay"
	"github.com/Noha9900/advance-filestorebot/internal/store"
)

func (b *Bot) cmdStart(ctx context.Context, m *platform.IncomingMessage, token string) {
	now := b.Clock.Now().UTC()
	err := b.Store.UpsertUser(ctx, &domain.User{
		ID:         m.From.ID,
		Username:   m.From.Username,
		FirstName:  m.From.FirstName,
		JoinedAt:   now,
		LastSeenAt: now,
	})
	if err != nil {
		b.Logger.Warn("Failed to record user", "user_id", m.From.ID, "error", err)
	}

	welcome, err := b.Store.GetSetting(ctx, store.KeyWelcomeMessage)
	if err != nil || welcome == "" {
		welcome = defaultWelcome
	}
	id := b.send(ctx, platform.OutgoingMessage{
		ChatID:   m.ChatID,
		Text:     welcome,
		HTML:     true,
		Keyboard: platform.Keyboard{{{Text: "🎧 Support", Data: CallbackRelayOpen}}},
	})
	if id != 0 {
		b.Janitor.ScheduleAfter(m.ChatID, id, expiry.ShortTTL)
	}

	if token == "" {
		return
	}
	_, _ = b.runGate(ctx, m.ChatID, gate.NewSession(m.From.ID, token), 0)
}

// runGate evaluates s and either prompts the user or delivers. prevPrompt is
// the prompt currently on screen, if any. The error is that of loading the
// requirements; the user has already been told.
func (b *Bot) runGate(ctx context.Context, chatID int64, s *gate.Session, prevPrompt int) (gate.Outcome, error) {
	before := s.Stage
	out, err := b.Gate.Evaluate(ctx, s)
	if err != nil {
		b.Logger.Error("Gate evaluation failed", "user_id", s.UserID, "error", err)
		b.convs.Set(s.UserID, AwaitingGate{Session: s, PromptID: prevPrompt})
		b.notify(ctx, chatID, "⚠️ Something went wrong, please try again.", expiry.ShortTTL)
		return out, err
	}

	if out.Cleared() {
		b.settle(ctx, s.UserID)
		b.deleteMessage(ctx, chatID, prevPrompt)
		b.deliver(ctx, chatID, s.Token)
		return out, nil
	}

	// Same unmet stage: the prompt on screen is still accurate.
	if prevPrompt != 0 && out.Stage == before {
		b.convs.Set(s.UserID, AwaitingGate{Session: s, PromptID: prevPrompt})
		return out, nil
	}

	b.deleteMessage(ctx, chatID, prevPrompt)
	text, kb := gate.Prompt(out)
	id := b.send(ctx, platform.OutgoingMessage{ChatID: chatID, Text: text, HTML: true, Keyboard: kb})
	if id != 0 {
		b.Janitor.ScheduleAfter(chatID, id, expiry.ShortTTL)
	}
	metrics.GatePromptsTotal.WithLabelValues(out.Stage.String()).Inc()
	b.Logger.Debug("Gate prompt shown", "user_id", s.UserID, "stage", out.Stage.String(), "unmet", len(out.Unmet))
	b.convs.Set(s.UserID, AwaitingGate{Session: s, PromptID: id})
	return out, nil
}

func (b *Bot) verify(ctx context.Context, cb *platform.Callback) {
	st, ok := b.convs.Get(cb.From.ID).(AwaitingGate)
	if !ok {
		b.answer(ctx, cb.ID, "Nothing to verify. Open the link again.")
		return
	}
	prompt := st.PromptID
	if prompt == 0 {
		prompt = cb.MessageID
	}

	before := st.Session.Stage
	out, err := b.runGate(ctx, cb.ChatID, st.Session, prompt)
	switch {
	case err != nil:
		b.answer(ctx, cb.ID, "⚠️ Please try again in a moment.")
	case out.Cleared():
		b.answer(ctx, cb.ID, "✅ Verified!")
	case out.Stage == before:
		b.answer(ctx, cb.ID, "❌ You haven't joined yet.")
	default:
		b.answer(ctx, cb.ID, "")
	}
}

func (b *Bot) deliver(ctx context.Context, chatID int64, token string) {
	d, err := b.Content.Resolve(ctx, token)
	if errors.Is(err, content.ErrNotFound) {
		b.notify(ctx, chatID, "❌ This link has expired or is invalid.", expiry.ShortTTL)
		return
	}
	if err != nil {
		b.Logger.Error("Failed to resolve content", "token", token, "error", err)
		b.notify(ctx, chatID, "⚠️ Something went wrong, please try again.", expiry.ShortTTL)
		return
	}

	res, err := b.Delivery.Deliver(ctx, d, chatID)
	switch {
	case errors.Is(err, platform.ErrMessageNotFound):
		b.notify(ctx, chatID, "❌ This file is no longer available.", expiry.ShortTTL)
	case errors.Is(err, delivery.ErrCopyFailed):
		b.Logger.Warn("Delivery failed", "token", token, "user_id", chatID, "error", err)
		b.notify(ctx, chatID, "❌ File could not be delivered (check the bot's access to the storage channel).", expiry.ShortTTL)
	case err != nil:
		b.Logger.Warn("Delivery interrupted", "token", token, "user_id", chatID, "error", err)
	default:
		b.Logger.Info("Content delivered", "token", token, "user_id", chatID,
			"attempted", res.Attempted, "delivered", res.Delivered)
	}
}

func (b *Bot) openSupport(ctx context.Context, u platform.User, chatID int64) {
	if b.isOperator(u.ID) {
		b.notify(ctx, chatID, "ℹ️ You are the operator. Reply to relayed messages to answer users.", expiry.ShortTTL)
		return
	}
	s, err := b.Relay.Open(ctx, u)
	if err != nil {
		b.Logger.Error("Failed to open relay session", "user_id", u.ID, "error", err)
		b.notify(ctx, chatID, "⚠️ Support is unavailable right now, please try again later.", expiry.ShortTTL)
		return
	}
	b.convs.Set(u.ID, InRelay{SessionID: s.SessionID})

	status := "🔴 The operator is offline, replies may take a while."
	if b.Relay.IsOperatorOnline() {
		status = "🟢 The operator is online."
	}
	b.send(ctx, platform.OutgoingMessage{
		ChatID:   chatID,
		Text:     "🎧 <b>Support session started.</b>\nSend your messages here and they will reach the operator.\n\n" + status,
		HTML:     true,
		Keyboard: platform.Keyboard{{{Text: "❌ End session", Data: CallbackRelayEnd}}},
	})
}

func (b *Bot) endSupport(ctx context.Context, userID, chatID int64) {
	b.convs.Set(userID, Idle{})
	err := b.Relay.Close(ctx, userID, false)
	if errors.Is(err, relay.ErrNotActive) {
		b.notify(ctx, chatID, "ℹ️ You have no open support session.", expiry.ShortTTL)
		return
	}
	if err != nil {
		b.Logger.Error("Failed to close relay session", "user_id", userID, "error", err)
		b.notify(ctx, chatID, "⚠️ Something went wrong, please try again.", expiry.ShortTTL)
		return
	}
	b.send(ctx, platform.OutgoingMessage{ChatID: chatID, Text: "🔒 Support session ended."})
}

func (b *Bot) forward(ctx context.Context, m *platform.IncomingMessage) {
	err := b.Relay.Forward(ctx, m)
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrContentRefused):
		b.notify(ctx, m.ChatID, relay.RefusalText, expiry.ShortTTL)
	case errors.Is(err, relay.ErrNotActive):
		// Closed by the operator since the state was set.
		b.convs.Set(m.From.ID, Idle{})
		b.notify(ctx, m.ChatID, "ℹ️ Your support session has ended. Send /support to start a new one.", expiry.ShortTTL)
	default:
		b.Logger.Warn("Failed to relay message", "user_id", m.From.ID, "error", err)
		b.notify(ctx, m.ChatID, "⚠️ Your message could not be delivered, please try again.", expiry.ShortTTL)
	}
}
