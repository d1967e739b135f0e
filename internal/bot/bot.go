// Package bot routes platform updates to the content, gate, delivery and
// relay services.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/clock"
	"github.com/Noha9900/advance-filestorebot/internal/content"
	"github.com/Noha9900/advance-filestorebot/internal/delivery"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/expiry"
	"github.com/Noha9900/advance-filestorebot/internal/gate"
	"github.com/Noha9900/advance-filestorebot/internal/metrics"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
	"github.com/Noha9900/advance-filestorebot/internal/presence"
	"github.com/Noha9900/advance-filestorebot/internal/relay"
)

// Callback data of the relay buttons.
const (
	CallbackRelayOpen = "relay:open"
	CallbackRelayEnd  = "relay:end"
)

const defaultWelcome = "👋 Welcome to the Bot!"

// Store is the persistence the dispatcher uses directly.
type Store interface {
	UpsertUser(ctx context.Context, u *domain.User) error
	GetSetting(ctx context.Context, key string) (string, error)
	CountUsers(ctx context.Context) (int64, error)
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Client   platform.Client
	Store    Store
	Content  *content.Store
	Gate     *gate.Gate
	Delivery *delivery.Engine
	Janitor  *expiry.Janitor
	Relay    *relay.Broker
	Presence *presence.Tracker
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Options tunes a Bot.
type Options struct {
	OperatorID  int64
	BotUsername string
	// Workers is the number of updates handled concurrently.
	Workers int
}

// Bot dispatches updates. Updates of one user are handled in order; updates
// of different users run concurrently on a bounded set of workers.
type Bot struct {
	Deps
	opts  Options
	convs *conversations

	queues []chan platform.Update
	wg     sync.WaitGroup
}

// New returns a Bot.
func New(d Deps, opts Options) *Bot {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Bot{Deps: d, opts: opts, convs: newConversations()}
}

// Start launches the workers. They stop once ctx is done; updates still
// queued at that point are dropped.
func (b *Bot) Start(ctx context.Context) {
	b.queues = make([]chan platform.Update, b.opts.Workers)
	for i := range b.queues {
		q := make(chan platform.Update, 64)
		b.queues[i] = q
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case upd := <-q:
					b.Handle(ctx, upd)
				}
			}
		}()
	}
	slog.Info("Dispatcher started", "workers", b.opts.Workers)
}

// Submit queues upd on the worker owning its sender. It blocks while that
// worker's queue is full.
func (b *Bot) Submit(ctx context.Context, upd platform.Update) {
	q := b.queues[uint64(upd.Sender().ID)%uint64(len(b.queues))]
	select {
	case q <- upd:
	case <-ctx.Done():
	}
}

// Wait blocks until every worker has returned.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Handle processes one update. Errors end here: they are logged and, where
// useful, reported to the user.
func (b *Bot) Handle(ctx context.Context, upd platform.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("Panic while handling update", "panic", r, "user_id", upd.Sender().ID)
		}
	}()

	if b.isOperator(upd.Sender().ID) && b.Presence != nil {
		b.Presence.Touch()
	}

	switch {
	case upd.Message != nil:
		metrics.UpdatesTotal.WithLabelValues("message").Inc()
		b.handleMessage(ctx, upd.Message)
	case upd.Callback != nil:
		metrics.UpdatesTotal.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, upd.Callback)
	}
}

// State returns the conversation state of a user.
func (b *Bot) State(userID int64) State {
	return b.convs.Get(userID)
}

func (b *Bot) isOperator(userID int64) bool {
	return userID != 0 && userID == b.opts.OperatorID
}

func (b *Bot) handleMessage(ctx context.Context, m *platform.IncomingMessage) {
	if name, args, ok := m.Command(); ok {
		if b.isOperator(m.From.ID) && b.handleOperatorCommand(ctx, m, name, args) {
			return
		}
		switch name {
		case "start":
			b.cmdStart(ctx, m, args)
		case "support":
			b.openSupport(ctx, m.From, m.ChatID)
		case "end":
			b.endSupport(ctx, m.From.ID, m.ChatID)
		}
		return
	}

	if b.isOperator(m.From.ID) {
		if m.ReplyTo != nil {
			b.operatorReply(ctx, m)
		}
		return
	}

	st := b.convs.Get(m.From.ID)
	if _, ok := st.(InRelay); ok {
		b.forward(ctx, m)
		return
	}

	// The session is persisted while the state is not: it outlives restarts
	// and a /start issued during a conversation.
	if rs := b.activeRelay(ctx, m.From.ID); rs != nil {
		if _, gating := st.(AwaitingGate); !gating {
			b.convs.Set(m.From.ID, InRelay{SessionID: rs.SessionID})
		}
		b.forward(ctx, m)
		return
	}

	if _, ok := st.(AwaitingGate); ok {
		b.notify(ctx, m.ChatID, "👆 Join the channels above, then tap the verify button.", expiry.ShortTTL)
		return
	}
	b.notify(ctx, m.ChatID, "ℹ️ Send /support to talk to the operator.", expiry.ShortTTL)
}

// activeRelay returns the user's open relay session, nil if there is none or
// it cannot be read.
func (b *Bot) activeRelay(ctx context.Context, userID int64) *domain.RelaySession {
	rs, err := b.Relay.Active(ctx, userID)
	if err != nil {
		b.Logger.Warn("Failed to look up relay session", "user_id", userID, "error", err)
		return nil
	}
	return rs
}

// settle puts a user whose flow just finished back in the relay if their
// session is still open, in Idle otherwise.
func (b *Bot) settle(ctx context.Context, userID int64) {
	if rs := b.activeRelay(ctx, userID); rs != nil {
		b.convs.Set(userID, InRelay{SessionID: rs.SessionID})
		return
	}
	b.convs.Set(userID, Idle{})
}

func (b *Bot) handleCallback(ctx context.Context, cb *platform.Callback) {
	switch cb.Data {
	case gate.CallbackVerify:
		b.verify(ctx, cb)
	case CallbackRelayOpen:
		b.answer(ctx, cb.ID, "")
		b.openSupport(ctx, cb.From, cb.ChatID)
	case CallbackRelayEnd:
		b.answer(ctx, cb.ID, "")
		b.endSupport(ctx, cb.From.ID, cb.ChatID)
	default:
		b.answer(ctx, cb.ID, "")
	}
}

// send sends a message and logs failures. It returns 0 when nothing was sent.
func (b *Bot) send(ctx context.Context, msg platform.OutgoingMessage) int {
	id, err := b.Client.SendMessage(ctx, msg)
	if err != nil {
		b.Logger.Warn("Failed to send message", "chat_id", msg.ChatID, "error", err)
		return 0
	}
	return id
}

// notify sends a plain HTML text that deletes itself after ttl.
func (b *Bot) notify(ctx context.Context, chatID int64, text string, ttl time.Duration) int {
	id := b.send(ctx, platform.OutgoingMessage{ChatID: chatID, Text: text, HTML: true})
	if id != 0 && ttl > 0 {
		b.Janitor.ScheduleAfter(chatID, id, ttl)
	}
	return id
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.Client.AnswerCallback(ctx, callbackID, text); err != nil {
		b.Logger.Debug("Failed to answer callback", "error", err)
	}
}

func (b *Bot) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := b.Client.DeleteMessage(ctx, chatID, messageID); err != nil {
		b.Logger.Debug("Failed to delete message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}
