// Package relay bridges a support conversation between users and the single
// operator.
//
// Every message the operator receives on behalf of a user is recorded in a
// correlation table keyed by the operator-side message id, and carries the
// user's identity tag in its visible text. A reply is routed through the
// table first and through the quoted tag second.
package relay

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/clock"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/events"
	"github.com/Noha9900/advance-filestorebot/internal/identity"
	"github.com/Noha9900/advance-filestorebot/internal/metrics"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
	"github.com/google/uuid"
)

var (
	// ErrNotActive is returned when the user has no open session.
	ErrNotActive = errors.New("relay session not active")
	// ErrUnknownRecipient is returned when an operator reply cannot be
	// traced back to a user.
	ErrUnknownRecipient = errors.New("could not determine recipient")
	// ErrContentRefused is returned for content the relay does not carry.
	ErrContentRefused = errors.New("content refused")
)

// RefusalText is shown to a user whose message was refused.
const RefusalText = "❌ Long videos can't be sent to support. Please send a shorter clip or a link."

// Messenger is the part of the platform client the broker uses.
type Messenger interface {
	CopyMessage(ctx context.Context, to, from int64, messageID int, opts platform.CopyOptions) (int, error)
	SendMessage(ctx context.Context, msg platform.OutgoingMessage) (int, error)
}

// Repository persists sessions and correlations.
type Repository interface {
	GetRelaySession(ctx context.Context, userID int64) (*domain.RelaySession, error)
	UpsertRelaySession(ctx context.Context, s *domain.RelaySession) error
	SaveCorrelation(ctx context.Context, c *domain.RelayCorrelation) error
	GetCorrelation(ctx context.Context, operatorMessageID int) (*domain.RelayCorrelation, error)
}

// Presence reports operator activity.
type Presence interface {
	Online() bool
}

// Config configures a Broker.
type Config struct {
	OperatorID int64
	// MaxVideo is the longest video forwarded to the operator.
	MaxVideo  time.Duration
	Clock     clock.Clock
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Broker relays messages.
type Broker struct {
	msgr     Messenger
	repo     Repository
	presence Presence
	operator int64
	maxVideo time.Duration
	clock    clock.Clock
	pub      events.Publisher
	logger   *slog.Logger
}

// NewBroker returns a Broker.
func NewBroker(m Messenger, repo Repository, p Presence, cfg Config) *Broker {
	b := &Broker{
		msgr:     m,
		repo:     repo,
		presence: p,
		operator: cfg.OperatorID,
		maxVideo: cfg.MaxVideo,
		clock:    cfg.Clock,
		pub:      cfg.Publisher,
		logger:   cfg.Logger,
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.pub == nil {
		b.pub = &events.NoopPublisher{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// OperatorID returns the chat the broker relays to.
func (b *Broker) OperatorID() int64 { return b.operator }

// IsOperatorOnline is advisory. Messages are accepted either way.
func (b *Broker) IsOperatorOnline() bool {
	return b.presence != nil && b.presence.Online()
}

// Active returns the user's session if it is open.
func (b *Broker) Active(ctx context.Context, userID int64) (*domain.RelaySession, error) {
	s, err := b.repo.GetRelaySession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get relay session: %w", err)
	}
	if s == nil || !s.Active {
		return nil, nil
	}
	return s, nil
}

// Open starts a session for user and announces it to the operator. Opening
// an already open session returns it unchanged.
func (b *Broker) Open(ctx context.Context, user platform.User) (*domain.RelaySession, error) {
	if s, err := b.Active(ctx, user.ID); err != nil || s != nil {
		return s, err
	}

	s := &domain.RelaySession{
		UserID:    user.ID,
		SessionID: uuid.NewString(),
		Active:    true,
		OpenedAt:  b.clock.Now().UTC(),
	}
	if err := b.repo.UpsertRelaySession(ctx, s); err != nil {
		return nil, fmt.Errorf("open relay session: %w", err)
	}

	text := fmt.Sprintf("🆕 <b>Support session opened</b>\nFrom: %s\n%s", userLabel(user), identity.Tag(user.ID))
	id, err := b.msgr.SendMessage(ctx, platform.OutgoingMessage{ChatID: b.operator, Text: text, HTML: true})
	if err != nil {
		b.logger.Warn("Failed to notify operator of new session", "user_id", user.ID, "error", err)
	} else {
		b.correlate(ctx, id, s)
	}

	events.Emit(ctx, b.pub, events.TopicRelayOpened, events.RelayOpened{UserID: user.ID, SessionID: s.SessionID})
	return s, nil
}

// Forward relays a user's message to the operator: a tagged header followed
// by a copy of the message replying to it.
func (b *Broker) Forward(ctx context.Context, msg *platform.IncomingMessage) error {
	s, err := b.Active(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrNotActive
	}
	if b.refused(msg) {
		return ErrContentRefused
	}

	header := fmt.Sprintf("💬 <b>Message from</b> %s\n%s", userLabel(msg.From), identity.Tag(msg.From.ID))
	headerID, err := b.msgr.SendMessage(ctx, platform.OutgoingMessage{ChatID: b.operator, Text: header, HTML: true})
	if err != nil {
		return fmt.Errorf("send relay header: %w", err)
	}
	b.correlate(ctx, headerID, s)

	copyID, err := b.msgr.CopyMessage(ctx, b.operator, msg.ChatID, msg.MessageID, platform.CopyOptions{ReplyTo: headerID})
	if err != nil {
		return fmt.Errorf("relay to operator: %w", err)
	}
	b.correlate(ctx, copyID, s)

	metrics.RelayMessagesTotal.WithLabelValues("to_operator").Inc()
	return nil
}

// Reply routes an operator message that replies to a relayed one back to
// its user and returns that user's id. Nothing is sent to any user unless
// the recipient is known and their session is open; the operator is told
// why otherwise.
func (b *Broker) Reply(ctx context.Context, msg *platform.IncomingMessage) (int64, error) {
	userID, ok := b.Recipient(ctx, msg.ReplyTo)
	if !ok {
		b.tellOperator(ctx, msg.MessageID, "⚠️ Could not determine recipient. Reply to a message that carries a #ID tag.")
		return 0, ErrUnknownRecipient
	}

	s, err := b.Active(ctx, userID)
	if err != nil {
		return userID, err
	}
	if s == nil {
		b.tellOperator(ctx, msg.MessageID, fmt.Sprintf("⚠️ The session with %s is closed. Your reply was not delivered.", identity.Tag(userID)))
		return userID, ErrNotActive
	}

	if _, err := b.msgr.CopyMessage(ctx, userID, msg.ChatID, msg.MessageID, platform.CopyOptions{}); err != nil {
		b.tellOperator(ctx, msg.MessageID, "❌ Delivery failed: "+html.EscapeString(err.Error()))
		return userID, fmt.Errorf("relay to user: %w", err)
	}
	metrics.RelayMessagesTotal.WithLabelValues("to_user").Inc()
	return userID, nil
}

// Close ends the user's session and notifies the party that did not close it.
func (b *Broker) Close(ctx context.Context, userID int64, byOperator bool) error {
	s, err := b.Active(ctx, userID)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrNotActive
	}

	now := b.clock.Now().UTC()
	s.Active = false
	s.ClosedAt = &now
	if err := b.repo.UpsertRelaySession(ctx, s); err != nil {
		return fmt.Errorf("close relay session: %w", err)
	}

	notice := platform.OutgoingMessage{ChatID: b.operator, Text: "🔒 " + identity.Tag(userID) + " ended the support session.", HTML: true}
	if byOperator {
		notice = platform.OutgoingMessage{ChatID: userID, Text: "🔒 The support session was closed by the operator."}
	}
	if _, err := b.msgr.SendMessage(ctx, notice); err != nil {
		b.logger.Warn("Failed to send close notice", "user_id", userID, "error", err)
	}

	events.Emit(ctx, b.pub, events.TopicRelayClosed, events.RelayClosed{
		UserID:     userID,
		SessionID:  s.SessionID,
		ByOperator: byOperator,
	})
	return nil
}

// Recipient resolves the user behind an operator-side message, from the
// correlation table first and the identity tag in its text second.
func (b *Broker) Recipient(ctx context.Context, quoted *platform.IncomingMessage) (int64, bool) {
	if quoted == nil {
		return 0, false
	}
	c, err := b.repo.GetCorrelation(ctx, quoted.MessageID)
	if err != nil {
		b.logger.Warn("Correlation lookup failed, falling back to tag", "message_id", quoted.MessageID, "error", err)
	}
	if c != nil {
		return c.UserID, true
	}
	return identity.ParseTag(quoted.Body())
}

func (b *Broker) refused(msg *platform.IncomingMessage) bool {
	if msg.Kind != platform.KindVideo || b.maxVideo <= 0 {
		return false
	}
	return time.Duration(msg.VideoDuration)*time.Second > b.maxVideo
}

func (b *Broker) correlate(ctx context.Context, operatorMsgID int, s *domain.RelaySession) {
	err := b.repo.SaveCorrelation(ctx, &domain.RelayCorrelation{
		OperatorMessageID: operatorMsgID,
		UserID:            s.UserID,
		SessionID:         s.SessionID,
		CreatedAt:         b.clock.Now().UTC(),
	})
	if err != nil {
		b.logger.Warn("Failed to record relay correlation", "message_id", operatorMsgID, "error", err)
	}
}

func (b *Broker) tellOperator(ctx context.Context, replyTo int, text string) {
	if _, err := b.msgr.SendMessage(ctx, platform.OutgoingMessage{ChatID: b.operator, Text: text, HTML: true, ReplyTo: replyTo}); err != nil {
		b.logger.Warn("Failed to answer operator", "error", err)
	}
}

func userLabel(u platform.User) string {
	name := u.FirstName
	if name == "" {
		name = "User"
	}
	label := html.EscapeString(name)
	if u.Username != "" {
		label += " (@" + html.EscapeString(u.Username) + ")"
	}
	return label
}
