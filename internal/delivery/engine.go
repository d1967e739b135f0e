// Package delivery copies stored content to users and hands every produced
// message to the expiry janitor.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/clock"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/events"
	"github.com/Noha9900/advance-filestorebot/internal/expiry"
	"github.com/Noha9900/advance-filestorebot/internal/metrics"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
)

// ErrCopyFailed wraps the platform error of a failed single-item copy.
var ErrCopyFailed = errors.New("copy failed")

// Messenger is the part of the platform client the engine uses.
type Messenger interface {
	CopyMessage(ctx context.Context, to, from int64, messageID int, opts platform.CopyOptions) (int, error)
	SendMessage(ctx context.Context, msg platform.OutgoingMessage) (int, error)
}

// Scheduler registers messages for deletion.
type Scheduler interface {
	ScheduleAfter(chatID int64, messageID int, ttl time.Duration) domain.EphemeralHandle
}

// Result summarizes one delivery.
type Result struct {
	Attempted int
	Delivered int
	// Handles holds every scheduled message, content first, status line last.
	Handles []domain.EphemeralHandle
}

// Failed returns the number of copies that did not go through.
func (r Result) Failed() int { return r.Attempted - r.Delivered }

// Engine delivers content descriptors.
type Engine struct {
	msgr    Messenger
	janitor Scheduler
	clock   clock.Clock
	delay   time.Duration
	pub     events.Publisher
	logger  *slog.Logger
}

// Options configures an Engine.
type Options struct {
	// BatchDelay is waited between consecutive copies of a batch.
	BatchDelay time.Duration
	Clock      clock.Clock
	Publisher  events.Publisher
	Logger     *slog.Logger
}

// NewEngine returns an Engine.
func NewEngine(m Messenger, janitor Scheduler, opts Options) *Engine {
	e := &Engine{
		msgr:    m,
		janitor: janitor,
		clock:   opts.Clock,
		delay:   opts.BatchDelay,
		pub:     opts.Publisher,
		logger:  opts.Logger,
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.pub == nil {
		e.pub = &events.NoopPublisher{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Deliver copies d to userID. A single item that cannot be copied yields
// ErrCopyFailed. A batch never fails as a whole: failing items are skipped
// and counted, copies are issued one at a time in ascending order.
func (e *Engine) Deliver(ctx context.Context, d *domain.ContentDescriptor, userID int64) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, err
	}

	var res Result
	switch d.Kind {
	case domain.ContentSingle:
		var opts platform.CopyOptions
		if d.Caption != "" {
			caption := d.Caption
			opts.Caption = &caption
		}
		res.Attempted = 1
		id, err := e.copy(ctx, userID, d.SourceChat, d.StartMsg, opts)
		if err != nil {
			return res, fmt.Errorf("deliver %s: %w: %w", d.Token, ErrCopyFailed, err)
		}
		res.Delivered = 1
		res.Handles = append(res.Handles, e.janitor.ScheduleAfter(userID, id, expiry.LongTTL))

	case domain.ContentBatch:
		for msgID := d.StartMsg; msgID <= d.EndMsg; msgID++ {
			if msgID > d.StartMsg && e.delay > 0 {
				select {
				case <-ctx.Done():
					return res, ctx.Err()
				case <-e.clock.After(e.delay):
				}
			}
			res.Attempted++
			id, err := e.copy(ctx, userID, d.SourceChat, msgID, platform.CopyOptions{})
			if err != nil {
				e.logger.Warn("Batch item copy failed, skipping",
					"token", d.Token, "message_id", msgID, "user_id", userID, "error", err)
				continue
			}
			res.Delivered++
			res.Handles = append(res.Handles, e.janitor.ScheduleAfter(userID, id, expiry.LongTTL))
		}
	}

	metrics.DeliveriesTotal.WithLabelValues(string(d.Kind)).Inc()

	statusID, err := e.msgr.SendMessage(ctx, platform.OutgoingMessage{
		ChatID: userID,
		Text:   StatusText(d.Kind, res),
		HTML:   true,
	})
	if err != nil {
		e.logger.Warn("Failed to send delivery status", "user_id", userID, "error", err)
	} else {
		res.Handles = append(res.Handles, e.janitor.ScheduleAfter(userID, statusID, expiry.LongTTL))
	}

	events.Emit(ctx, e.pub, events.TopicContentDelivered, events.ContentDelivered{
		Token:     d.Token,
		UserID:    userID,
		Attempted: res.Attempted,
		Delivered: res.Delivered,
	})
	return res, nil
}

func (e *Engine) copy(ctx context.Context, to, from int64, msgID int, opts platform.CopyOptions) (int, error) {
	id, err := e.msgr.CopyMessage(ctx, to, from, msgID, opts)
	if err != nil {
		metrics.CopiesTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.CopiesTotal.WithLabelValues("ok").Inc()
	return id, nil
}

// StatusText describes a finished delivery and its expiry.
func StatusText(kind domain.ContentKind, res Result) string {
	mins := int(expiry.LongTTL / time.Minute)
	if kind == domain.ContentSingle {
		return fmt.Sprintf("⚠️ This file deletes in %d mins.", mins)
	}
	if res.Delivered == 0 {
		return fmt.Sprintf("❌ None of the %d files could be delivered.", res.Attempted)
	}
	return fmt.Sprintf("✅ <b>%d of %d delivered.</b>\n⚠️ These files delete in %d mins.", res.Delivered, res.Attempted, mins)
}
