// Package expiry deletes delivered messages once their lifetime is over.
//
// Each scheduled message owns one timer on the injected clock. Timers live
// only in memory: a restart forgets them, which can leave messages behind
// but never deletes one early.
package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/clock"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/metrics"
)

// Lifetime classes.
const (
	// ShortTTL applies to welcome messages, join prompts and transient notices.
	ShortTTL = 60 * time.Second
	// LongTTL applies to delivered content and the status line describing it.
	LongTTL = 1800 * time.Second
)

// Deleter removes one message.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type key struct {
	chat int64
	msg  int
}

type entry struct {
	handle domain.EphemeralHandle
	timer  clock.Timer
}

// Janitor schedules deletions.
type Janitor struct {
	deleter Deleter
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[key]*entry
	stopped bool
}

// New returns a Janitor that deletes through d, bounding each call by timeout.
func New(d Deleter, c clock.Clock, timeout time.Duration, logger *slog.Logger) *Janitor {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		deleter: d,
		clock:   c,
		timeout: timeout,
		logger:  logger,
		entries: make(map[key]*entry),
	}
}

// ScheduleAfter schedules deletion of (chatID, messageID) ttl from now.
func (j *Janitor) ScheduleAfter(chatID int64, messageID int, ttl time.Duration) domain.EphemeralHandle {
	h := domain.EphemeralHandle{ChatID: chatID, MessageID: messageID, FireAt: j.clock.Now().Add(ttl)}
	j.Schedule(h)
	return h
}

// Schedule registers h. Scheduling the same message twice replaces the
// earlier deadline. Schedule never blocks on the platform.
func (j *Janitor) Schedule(h domain.EphemeralHandle) {
	k := key{chat: h.ChatID, msg: h.MessageID}
	e := &entry{handle: h}

	j.mu.Lock()
	if j.stopped {
		j.mu.Unlock()
		return
	}
	if prev, ok := j.entries[k]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	j.entries[k] = e
	j.mu.Unlock()

	metrics.ExpiryScheduled.Inc()

	delay := h.FireAt.Sub(j.clock.Now())
	t := j.clock.AfterFunc(delay, func() { j.fire(k, e) })

	j.mu.Lock()
	if cur, ok := j.entries[k]; ok && cur == e {
		e.timer = t
	}
	j.mu.Unlock()
	j.updatePending()
}

func (j *Janitor) fire(k key, e *entry) {
	j.mu.Lock()
	cur, ok := j.entries[k]
	if !ok || cur != e {
		j.mu.Unlock()
		return
	}
	delete(j.entries, k)
	j.mu.Unlock()
	j.updatePending()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.deleter.DeleteMessage(ctx, k.chat, k.msg); err != nil {
		// The user may already have removed the message.
		j.logger.Debug("Scheduled delete failed", "chat_id", k.chat, "message_id", k.msg, "error", err)
		metrics.ExpiryDeleted.WithLabelValues("error").Inc()
		return
	}
	metrics.ExpiryDeleted.WithLabelValues("ok").Inc()
}

// Pending returns the handles that have not fired yet.
func (j *Janitor) Pending() []domain.EphemeralHandle {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.EphemeralHandle, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.handle)
	}
	return out
}

// Stop cancels every outstanding timer. Messages still pending are left in
// place. Later calls to Schedule are ignored.
func (j *Janitor) Stop() int {
	j.mu.Lock()
	j.stopped = true
	n := len(j.entries)
	for k, e := range j.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(j.entries, k)
	}
	j.mu.Unlock()
	j.updatePending()
	if n > 0 {
		j.logger.Info("Janitor stopped with pending deletions", "pending", n)
	}
	return n
}

func (j *Janitor) updatePending() {
	j.mu.Lock()
	n := len(j.entries)
	j.mu.Unlock()
	metrics.ExpiryPending.Set(float64(n))
}
