// Package content mints and resolves content tokens.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/Noha9900/advance-filestorebot/internal/clock"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/events"
	"github.com/Noha9900/advance-filestorebot/internal/identity"
	"github.com/Noha9900/advance-filestorebot/internal/idgen"
	"github.com/Noha9900/advance-filestorebot/internal/store"
)

var (
	// ErrNotFound is returned for tokens that are unknown or malformed.
	ErrNotFound = errors.New("content not found")
	// ErrInvalidRange is returned when a batch ends before it starts.
	ErrInvalidRange = domain.ErrInvalidRange
	// ErrBatchTooLarge is returned for batches longer than MaxBatch messages.
	ErrBatchTooLarge = errors.New("batch too large")
)

// MaxBatch is the largest number of messages one batch may cover.
const MaxBatch = 200

// mintAttempts bounds retries on the (unlikely) token collision.
const mintAttempts = 3

// NewContent describes content to be stored.
type NewContent struct {
	Kind       domain.ContentKind
	SourceChat int64
	StartMsg   int
	EndMsg     int
	Caption    string
	CreatedBy  int64
}

// Store is the content store service.
type Store struct {
	repo   store.Repository
	pub    events.Publisher
	clock  clock.Clock
	newTok func() (string, error)
}

// NewStore returns a content store on repo.
func NewStore(repo store.Repository, pub events.Publisher, c clock.Clock) *Store {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if c == nil {
		c = clock.Real()
	}
	return &Store{repo: repo, pub: pub, clock: c, newTok: idgen.Token}
}

// Create validates nc, mints a fresh token and persists the descriptor.
// Creating the same content twice yields two independent tokens.
func (s *Store) Create(ctx context.Context, nc NewContent) (*domain.ContentDescriptor, error) {
	d := &domain.ContentDescriptor{
		Kind:       nc.Kind,
		SourceChat: nc.SourceChat,
		StartMsg:   nc.StartMsg,
		EndMsg:     nc.EndMsg,
		Caption:    nc.Caption,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if d.Kind == domain.ContentSingle {
		d.EndMsg = 0
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Count() > MaxBatch {
		return nil, fmt.Errorf("%d messages, limit %d: %w", d.Count(), MaxBatch, ErrBatchTooLarge)
	}

	var err error
	for i := 0; i < mintAttempts; i++ {
		if d.Token, err = s.newTok(); err != nil {
			return nil, fmt.Errorf("mint token: %w", err)
		}
		err = s.repo.SaveContent(ctx, d)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("create content: %w", err)
		}
		slog.Debug("Token collision, minting again", "token", d.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}

	events.Emit(ctx, s.pub, events.TopicContentCreated, events.ContentCreated{
		Token:     d.Token,
		Kind:      string(d.Kind),
		Source:    d.SourceChat,
		StartMsg:  d.StartMsg,
		EndMsg:    d.EndMsg,
		CreatedBy: nc.CreatedBy,
	})
	return d, nil
}

// Resolve returns the descriptor for token or ErrNotFound.
func (s *Store) Resolve(ctx context.Context, token string) (*domain.ContentDescriptor, error) {
	token = identity.SanitizeToken(token)
	if token == "" {
		return nil, ErrNotFound
	}
	d, err := s.repo.GetContent(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve content: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// Link returns the deep link that starts the bot with token as payload.
func Link(botUsername, token string) string {
	return "https://t.me/" + url.PathEscape(botUsername) + "?start=" + url.QueryEscape(token)
}
