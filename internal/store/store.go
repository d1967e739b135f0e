// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Noha9900/advance-filestorebot/internal/config"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
)

// Settings keys.
const (
	KeyGateRequirements = "gate_requirements"
	KeyWelcomeMessage   = "welcome_msg"
)

// ErrDuplicate is returned when a record with the same key already exists.
var ErrDuplicate = errors.New("duplicate key")

// Repository defines the persistence operations of the bot. Lookups return
// nil and no error when the record does not exist.
type Repository interface {
	// SaveContent inserts a new descriptor. Existing tokens are never overwritten.
	SaveContent(ctx context.Context, d *domain.ContentDescriptor) error

	// GetContent retrieves a descriptor by token.
	GetContent(ctx context.Context, token string) (*domain.ContentDescriptor, error)

	// GetGateRequirement returns the configured subscription checks.
	GetGateRequirement(ctx context.Context) (*domain.GateRequirement, error)

	// SaveGateRequirement replaces the configured subscription checks.
	SaveGateRequirement(ctx context.Context, req *domain.GateRequirement) error

	// GetSetting returns a free-form setting, "" when unset.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting stores a free-form setting.
	SetSetting(ctx context.Context, key, value string) error

	// GetRelaySession retrieves the relay session of a user.
	GetRelaySession(ctx context.Context, userID int64) (*domain.RelaySession, error)

	// UpsertRelaySession creates or updates a relay session.
	UpsertRelaySession(ctx context.Context, s *domain.RelaySession) error

	// SaveCorrelation records which user an operator-side message belongs to.
	SaveCorrelation(ctx context.Context, c *domain.RelayCorrelation) error

	// GetCorrelation looks up an operator-side message.
	GetCorrelation(ctx context.Context, operatorMessageID int) (*domain.RelayCorrelation, error)

	// UpsertUser records a user, keeping the original join time.
	UpsertUser(ctx context.Context, u *domain.User) error

	// CountUsers returns the number of known users.
	CountUsers(ctx context.Context) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Open returns the repository selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		return NewMongo(ctx, cfg.MongoURL, cfg.MongoDB)
	case config.StoreSQLite:
		return NewSQLite(cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
