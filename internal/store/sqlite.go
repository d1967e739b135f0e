package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS content (
		token TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source_chat INTEGER NOT NULL,
		start_msg INTEGER NOT NULL,
		end_msg INTEGER NOT NULL DEFAULT 0,
		caption TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relay_sessions (
		user_id INTEGER PRIMARY KEY,
		session_id TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		opened_at INTEGER NOT NULL,
		closed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS relay_correlations (
		operator_message_id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relay_correlations_user ON relay_correlations(user_id);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		joined_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// exec runs a write statement, retrying while the database is locked.
func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) error {
	return shared.RetryOnConflict(ctx, shared.DefaultRetry, op, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveContent inserts a new descriptor.
func (s *SQLiteStore) SaveContent(ctx context.Context, d *domain.ContentDescriptor) error {
	query := `
	INSERT INTO content (token, kind, source_chat, start_msg, end_msg, caption, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := s.exec(ctx, "save content", query,
		d.Token, string(d.Kind), d.SourceChat, d.StartMsg, d.EndMsg, d.Caption, d.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("save content %s: %w", d.Token, ErrDuplicate)
		}
		return fmt.Errorf("save content: %w", err)
	}
	return nil
}

// GetContent retrieves a descriptor by token.
func (s *SQLiteStore) GetContent(ctx context.Context, token string) (*domain.ContentDescriptor, error) {
	query := `
		SELECT token, kind, source_chat, start_msg, end_msg, caption, created_at
		FROM content WHERE token = ?`

	var d domain.ContentDescriptor
	var kind string
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&d.Token, &kind, &d.SourceChat, &d.StartMsg, &d.EndMsg, &d.Caption, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan content row: %w", err)
	}

	d.Kind = domain.ContentKind(kind)
	d.CreatedAt = time.Unix(createdAt, 0)
	return &d, nil
}

// GetSetting returns a setting value, "" when unset.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if err := s.exec(ctx, "set setting", query, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetGateRequirement returns the configured subscription checks.
func (s *SQLiteStore) GetGateRequirement(ctx context.Context) (*domain.GateRequirement, error) {
	raw, err := s.GetSetting(ctx, KeyGateRequirements)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var req domain.GateRequirement
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("decode gate requirements: %w", err)
	}
	return &req, nil
}

// SaveGateRequirement replaces the configured subscription checks.
func (s *SQLiteStore) SaveGateRequirement(ctx context.Context, req *domain.GateRequirement) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode gate requirements: %w", err)
	}
	return s.SetSetting(ctx, KeyGateRequirements, string(raw))
}

// GetRelaySession retrieves the relay session of a user.
func (s *SQLiteStore) GetRelaySession(ctx context.Context, userID int64) (*domain.RelaySession, error) {
	query := `
		SELECT user_id, session_id, active, opened_at, closed_at
		FROM relay_sessions WHERE user_id = ?`

	var rs domain.RelaySession
	var openedAt int64
	var closedAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&rs.UserID, &rs.SessionID, &rs.Active, &openedAt, &closedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan relay session: %w", err)
	}

	rs.OpenedAt = time.Unix(openedAt, 0)
	if closedAt.Valid {
		ts := time.Unix(closedAt.Int64, 0)
		rs.ClosedAt = &ts
	}
	return &rs, nil
}

// UpsertRelaySession creates or updates a relay session.
func (s *SQLiteStore) UpsertRelaySession(ctx context.Context, rs *domain.RelaySession) error {
	query := `
		INSERT INTO relay_sessions (user_id, session_id, active, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_id = excluded.session_id,
			active = excluded.active,
			opened_at = excluded.opened_at,
			closed_at = excluded.closed_at`

	var closedAt interface{}
	if rs.ClosedAt != nil {
		closedAt = rs.ClosedAt.Unix()
	}

	err := s.exec(ctx, "upsert relay session", query,
		rs.UserID, rs.SessionID, rs.Active, rs.OpenedAt.Unix(), closedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert relay session: %w", err)
	}
	return nil
}

// SaveCorrelation records which user an operator-side message belongs to.
func (s *SQLiteStore) SaveCorrelation(ctx context.Context, c *domain.RelayCorrelation) error {
	query := `
		INSERT INTO relay_correlations (operator_message_id, user_id, session_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(operator_message_id) DO UPDATE SET
			user_id = excluded.user_id,
			session_id = excluded.session_id,
			created_at = excluded.created_at`

	err := s.exec(ctx, "save correlation", query,
		c.OperatorMessageID, c.UserID, c.SessionID, c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save correlation: %w", err)
	}
	return nil
}

// GetCorrelation looks up an operator-side message.
func (s *SQLiteStore) GetCorrelation(ctx context.Context, operatorMessageID int) (*domain.RelayCorrelation, error) {
	query := `
		SELECT operator_message_id, user_id, session_id, created_at
		FROM relay_correlations WHERE operator_message_id = ?`

	var c domain.RelayCorrelation
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, operatorMessageID).Scan(
		&c.OperatorMessageID, &c.UserID, &c.SessionID, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan correlation: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

// UpsertUser records a user, keeping the original join time.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, first_name, joined_at, last_seen_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		first_name = excluded.first_name,
		last_seen_at = excluded.last_seen_at`

	err := s.exec(ctx, "upsert user", query,
		u.ID, u.Username, u.FirstName, u.JoinedAt.Unix(), u.LastSeenAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// CountUsers returns the number of known users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
