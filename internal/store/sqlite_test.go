package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/domain"
)

func newTestSQLite(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteContentRoundTrip(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	got, err := repo.GetContent(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("GetContent(missing) = %v, %v; want nil, nil", got, err)
	}

	want := &domain.ContentDescriptor{
		Token:      "batch77",
		Kind:       domain.ContentBatch,
		SourceChat: -1001234,
		StartMsg:   10,
		EndMsg:     12,
		Caption:    "bundle",
		CreatedAt:  time.Unix(1700000000, 0),
	}
	if err := repo.SaveContent(ctx, want); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	got, err = repo.GetContent(ctx, "batch77")
	if err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if got == nil || *got != *want {
		t.Fatalf("GetContent() = %+v, want %+v", got, want)
	}

	if err := repo.SaveContent(ctx, want); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second SaveContent() error = %v, want ErrDuplicate", err)
	}
}

func TestSQLiteSettingsAndGate(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	if v, err := repo.GetSetting(ctx, KeyWelcomeMessage); err != nil || v != "" {
		t.Fatalf("GetSetting(unset) = %q, %v", v, err)
	}
	if err := repo.SetSetting(ctx, KeyWelcomeMessage, "hi"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetSetting(ctx, KeyWelcomeMessage, "hello"); err != nil {
		t.Fatal(err)
	}
	if v, _ := repo.GetSetting(ctx, KeyWelcomeMessage); v != "hello" {
		t.Fatalf("GetSetting() = %q, want hello", v)
	}

	if req, err := repo.GetGateRequirement(ctx); err != nil || req != nil {
		t.Fatalf("GetGateRequirement(unset) = %v, %v", req, err)
	}
	req := &domain.GateRequirement{
		Primary: &domain.ChannelRequirement{ChatID: -100, Name: "Main", JoinLink: "https://t.me/main"},
		Additional: []domain.ChannelRequirement{
			{ChatID: -200, Name: "Extra", JoinLink: "https://t.me/extra"},
		},
	}
	if err := repo.SaveGateRequirement(ctx, req); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetGateRequirement(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Primary == nil || got.Primary.ChatID != -100 || len(got.Additional) != 1 || got.Additional[0].Name != "Extra" {
		t.Fatalf("GetGateRequirement() = %+v", got)
	}
}

func TestSQLiteRelaySessionAndCorrelation(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	opened := time.Unix(1700000000, 0)
	rs := &domain.RelaySession{UserID: 42, SessionID: "s-1", Active: true, OpenedAt: opened}
	if err := repo.UpsertRelaySession(ctx, rs); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetRelaySession(ctx, 42)
	if err != nil || got == nil || !got.Active || got.SessionID != "s-1" || got.ClosedAt != nil {
		t.Fatalf("GetRelaySession() = %+v, %v", got, err)
	}

	closed := opened.Add(time.Hour)
	rs.Active = false
	rs.ClosedAt = &closed
	if err := repo.UpsertRelaySession(ctx, rs); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.GetRelaySession(ctx, 42)
	if got.Active || got.ClosedAt == nil || !got.ClosedAt.Equal(closed) {
		t.Fatalf("closed session = %+v", got)
	}

	if c, err := repo.GetCorrelation(ctx, 900); err != nil || c != nil {
		t.Fatalf("GetCorrelation(missing) = %v, %v", c, err)
	}
	corr := &domain.RelayCorrelation{OperatorMessageID: 900, UserID: 42, SessionID: "s-1", CreatedAt: opened}
	if err := repo.SaveCorrelation(ctx, corr); err != nil {
		t.Fatal(err)
	}
	c, err := repo.GetCorrelation(ctx, 900)
	if err != nil || c == nil || c.UserID != 42 || c.SessionID != "s-1" {
		t.Fatalf("GetCorrelation() = %+v, %v", c, err)
	}
}

func TestSQLiteUsers(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	first := time.Unix(1700000000, 0)
	u := &domain.User{ID: 7, Username: "ann", FirstName: "Ann", JoinedAt: first, LastSeenAt: first}
	if err := repo.UpsertUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	u.JoinedAt = first.Add(time.Hour)
	u.LastSeenAt = first.Add(time.Hour)
	if err := repo.UpsertUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertUser(ctx, &domain.User{ID: 8, JoinedAt: first, LastSeenAt: first}); err != nil {
		t.Fatal(err)
	}

	n, err := repo.CountUsers(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountUsers() = %d, %v; want 2", n, err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
