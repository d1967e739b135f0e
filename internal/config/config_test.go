package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AdminID != 42 || !cfg.IsOperator(42) || cfg.IsOperator(43) {
		t.Fatalf("unexpected admin: %d", cfg.AdminID)
	}
	if cfg.StoreDriver != StoreMongo || cfg.MongoDB != "telegram_bot_db" {
		t.Fatalf("unexpected store defaults: %q %q", cfg.StoreDriver, cfg.MongoDB)
	}
	if cfg.BatchDelay != 500*time.Millisecond {
		t.Fatalf("BatchDelay = %v", cfg.BatchDelay)
	}
	if cfg.Events.Driver != EventsNone {
		t.Fatalf("Events.Driver = %q", cfg.Events.Driver)
	}
	if cfg.Workers != 8 {
		t.Fatalf("Workers = %d", cfg.Workers)
	}
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("BATCH_DELAY", "0")
	t.Setenv("RELAY_MAX_VIDEO", "2m")
	t.Setenv("OPERATOR_ONLINE_WINDOW", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchDelay != 0 {
		t.Fatalf("BatchDelay = %v, want 0", cfg.BatchDelay)
	}
	if cfg.RelayMaxVideo != 2*time.Minute {
		t.Fatalf("RelayMaxVideo = %v", cfg.RelayMaxVideo)
	}
	if cfg.OperatorOnlineWindow != 5*time.Minute {
		t.Fatalf("OperatorOnlineWindow = %v, want fallback", cfg.OperatorOnlineWindow)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing token", map[string]string{"ADMIN_ID": "1"}, "BOT_TOKEN"},
		{"missing admin", map[string]string{"BOT_TOKEN": "x"}, "ADMIN_ID"},
		{"malformed admin", map[string]string{"BOT_TOKEN": "x", "ADMIN_ID": "abc"}, "ADMIN_ID"},
		{"bad store", map[string]string{"BOT_TOKEN": "x", "ADMIN_ID": "1", "STORE_DRIVER": "redis"}, "STORE_DRIVER"},
		{"bad events", map[string]string{"BOT_TOKEN": "x", "ADMIN_ID": "1", "EVENTS_DRIVER": "kafka"}, "EVENTS_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BOT_TOKEN", "")
			t.Setenv("ADMIN_ID", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}
