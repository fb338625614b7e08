package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"travelai/internal/config"
	"travelai/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDSN: config.DefaultSQLiteDSN})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDSN != config.DefaultSQLiteDSN {
		t.Errorf("unexpected backend config: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Type: MemoryBackend}, ""},
		{"sqlite in memory", Config{Type: SQLiteBackend, SQLiteDSN: ":memory:"}, ""},
		{"sqlite without dsn", Config{Type: SQLiteBackend}, "DSN is required"},
		{"sqlite on disk", Config{Type: SQLiteBackend, SQLiteDSN: "./travel.db"}, "must be in-memory"},
		{"unknown", Config{Type: "postgres"}, "invalid backend type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared"},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Cleanup()

			if res.Ready != nil {
				if err := res.Ready(ctx); err != nil {
					t.Fatalf("Ready: %v", err)
				}
			}
			p := core.Participant{UserID: "a", DisplayName: "Alice"}
			if err := res.Workspace.UpsertParticipant(ctx, "trip", p); err != nil {
				t.Fatalf("UpsertParticipant: %v", err)
			}
			ps, err := res.Workspace.Participants(ctx, "trip")
			if err != nil || len(ps) != 1 || ps[0] != p {
				t.Fatalf("Participants = %+v, %v", ps, err)
			}
		})
	}

	if _, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDSN: "travel.db"}); err == nil {
		t.Fatal("expected file DSN to be rejected")
	}
}
