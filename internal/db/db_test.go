package db

import (
	"context"
	"testing"

	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "sqlite memory", url: "sqlite://:memory:", want: "sqlite"},
		{name: "sqlite file", url: "sqlite:///tmp/relay.db", want: "sqlite"},
		{name: "mysql dsn", url: "relay:secret@tcp(127.0.0.1:3306)/relay", want: "mysql"},
		{name: "empty", url: "  ", wantErr: true},
		{name: "sqlite without path", url: "sqlite://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Dialector(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Dialector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Name() != tt.want {
				t.Errorf("Dialector() = %q, want %q", got.Name(), tt.want)
			}
		})
	}
}

func TestEnsureParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"u@tcp(h:3306)/d", "u@tcp(h:3306)/d?parseTime=true"},
		{"u@tcp(h:3306)/d?charset=utf8mb4", "u@tcp(h:3306)/d?charset=utf8mb4&parseTime=true"},
		{"u@tcp(h:3306)/d?parseTime=false", "u@tcp(h:3306)/d?parseTime=false"},
	}
	for _, tt := range tests {
		if got := ensureParseTime(tt.in); got != tt.want {
			t.Errorf("ensureParseTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMigrateAndSeed(t *testing.T) {
	gdb, err := Connect("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate err: %v", err)
	}

	ctx := context.Background()
	if err := SeedPersonas(ctx, gdb, persona.Seed()); err != nil {
		t.Fatalf("SeedPersonas err: %v", err)
	}
	// seeding twice must not fail on the unique name index
	if err := SeedPersonas(ctx, gdb, persona.Seed()); err != nil {
		t.Fatalf("second SeedPersonas err: %v", err)
	}

	items, err := persona.NewDBStore(gdb).List(ctx)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(items) != len(persona.Seed()) {
		t.Fatalf("expected %d personas, got %d", len(persona.Seed()), len(items))
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 4 {
		t.Errorf("AllModels() returned %d models, want 4", got)
	}
}
