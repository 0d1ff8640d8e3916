package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
)

// AllModels returns every GORM model owned by this service.
func AllModels() []interface{} {
	return []interface{}{
		&persona.Persona{},
		&chat.Session{},
		&chat.Turn{},
		&chat.ResponseDetail{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedPersonas upserts the given personas.
func SeedPersonas(ctx context.Context, db *gorm.DB, items []persona.Persona) error {
	return persona.NewDBStore(db).Upsert(ctx, items)
}
