package persona

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no persona has the requested id.
var ErrNotFound = errors.New("persona not found")

// Store exposes persona retrieval for HTTP handlers and the login flow.
type Store interface {
	List(ctx context.Context) ([]Persona, error)
	FindByID(ctx context.Context, id uint) (Persona, error)
}

// DBStore implements Store on top of the relational database.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore returns a DBStore reading from db.
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

// List returns all personas ordered by id.
func (s *DBStore) List(ctx context.Context) ([]Persona, error) {
	var items []Persona
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("persona: list: %w", err)
	}
	return items, nil
}

// FindByID looks up a persona by identifier.
func (s *DBStore) FindByID(ctx context.Context, id uint) (Persona, error) {
	var item Persona
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Persona{}, ErrNotFound
	}
	if err != nil {
		return Persona{}, fmt.Errorf("persona: find %d: %w", id, err)
	}
	return item, nil
}

// Upsert writes personas keyed by id, updating name and description of
// existing rows.
func (s *DBStore) Upsert(ctx context.Context, items []Persona) error {
	for _, item := range items {
		item := item
		result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description"}),
		}).Create(&item)
		if result.Error != nil {
			return fmt.Errorf("persona: seed %q: %w", item.Name, result.Error)
		}
	}
	return nil
}
