package persona

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Persona is an AI character configuration a conversation is conducted as.
type Persona struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id" yaml:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name" yaml:"name"`
	Description string    `gorm:"size:255" json:"description" yaml:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"-" yaml:"-"`
}

// TableName keeps the table name used by the existing database.
func (Persona) TableName() string { return "Persona" }

// Seed provides the default personas installed by `migrate --seed`.
func Seed() []Persona {
	return []Persona{
		{
			ID:          1,
			Name:        "First Jobber",
			Description: "Early-career saver building a first emergency fund and looking for a starter card.",
		},
		{
			ID:          2,
			Name:        "Young Family",
			Description: "Dual-income household balancing childcare costs, a mortgage and monthly budgeting.",
		},
		{
			ID:          3,
			Name:        "Active Retiree",
			Description: "Retired customer focused on stable income, travel spending and low-fee products.",
		},
	}
}

type seedFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadSeedFile reads personas from a YAML file of the form
//
//	personas:
//	  - id: 1
//	    name: First Jobber
//	    description: ...
func LoadSeedFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed unmarshals and validates persona seed YAML.
func ParseSeed(data []byte) ([]Persona, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("persona: parse seed: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Personas))
	for i, p := range file.Personas {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("persona: seed entry %d: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("persona: seed entry %d: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		file.Personas[i].Name = name
	}
	return file.Personas, nil
}
