// Package db opens and migrates the relational store holding personas,
// sessions, chat turns and response details.
package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Dialector picks the gorm driver for a DATABASE_URL value. URLs starting
// with sqlite:// open a SQLite file (or :memory:); anything else is treated
// as a MySQL DSN.
func Dialector(url string) (gorm.Dialector, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("db: DATABASE_URL is empty")
	}
	if strings.HasPrefix(url, sqlitePrefix) {
		path := strings.TrimPrefix(url, sqlitePrefix)
		if path == "" {
			return nil, fmt.Errorf("db: sqlite url %q has no path", url)
		}
		return sqlite.Open(path), nil
	}
	return mysql.Open(ensureParseTime(url)), nil
}

// ensureParseTime makes the MySQL driver scan DATETIME columns into time.Time.
func ensureParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// Connect opens a GORM connection for the given DATABASE_URL.
func Connect(url string) (*gorm.DB, error) {
	dialector, err := Dialector(url)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// SQLite has a single writer, and every :memory: connection is its own database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}
