// Package database archives served channel messages.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/model"
)

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Store defines the archive operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SaveMessages inserts messages not yet stored for channel and returns
	// how many were new.
	SaveMessages(ctx context.Context, channel string, msgs []model.Message) (int, error)

	// RecentMessages returns up to limit messages of channel, newest first.
	RecentMessages(ctx context.Context, channel string, limit int) ([]model.Message, error)

	// PruneOlderThan deletes messages posted more than age ago.
	PruneOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Open returns the store for driver. DriverNone returns a nil Store.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverSQLite:
		if dsn == "" {
			dsn = "chanwidget.db"
		}
		db, err := New(dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	case DriverPostgres:
		db, err := NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
