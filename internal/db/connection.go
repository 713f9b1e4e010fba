package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// DB holds the database connection
type DB struct {
	*sqlx.DB

	// Now is the clock used for visibility checks
	Now func() time.Time
}

var _ Store = (*DB)(nil)

// Connect establishes a connection to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	sqlxDB, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, err
	}

	return &DB{DB: sqlxDB, Now: time.Now}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health checks if the database connection is healthy
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) now() time.Time {
	if db.Now != nil {
		return db.Now()
	}
	return time.Now()
}
