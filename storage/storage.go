// Package storage is the guest-mode durable layer, sqlite standing in for
// the browser's localStorage.
package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // sqlite driver
)

// Open connects to the sqlite file backing local persistence, creating it
// on first run.
func Open(file string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", file, err)
	}
	return db, nil
}
