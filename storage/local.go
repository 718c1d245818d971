package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/sparqchat/sparqui/internal/chat"
)

const (
	sessionsKey = "chatSessions"
	themeKey    = "theme"
)

// Local is the guest-mode durable store: a single key-value table holding
// the whole session map as one JSON document, plus the theme preference.
type Local struct {
	db *sqlx.DB
}

// NewLocal creates the kv table if needed and returns the local store.
func NewLocal(db *sqlx.DB) (*Local, error) {
	createKVTable := `
	CREATE TABLE IF NOT EXISTS kv (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)
	`
	if _, err := db.Exec(createKVTable); err != nil {
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &Local{db: db}, nil
}

// ReadSessions returns the stored session map, empty if nothing was saved yet.
func (l *Local) ReadSessions() (map[string]*chat.Session, error) {
	raw, err := l.get(sessionsKey)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]*chat.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session map: %w", err)
	}

	sessions := map[string]*chat.Session{}
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session map: %w", err)
	}

	slog.Debug("read local sessions",
		slog.Int("count", len(sessions)),
	)
	return sessions, nil
}

// WriteSessions atomically replaces the whole stored session map.
func (l *Local) WriteSessions(sessions map[string]*chat.Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal session map: %w", err)
	}
	if err := l.set(sessionsKey, string(raw)); err != nil {
		return fmt.Errorf("failed to write session map: %w", err)
	}

	slog.Debug("wrote local sessions",
		slog.Int("count", len(sessions)),
		slog.Int("bytes", len(raw)),
	)
	return nil
}

// ClearSessions drops the stored session map. Called after a successful
// migration to the remote store.
func (l *Local) ClearSessions() error {
	if _, err := l.db.Exec("DELETE FROM kv WHERE name = ?", sessionsKey); err != nil {
		return fmt.Errorf("failed to clear session map: %w", err)
	}

	slog.Debug("cleared local sessions")
	return nil
}

// Theme returns the saved theme preference, "" if unset.
func (l *Local) Theme() (string, error) {
	theme, err := l.get(themeKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get theme: %w", err)
	}
	return theme, nil
}

// SetTheme saves the theme preference ("dark" or "light").
func (l *Local) SetTheme(theme string) error {
	if theme != "dark" && theme != "light" {
		return fmt.Errorf("unknown theme %q", theme)
	}
	if err := l.set(themeKey, theme); err != nil {
		return fmt.Errorf("failed to set theme: %w", err)
	}

	slog.Debug("theme saved", slog.String("theme", theme))
	return nil
}

func (l *Local) get(name string) (string, error) {
	var value string
	if err := l.db.Get(&value, "SELECT value FROM kv WHERE name = ?", name); err != nil {
		return "", err
	}
	return value, nil
}

func (l *Local) set(name, value string) error {
	_, err := l.db.Exec("INSERT OR REPLACE INTO kv (name, value) VALUES (?, ?)", name, value)
	return err
}
