// Package store owns the in-memory session map, the active session pointer
// and the storage mode. All mutations are serialized by one mutex so the
// engine and fire-and-forget side tasks can share it safely.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sparqchat/sparqui/internal/chat"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrEmptyMessage        = errors.New("message text is empty")
	ErrIndexOutOfRange     = errors.New("message index out of range")
	ErrNotUserMessage      = errors.New("target message is not a user message")
	ErrNothingToRegenerate = errors.New("no completed exchange to regenerate")
	ErrLastMessageIsUser   = errors.New("last message is not a model response")
)

// LocalStore is the guest-mode persistence backend.
type LocalStore interface {
	ReadSessions() (map[string]*chat.Session, error)
	WriteSessions(sessions map[string]*chat.Session) error
	ClearSessions() error
}

// RemoteStore is the authenticated-mode persistence backend.
type RemoteStore interface {
	SaveSession(ctx context.Context, s *chat.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// Store maps session ids to session records and tracks which one is active.
type Store struct {
	mu            sync.Mutex
	local         LocalStore
	remote        RemoteStore
	sessions      map[string]*chat.Session
	activeID      string
	authenticated bool
}

// NewStore creates an empty store in guest mode.
func NewStore(local LocalStore) *Store {
	return &Store{
		local:    local,
		sessions: map[string]*chat.Session{},
	}
}

// SetAuthenticated switches persistence to the given remote store.
func (s *Store) SetAuthenticated(remote RemoteStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.remote = remote
}

// SetGuest switches persistence back to the local store.
func (s *Store) SetGuest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	s.remote = nil
}

// Authenticated reports the current storage mode.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Create allocates a new empty session, makes it active and persists it.
// Ids are wall-clock milliseconds; a uuid suffix disambiguates the rare
// same-millisecond collision.
func (s *Store) Create(ctx context.Context) (*chat.Session, error) {
	s.mu.Lock()
	id := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if _, exists := s.sessions[id]; exists {
		id = fmt.Sprintf("%s-%s", id, uuid.NewString()[:8])
	}
	session := chat.NewSession(id)
	s.sessions[id] = session
	s.activeID = id
	s.mu.Unlock()

	if err := s.Persist(ctx, id); err != nil {
		return nil, err
	}

	slog.Debug("session created", slog.String("id", id))
	return session, nil
}

// Get returns the session for id.
func (s *Store) Get(id string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Active returns the currently active session, nil when the store is empty.
func (s *Store) Active() *chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[s.activeID]
}

// ActiveID returns the active session pointer.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActive swaps the active session pointer. Switching to the already
// active session is a no-op; the returned bool reports whether a switch
// actually happened so the caller knows to reload the transcript.
func (s *Store) SetActive(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == id {
		return false, nil
	}
	if _, ok := s.sessions[id]; !ok {
		return false, ErrSessionNotFound
	}
	s.activeID = id
	return true, nil
}

// IDs returns all session ids, most recent first.
func (s *Store) IDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	chat.SortIDs(ids)
	return ids
}

// Len reports the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Delete removes the session locally. In authenticated mode the remote
// delete is best effort: local state stays authoritative and a remote
// failure is only logged. If the deleted session was active, or none
// remain, a fresh empty session is created and activated.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	wasActive := s.activeID == id
	empty := len(s.sessions) == 0
	authenticated := s.authenticated
	remote := s.remote
	s.mu.Unlock()

	if authenticated && remote != nil {
		if err := remote.DeleteSession(ctx, id); err != nil {
			slog.Error("Failed to delete remote session", "id", id, "error", err)
		}
	} else {
		if err := s.persistLocal(); err != nil {
			return err
		}
	}

	slog.Debug("session deleted", slog.String("id", id))

	if wasActive || empty {
		if _, err := s.Create(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Persist writes the session through the current backend: the whole map to
// the local store in guest mode, the single target record to the remote
// store in authenticated mode.
func (s *Store) Persist(ctx context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	authenticated := s.authenticated
	remote := s.remote
	snapshot := session.Clone()
	s.mu.Unlock()

	if authenticated && remote != nil {
		if err := remote.SaveSession(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to save session %s remotely: %w", id, err)
		}
		return nil
	}
	return s.persistLocal()
}

// LoadLocal replaces the in-memory map with the local store's content and
// activates the most recent session, creating one when the store is empty.
func (s *Store) LoadLocal(ctx context.Context) error {
	sessions, err := s.local.ReadSessions()
	if err != nil {
		return fmt.Errorf("failed to load local sessions: %w", err)
	}
	return s.ReplaceAll(ctx, sessions)
}

// ReplaceAll swaps in a whole new session map, then activates the most
// recent session or creates an empty one.
func (s *Store) ReplaceAll(ctx context.Context, sessions map[string]*chat.Session) error {
	if sessions == nil {
		sessions = map[string]*chat.Session{}
	}
	// Server records carry their id only as the map key; the record body
	// has no id field. Stamp it back so persistence and rollback address
	// the right session.
	for id, session := range sessions {
		session.ID = id
	}
	s.mu.Lock()
	s.sessions = sessions
	s.activeID = ""
	s.mu.Unlock()

	ids := s.IDs()
	if len(ids) == 0 {
		_, err := s.Create(ctx)
		return err
	}

	s.mu.Lock()
	s.activeID = ids[0]
	s.mu.Unlock()
	return nil
}

// All returns a deep copy of the session map, for migration batches.
func (s *Store) All() map[string]*chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*chat.Session, len(s.sessions))
	for id, session := range s.sessions {
		out[id] = session.Clone()
	}
	return out
}

func (s *Store) persistLocal() error {
	s.mu.Lock()
	snapshot := make(map[string]*chat.Session, len(s.sessions))
	for id, session := range s.sessions {
		snapshot[id] = session.Clone()
	}
	s.mu.Unlock()

	if err := s.local.WriteSessions(snapshot); err != nil {
		return fmt.Errorf("failed to persist local sessions: %w", err)
	}
	return nil
}
