// Package syncer mirrors guest-local sessions into the remote account store
// and keeps the backend's generation context aligned with the active
// session.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/sparqchat/sparqui/internal/chat"
	"github.com/sparqchat/sparqui/internal/store"
)

const notifyTimeout = time.Second * 10

// Remote is the subset of the backend API the sync protocol needs.
type Remote interface {
	MigrateSessions(ctx context.Context, sessions map[string]*chat.Session) (int, error)
	FetchSessions(ctx context.Context) (map[string]*chat.Session, error)
	SyncHistory(ctx context.Context, history []chat.Turn) error
}

// Syncer pushes sessions and context state to the remote store.
type Syncer struct {
	store  *store.Store
	local  store.LocalStore
	remote Remote
}

// New creates a Syncer over the given stores.
func New(st *store.Store, local store.LocalStore, remote Remote) *Syncer {
	return &Syncer{store: st, local: local, remote: remote}
}

// Migrate bulk-uploads all guest-local sessions to the remote store and
// clears the local store on reported success. An empty local map is a
// no-op with no network call. Failure leaves local sessions intact; the
// server upserts by id, so a retried migration of identical content is
// safe.
func (s *Syncer) Migrate(ctx context.Context) error {
	sessions, err := s.local.ReadSessions()
	if err != nil {
		slog.Error("Failed to read local sessions for migration", "error", err)
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	migrated, err := s.remote.MigrateSessions(ctx, sessions)
	if err != nil {
		slog.Error("Failed to migrate local sessions", "error", err)
		return err
	}

	if err := s.local.ClearSessions(); err != nil {
		slog.Error("Failed to clear local sessions after migration", "error", err)
		return err
	}

	slog.Info("local sessions migrated", slog.Int("count", migrated))
	return nil
}

// Reload replaces the in-memory session map with the server's canonical
// set, then activates the most recent session (or creates one if the set
// is empty) and points the backend's context at it.
func (s *Syncer) Reload(ctx context.Context) error {
	sessions, err := s.remote.FetchSessions(ctx)
	if err != nil {
		slog.Error("Failed to fetch remote sessions", "error", err)
		return err
	}
	if err := s.store.ReplaceAll(ctx, sessions); err != nil {
		return err
	}
	s.notifyActive()
	return nil
}

// ReloadLocal swaps the guest-local session set back in and points the
// backend's context at whichever session became active.
func (s *Syncer) ReloadLocal(ctx context.Context) error {
	if err := s.store.LoadLocal(ctx); err != nil {
		return err
	}
	s.notifyActive()
	return nil
}

// DropSession deletes a session. Deleting the active session activates a
// replacement, so the backend's context is re-pointed afterwards either
// way; a stale context would have it generating against a conversation
// that no longer exists.
func (s *Syncer) DropSession(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.notifyActive()
	return nil
}

// NotifyActiveHistory tells the backend which turns are in context for the
// next generation call. Fire and forget: the backend rebuilds context from
// the next full request regardless, so failures are only logged.
func (s *Syncer) NotifyActiveHistory(history []chat.Turn) {
	snapshot := make([]chat.Turn, len(history))
	copy(snapshot, history)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.remote.SyncHistory(ctx, snapshot); err != nil {
			slog.Error("Failed to sync active history", "error", err)
		}
	}()
}

// SyncHistoryNow pushes the history synchronously. Regenerate needs the
// backend's context settled before it truncates anything.
func (s *Syncer) SyncHistoryNow(ctx context.Context, history []chat.Turn) error {
	return s.remote.SyncHistory(ctx, history)
}

func (s *Syncer) notifyActive() {
	if active := s.store.Active(); active != nil {
		s.NotifyActiveHistory(active.History)
	}
}
