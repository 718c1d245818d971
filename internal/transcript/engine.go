// Package transcript implements send, edit and regenerate as compound
// operations over the session store and the stream assembler.
package transcript

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sparqchat/sparqui/internal/chat"
	"github.com/sparqchat/sparqui/internal/store"
	"github.com/sparqchat/sparqui/internal/stream"
	"github.com/sparqchat/sparqui/internal/syncer"
)

var (
	ErrStreamInFlight  = errors.New("a response stream is already in flight for this session")
	ErrNoActiveSession = errors.New("no active session")
)

// Streamer opens the backend's chunked generation streams.
type Streamer interface {
	SendMessage(ctx context.Context, text string) (io.ReadCloser, error)
	EditMessage(ctx context.Context, messageIndex int, newText string) (io.ReadCloser, error)
	Regenerate(ctx context.Context) (io.ReadCloser, error)
}

// Engine drives one streaming transaction at a time per session. The busy
// flag is enforced here, not by a disabled UI control, so programmatic
// callers cannot race two transactions against one session.
type Engine struct {
	store    *store.Store
	syncer   *syncer.Syncer
	backend  Streamer
	renderer stream.Renderer

	mu   sync.Mutex
	busy map[string]bool
}

// New creates the engine.
func New(st *store.Store, sy *syncer.Syncer, backend Streamer, renderer stream.Renderer) *Engine {
	return &Engine{
		store:    st,
		syncer:   sy,
		backend:  backend,
		renderer: renderer,
		busy:     map[string]bool{},
	}
}

func (e *Engine) acquire(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[id] {
		return ErrStreamInFlight
	}
	e.busy[id] = true
	return nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.busy, id)
}

// commitSink appends the settled response to the session and persists it,
// in that order, before the final render happens.
type commitSink struct {
	engine *Engine
	ctx    context.Context
	id     string
}

func (cs commitSink) Commit(full string) error {
	if err := cs.engine.store.AppendModel(cs.id, full); err != nil {
		return err
	}
	return cs.engine.store.Persist(cs.ctx, cs.id)
}

// Send appends a user message to the active session, persists it, and runs
// a streaming transaction for the response. The user message is kept even
// when the stream fails: nothing was truncated, so there is nothing to
// roll back.
func (e *Engine) Send(ctx context.Context, text string) (string, error) {
	id := e.store.ActiveID()
	if id == "" {
		return "", ErrNoActiveSession
	}
	if err := e.acquire(id); err != nil {
		return "", err
	}
	defer e.release(id)

	if err := e.store.AppendUser(id, text); err != nil {
		return "", err
	}
	if err := e.store.Persist(ctx, id); err != nil {
		return "", err
	}

	asm := stream.New(e.renderer)
	return asm.Run(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return e.backend.SendMessage(ctx, text)
	}, commitSink{engine: e, ctx: ctx, id: id})
}

// Edit rewrites the user message of exchange exchangeIdx, truncates the
// conversation to it, persists the truncated state and streams a
// replacement response. The edit request carries only the index and new
// text; the backend reconstructs its own context prefix. On stream failure
// the pre-edit state is restored and persisted.
func (e *Engine) Edit(ctx context.Context, exchangeIdx int, newText string) (string, error) {
	id := e.store.ActiveID()
	if id == "" {
		return "", ErrNoActiveSession
	}
	if err := e.acquire(id); err != nil {
		return "", err
	}
	defer e.release(id)

	snapshot, err := e.store.Snapshot(id)
	if err != nil {
		return "", err
	}

	if err := e.store.TruncateForEdit(id, exchangeIdx, newText); err != nil {
		return "", err
	}
	if err := e.store.Persist(ctx, id); err != nil {
		return "", err
	}

	asm := stream.New(e.renderer)
	full, err := asm.Run(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return e.backend.EditMessage(ctx, exchangeIdx, newText)
	}, commitSink{engine: e, ctx: ctx, id: id})
	if err != nil {
		e.rollback(ctx, snapshot)
		return "", err
	}
	return full, nil
}

// Regenerate drops the trailing model response, keeps its user prompt and
// streams a new answer for the same prompt. The pre-truncation history is
// pushed to the backend's context endpoint first so server-side state
// matches what is being regenerated against. On stream failure the
// pre-regenerate state is restored and persisted.
func (e *Engine) Regenerate(ctx context.Context) (string, error) {
	id := e.store.ActiveID()
	if id == "" {
		return "", ErrNoActiveSession
	}
	if err := e.acquire(id); err != nil {
		return "", err
	}
	defer e.release(id)

	snapshot, err := e.store.Snapshot(id)
	if err != nil {
		return "", err
	}
	if err := validateRegenerate(snapshot); err != nil {
		return "", err
	}

	if err := e.syncer.SyncHistoryNow(ctx, snapshot.History); err != nil {
		slog.Error("Failed to push pre-regenerate history", "error", err)
	}

	userText, err := e.store.PopExchange(id)
	if err != nil {
		return "", err
	}
	if err := e.store.AppendUser(id, userText); err != nil {
		return "", err
	}
	if err := e.store.Persist(ctx, id); err != nil {
		return "", err
	}

	asm := stream.New(e.renderer)
	full, err := asm.Run(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return e.backend.Regenerate(ctx)
	}, commitSink{engine: e, ctx: ctx, id: id})
	if err != nil {
		e.rollback(ctx, snapshot)
		return "", err
	}
	return full, nil
}

func validateRegenerate(s *chat.Session) error {
	if len(s.Messages) < 2 {
		return store.ErrNothingToRegenerate
	}
	if s.Messages[len(s.Messages)-1].IsUser {
		return store.ErrLastMessageIsUser
	}
	return nil
}

func (e *Engine) rollback(ctx context.Context, snapshot *chat.Session) {
	e.store.Restore(snapshot)
	if err := e.store.Persist(ctx, snapshot.ID); err != nil {
		slog.Error("Failed to persist rolled back session", "id", snapshot.ID, "error", err)
	}
}
