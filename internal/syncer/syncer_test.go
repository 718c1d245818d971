package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sparqchat/sparqui/internal/chat"
	"github.com/sparqchat/sparqui/internal/store"
	"github.com/sparqchat/sparqui/internal/syncer"
)

type fakeLocal struct {
	sessions map[string]*chat.Session
	cleared  int
}

func (f *fakeLocal) ReadSessions() (map[string]*chat.Session, error) {
	out := make(map[string]*chat.Session, len(f.sessions))
	for id, s := range f.sessions {
		out[id] = s.Clone()
	}
	return out, nil
}

func (f *fakeLocal) WriteSessions(sessions map[string]*chat.Session) error {
	f.sessions = sessions
	return nil
}

func (f *fakeLocal) ClearSessions() error {
	f.sessions = map[string]*chat.Session{}
	f.cleared++
	return nil
}

type fakeRemote struct {
	migrateCalls int
	migrateErr   error
	fetched      map[string]*chat.Session
	histories    chan []chat.Turn
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{histories: make(chan []chat.Turn, 4)}
}

func (f *fakeRemote) MigrateSessions(_ context.Context, sessions map[string]*chat.Session) (int, error) {
	f.migrateCalls++
	if f.migrateErr != nil {
		return 0, f.migrateErr
	}
	return len(sessions), nil
}

func (f *fakeRemote) FetchSessions(_ context.Context) (map[string]*chat.Session, error) {
	return f.fetched, nil
}

func (f *fakeRemote) SyncHistory(_ context.Context, history []chat.Turn) error {
	f.histories <- history
	return nil
}

func TestMigrateEmptyIsNoop(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{}}
	remote := newFakeRemote()
	sy := syncer.New(store.NewStore(local), local, remote)

	if err := sy.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate err: %v", err)
	}
	if remote.migrateCalls != 0 {
		t.Fatal("empty migration must not hit the network")
	}
}

func TestMigrateClearsLocalOnSuccess(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{
		"1": chat.NewSession("1"),
		"2": chat.NewSession("2"),
	}}
	remote := newFakeRemote()
	sy := syncer.New(store.NewStore(local), local, remote)

	if err := sy.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate err: %v", err)
	}
	if remote.migrateCalls != 1 {
		t.Fatalf("expected one migrate call, got %d", remote.migrateCalls)
	}
	if local.cleared != 1 || len(local.sessions) != 0 {
		t.Fatal("local store not cleared after successful migration")
	}
}

func TestMigrateFailureKeepsLocal(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{
		"1": chat.NewSession("1"),
	}}
	remote := newFakeRemote()
	remote.migrateErr = errors.New("server down")
	sy := syncer.New(store.NewStore(local), local, remote)

	if err := sy.Migrate(context.Background()); err == nil {
		t.Fatal("expected migration failure")
	}
	if local.cleared != 0 || len(local.sessions) != 1 {
		t.Fatal("failed migration must leave local sessions intact")
	}
}

func TestReloadReplacesAndActivatesMostRecent(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{
		"999": chat.NewSession("999"),
	}}
	st := store.NewStore(local)
	remote := newFakeRemote()
	remote.fetched = map[string]*chat.Session{
		"100": chat.NewSession("100"),
		"200": chat.NewSession("200"),
	}
	sy := syncer.New(st, local, remote)

	if err := sy.Reload(context.Background()); err != nil {
		t.Fatalf("Reload err: %v", err)
	}
	if st.Len() != 2 {
		t.Fatalf("expected canonical set of 2, got %d", st.Len())
	}
	if st.ActiveID() != "200" {
		t.Fatalf("expected most recent active, got %s", st.ActiveID())
	}
	if _, err := st.Get("999"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatal("stale session survived reload")
	}
}

func TestReloadEmptySetCreates(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{}}
	st := store.NewStore(local)
	remote := newFakeRemote()
	remote.fetched = map[string]*chat.Session{}
	sy := syncer.New(st, local, remote)

	if err := sy.Reload(context.Background()); err != nil {
		t.Fatalf("Reload err: %v", err)
	}
	if st.Len() != 1 || st.ActiveID() == "" {
		t.Fatalf("expected a fresh session, len=%d active=%q", st.Len(), st.ActiveID())
	}
}

func TestNotifyActiveHistoryDelivers(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{}}
	remote := newFakeRemote()
	sy := syncer.New(store.NewStore(local), local, remote)

	history := []chat.Turn{chat.NewTurn(chat.RoleUser, "hi")}
	sy.NotifyActiveHistory(history)

	select {
	case got := <-remote.histories:
		if len(got) != 1 || got[0].Text() != "hi" {
			t.Fatalf("unexpected history payload: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("history never delivered")
	}
}

func TestSyncHistoryNow(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{}}
	remote := newFakeRemote()
	sy := syncer.New(store.NewStore(local), local, remote)

	if err := sy.SyncHistoryNow(context.Background(), nil); err != nil {
		t.Fatalf("SyncHistoryNow err: %v", err)
	}
	select {
	case <-remote.histories:
	default:
		t.Fatal("history not pushed synchronously")
	}
}

func TestReloadStampsServerIDs(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{}}
	st := store.NewStore(local)
	remote := newFakeRemote()

	// get_history records carry their id only as the map key.
	raw := `{"1700000000000":{"title":"Trip planning","messages":[],"history":[]}}`
	fetched := map[string]*chat.Session{}
	if err := json.Unmarshal([]byte(raw), &fetched); err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	remote.fetched = fetched
	sy := syncer.New(st, local, remote)

	if err := sy.Reload(context.Background()); err != nil {
		t.Fatalf("Reload err: %v", err)
	}
	session, err := st.Get("1700000000000")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if session.ID != "1700000000000" {
		t.Fatalf("server session id not stamped: %q", session.ID)
	}
}

func TestReloadRepointsContext(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{}}
	st := store.NewStore(local)
	remote := newFakeRemote()
	canonical := chat.NewSession("200")
	canonical.History = append(canonical.History, chat.NewTurn(chat.RoleUser, "hello"))
	remote.fetched = map[string]*chat.Session{"200": canonical}
	sy := syncer.New(st, local, remote)

	if err := sy.Reload(context.Background()); err != nil {
		t.Fatalf("Reload err: %v", err)
	}

	select {
	case got := <-remote.histories:
		if len(got) != 1 || got[0].Text() != "hello" {
			t.Fatalf("unexpected context payload: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("context not re-pointed after reload")
	}
}

func TestReloadLocalRepointsContext(t *testing.T) {
	saved := chat.NewSession("100")
	saved.History = append(saved.History, chat.NewTurn(chat.RoleUser, "offline"))
	local := &fakeLocal{sessions: map[string]*chat.Session{"100": saved}}
	st := store.NewStore(local)
	remote := newFakeRemote()
	sy := syncer.New(st, local, remote)

	if err := sy.ReloadLocal(context.Background()); err != nil {
		t.Fatalf("ReloadLocal err: %v", err)
	}
	if st.ActiveID() != "100" {
		t.Fatalf("local session not activated: %s", st.ActiveID())
	}

	select {
	case got := <-remote.histories:
		if len(got) != 1 || got[0].Text() != "offline" {
			t.Fatalf("unexpected context payload: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("context not re-pointed after local reload")
	}
}

func TestDropSessionRepointsContext(t *testing.T) {
	local := &fakeLocal{sessions: map[string]*chat.Session{}}
	st := store.NewStore(local)
	remote := newFakeRemote()
	sy := syncer.New(st, local, remote)

	if err := st.ReplaceAll(context.Background(), map[string]*chat.Session{
		"100": chat.NewSession("100"),
		"200": chat.NewSession("200"),
	}); err != nil {
		t.Fatalf("ReplaceAll err: %v", err)
	}
	if err := st.AppendUser("200", "doomed"); err != nil {
		t.Fatalf("AppendUser err: %v", err)
	}

	if err := sy.DropSession(context.Background(), "200"); err != nil {
		t.Fatalf("DropSession err: %v", err)
	}
	if st.ActiveID() == "200" {
		t.Fatal("deleted session still active")
	}

	select {
	case got := <-remote.histories:
		for _, turn := range got {
			if turn.Text() == "doomed" {
				t.Fatal("context still points at the deleted conversation")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("context not re-pointed after delete")
	}
}
