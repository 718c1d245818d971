package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/sparqchat/sparqui/internal/chat"
	"github.com/sparqchat/sparqui/storage"
)

func newLocal(t *testing.T) *storage.Local {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "sparqui.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	local, err := storage.NewLocal(db)
	if err != nil {
		t.Fatalf("NewLocal err: %v", err)
	}
	return local
}

func TestReadSessionsEmpty(t *testing.T) {
	local := newLocal(t)

	sessions, err := local.ReadSessions()
	if err != nil {
		t.Fatalf("ReadSessions err: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(sessions))
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	local := newLocal(t)

	s := chat.NewSession("1700000000000")
	s.Title = "roundtrip"
	s.Messages = append(s.Messages, chat.Message{Text: "hi", IsUser: true})
	s.History = append(s.History, chat.NewTurn(chat.RoleUser, "hi"))

	if err := local.WriteSessions(map[string]*chat.Session{s.ID: s}); err != nil {
		t.Fatalf("WriteSessions err: %v", err)
	}

	got, err := local.ReadSessions()
	if err != nil {
		t.Fatalf("ReadSessions err: %v", err)
	}
	loaded, ok := got[s.ID]
	if !ok {
		t.Fatalf("session missing after roundtrip: %v", got)
	}
	if loaded.Title != "roundtrip" || len(loaded.Messages) != 1 || len(loaded.History) != 1 {
		t.Fatalf("session content lost: %+v", loaded)
	}
	if loaded.History[0].Role != chat.RoleUser || loaded.History[0].Text() != "hi" {
		t.Fatalf("turn content lost: %+v", loaded.History[0])
	}
}

func TestWriteReplacesWholeMap(t *testing.T) {
	local := newLocal(t)

	local.WriteSessions(map[string]*chat.Session{
		"1": chat.NewSession("1"),
		"2": chat.NewSession("2"),
	})
	local.WriteSessions(map[string]*chat.Session{
		"3": chat.NewSession("3"),
	})

	got, err := local.ReadSessions()
	if err != nil {
		t.Fatalf("ReadSessions err: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("old map content survived: %v", got)
	}
	if _, ok := got["3"]; !ok {
		t.Fatalf("new map content missing: %v", got)
	}
}

func TestClearSessions(t *testing.T) {
	local := newLocal(t)

	local.WriteSessions(map[string]*chat.Session{"1": chat.NewSession("1")})
	if err := local.ClearSessions(); err != nil {
		t.Fatalf("ClearSessions err: %v", err)
	}

	got, err := local.ReadSessions()
	if err != nil {
		t.Fatalf("ReadSessions err: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("sessions survived clear: %v", got)
	}
}

func TestTheme(t *testing.T) {
	local := newLocal(t)

	theme, err := local.Theme()
	if err != nil {
		t.Fatalf("Theme err: %v", err)
	}
	if theme != "" {
		t.Fatalf("expected unset theme, got %q", theme)
	}

	if err := local.SetTheme("dark"); err != nil {
		t.Fatalf("SetTheme err: %v", err)
	}
	if err := local.SetTheme("blue"); err == nil {
		t.Fatal("expected rejection of unknown theme")
	}

	theme, err = local.Theme()
	if err != nil {
		t.Fatalf("Theme err: %v", err)
	}
	if theme != "dark" {
		t.Fatalf("expected dark, got %q", theme)
	}
}
