package chat

import (
	"sort"
	"strconv"
)

const (
	// DefaultTitle names a session until its first user message arrives.
	DefaultTitle = "New Chat"

	titleMaxRunes = 30
)

// Session represents one independent conversation thread. Messages is the
// visible transcript, History the same conversation in the backend's turn
// format. Outside of an in-flight generation both sequences hold 2k entries
// for k completed exchanges.
type Session struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	History  []Turn    `json:"history"`
}

// NewSession creates an empty Session with the given id.
func NewSession(id string) *Session {
	return &Session{
		ID:       id,
		Title:    DefaultTitle,
		Messages: []Message{},
		History:  []Turn{},
	}
}

// DeriveTitle shortens the first user message into a sidebar title.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleMaxRunes {
		return text
	}
	return string(runes[:titleMaxRunes]) + "..."
}

// Clone returns a deep copy. Snapshots taken before destructive edits must
// not alias the live slices.
func (s *Session) Clone() *Session {
	c := &Session{
		ID:       s.ID,
		Title:    s.Title,
		Messages: make([]Message, len(s.Messages)),
		History:  make([]Turn, len(s.History)),
	}
	copy(c.Messages, s.Messages)
	for i, t := range s.History {
		parts := make([]Part, len(t.Parts))
		copy(parts, t.Parts)
		c.History[i] = Turn{Role: t.Role, Parts: parts}
	}
	return c
}

// Exchanges reports the number of completed user/model pairs.
func (s *Session) Exchanges() int {
	return len(s.Messages) / 2
}

// SortIDs orders session ids most recent first. Ids are wall-clock
// milliseconds rendered as decimal strings, so they are compared numerically
// when both sides parse as integers; otherwise the comparison falls back to
// descending lexicographic order.
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		if errA == nil && errB == nil {
			return a > b
		}
		return ids[i] > ids[j]
	})
}
