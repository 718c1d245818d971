package store

import (
	"strings"

	"github.com/sparqchat/sparqui/internal/chat"
)

// AppendUser appends a user message and its history turn. The session title
// is derived from the first user message of the conversation.
func (s *Store) AppendUser(id, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	session.Messages = append(session.Messages, chat.Message{Text: text, IsUser: true})
	session.History = append(session.History, chat.NewTurn(chat.RoleUser, text))
	if len(session.Messages) == 1 {
		session.Title = chat.DeriveTitle(text)
	}
	return nil
}

// AppendModel appends a settled model response and its history turn.
func (s *Store) AppendModel(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	session.Messages = append(session.Messages, chat.Message{Text: text, IsUser: false})
	session.History = append(session.History, chat.NewTurn(chat.RoleModel, text))
	return nil
}

// TruncateForEdit rewrites the user message of exchange exchangeIdx and
// drops everything after it. Messages keep indices [0, 2*exchangeIdx] with
// the kept user message rewritten; history keeps [0, 2*exchangeIdx) and the
// updated user turn is re-appended.
func (s *Store) TruncateForEdit(id string, exchangeIdx int, newText string) error {
	if strings.TrimSpace(newText) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	msgIdx := exchangeIdx * 2
	if exchangeIdx < 0 || msgIdx >= len(session.Messages) {
		return ErrIndexOutOfRange
	}
	if !session.Messages[msgIdx].IsUser {
		return ErrNotUserMessage
	}

	session.Messages = session.Messages[:msgIdx+1]
	session.Messages[msgIdx].Text = newText
	session.History = append(session.History[:msgIdx], chat.NewTurn(chat.RoleUser, newText))
	return nil
}

// PopExchange drops the trailing model response and its user prompt,
// returning the prompt text so the caller can replay it. It fails without
// mutating when there is no completed exchange or the conversation ends on
// a user message.
func (s *Store) PopExchange(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return "", ErrSessionNotFound
	}

	if len(session.Messages) < 2 {
		return "", ErrNothingToRegenerate
	}
	last := session.Messages[len(session.Messages)-1]
	if last.IsUser {
		return "", ErrLastMessageIsUser
	}

	userText := session.Messages[len(session.Messages)-2].Text
	session.Messages = session.Messages[:len(session.Messages)-2]
	if len(session.History) >= 2 {
		session.History = session.History[:len(session.History)-2]
	}
	if len(session.Messages) == 0 {
		session.Title = chat.DefaultTitle
	}
	return userText, nil
}

// Snapshot captures the session state before a destructive edit.
func (s *Store) Snapshot(id string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Restore puts a snapshot back, undoing a truncation whose replacement
// generation failed.
func (s *Store) Restore(snapshot *chat.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[snapshot.ID] = snapshot.Clone()
}
