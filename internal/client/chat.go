package client

import (
	"context"
	"fmt"
	"io"

	"github.com/sparqchat/sparqui/internal/chat"
)

type SaveSessionRequest struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Messages []chat.Message `json:"messages"`
	History  []chat.Turn    `json:"history"`
}

type DeleteSessionRequest struct {
	ID string `json:"id"`
}

type FetchSessionsResponse struct {
	Sessions map[string]*chat.Session `json:"sessions"`
}

type MigrateSessionsRequest struct {
	Sessions map[string]*chat.Session `json:"sessions"`
}

type MigrateSessionsResponse struct {
	Success  bool `json:"success"`
	Migrated int  `json:"migrated"`
}

type SyncHistoryRequest struct {
	History []chat.Turn `json:"history"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type EditMessageRequest struct {
	MessageIndex int    `json:"message_index"`
	NewText      string `json:"new_text"`
}

// FetchSessions returns the server's canonical session set for the
// authenticated account.
func (c *Client) FetchSessions(ctx context.Context) (map[string]*chat.Session, error) {
	resp := FetchSessionsResponse{}
	if err := c.getJSON(ctx, "/get_history", &resp); err != nil {
		return nil, err
	}
	if resp.Sessions == nil {
		resp.Sessions = map[string]*chat.Session{}
	}
	return resp.Sessions, nil
}

// SaveSession uploads a single full session record, last write wins.
func (c *Client) SaveSession(ctx context.Context, s *chat.Session) error {
	req := SaveSessionRequest{
		ID:       s.ID,
		Title:    s.Title,
		Messages: s.Messages,
		History:  s.History,
	}
	return c.postJSON(ctx, "/save_session", req, nil)
}

// DeleteSession removes a session from the remote store.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.postJSON(ctx, "/delete_session", DeleteSessionRequest{ID: id}, nil)
}

// MigrateSessions batch-uploads local sessions after login. The server
// upserts by session id, so replaying the same batch is safe.
func (c *Client) MigrateSessions(ctx context.Context, sessions map[string]*chat.Session) (int, error) {
	resp := MigrateSessionsResponse{}
	if err := c.postJSON(ctx, "/migrate_sessions", MigrateSessionsRequest{Sessions: sessions}, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("server rejected session migration")
	}
	return resp.Migrated, nil
}

// SyncHistory tells the backend which turns are in context for the next
// generation call.
func (c *Client) SyncHistory(ctx context.Context, history []chat.Turn) error {
	if history == nil {
		history = []chat.Turn{}
	}
	return c.postJSON(ctx, "/sync_history", SyncHistoryRequest{History: history}, nil)
}

// SendMessage opens a generation stream for a new user message.
func (c *Client) SendMessage(ctx context.Context, text string) (io.ReadCloser, error) {
	return c.openStream(ctx, "/chat", SendMessageRequest{Message: text})
}

// EditMessage opens a generation stream replaying from an edited user
// message. The backend rebuilds its own context prefix from the index.
func (c *Client) EditMessage(ctx context.Context, messageIndex int, newText string) (io.ReadCloser, error) {
	return c.openStream(ctx, "/edit_message", EditMessageRequest{MessageIndex: messageIndex, NewText: newText})
}

// Regenerate opens a generation stream re-answering the last user prompt
// from the backend's current context.
func (c *Client) Regenerate(ctx context.Context) (io.ReadCloser, error) {
	return c.openStream(ctx, "/regenerate", struct{}{})
}
