// Package auth tracks the guest/authenticated storage mode and drives the
// side effects of every mode transition: one-time session migration, remote
// reload, and local reload on logout.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sparqchat/sparqui/internal/client"
	"github.com/sparqchat/sparqui/internal/store"
	"github.com/sparqchat/sparqui/internal/syncer"
)

const otpCodeLength = 6

// Handler owns the process-wide authentication state.
type Handler struct {
	client *client.Client
	store  *store.Store
	syncer *syncer.Syncer

	mu            sync.Mutex
	authenticated bool
	user          *client.User
	pendingUserID int
	remaining     int
	dailyLimit    int
}

// NewHandler creates an auth handler in guest mode.
func NewHandler(c *client.Client, st *store.Store, sy *syncer.Syncer) *Handler {
	return &Handler{client: c, store: st, syncer: sy}
}

// Bootstrap asks the backend who we are and loads sessions accordingly:
// migrate-then-reload when an account cookie is live, local load otherwise.
// An unreachable backend degrades to guest mode.
func (h *Handler) Bootstrap(ctx context.Context) error {
	status, err := h.client.GetAuthStatus(ctx)
	if err != nil {
		slog.Error("Failed to check auth status, falling back to guest mode", "error", err)
		return h.becomeGuest(ctx, 0, 0)
	}

	if status.Authenticated {
		return h.becomeAuthenticated(ctx, status.User)
	}
	return h.becomeGuest(ctx, status.GuestRemaining, status.GuestLimit)
}

// Login authenticates and, on success, migrates local sessions and reloads
// the canonical set from the server.
func (h *Handler) Login(ctx context.Context, username, password string) error {
	resp, err := h.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("login rejected: %s", resp.Message)
	}
	return h.becomeAuthenticated(ctx, resp.User)
}

// Register starts the OTP verification pipeline. The returned message is
// the server's user-facing notice.
func (h *Handler) Register(ctx context.Context, username, email, password string) (string, error) {
	resp, err := h.client.Register(ctx, username, email, password)
	if err != nil {
		return "", err
	}
	if !resp.Success || !resp.RequiresVerification {
		return "", fmt.Errorf("registration rejected: %s", resp.Message)
	}

	h.mu.Lock()
	h.pendingUserID = resp.UserID
	h.mu.Unlock()
	return resp.Message, nil
}

// VerifyOTP completes registration. Success is an authentication
// transition, so it migrates and reloads just like login.
func (h *Handler) VerifyOTP(ctx context.Context, code string) error {
	if len(code) != otpCodeLength {
		return fmt.Errorf("otp code must be %d digits", otpCodeLength)
	}

	h.mu.Lock()
	pending := h.pendingUserID
	h.mu.Unlock()
	if pending == 0 {
		return fmt.Errorf("no registration awaiting verification")
	}

	resp, err := h.client.VerifyOTP(ctx, pending, code)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("verification rejected: %s", resp.Message)
	}

	h.mu.Lock()
	h.pendingUserID = 0
	h.mu.Unlock()
	return h.becomeAuthenticated(ctx, resp.User)
}

// ResendOTP re-sends the verification code for a pending registration.
func (h *Handler) ResendOTP(ctx context.Context) (string, error) {
	h.mu.Lock()
	pending := h.pendingUserID
	h.mu.Unlock()
	if pending == 0 {
		return "", fmt.Errorf("no registration awaiting verification")
	}

	resp, err := h.client.ResendOTP(ctx, pending)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("resend rejected: %s", resp.Message)
	}
	return resp.Message, nil
}

// Logout drops the account cookie and returns to guest-local sessions.
func (h *Handler) Logout(ctx context.Context) error {
	if err := h.client.Logout(ctx); err != nil {
		slog.Error("Failed to log out remotely", "error", err)
	}
	return h.becomeGuest(ctx, 0, 0)
}

// DeleteAccount removes the account and all its sessions, then starts over
// in guest mode with one fresh empty session.
func (h *Handler) DeleteAccount(ctx context.Context) error {
	resp, err := h.client.DeleteAccount(ctx)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("account deletion rejected: %s", resp.Message)
	}

	h.mu.Lock()
	h.authenticated = false
	h.user = nil
	h.mu.Unlock()

	h.store.SetGuest()
	if err := h.store.ReplaceAll(ctx, nil); err != nil {
		return err
	}
	if active := h.store.Active(); active != nil {
		h.syncer.NotifyActiveHistory(active.History)
	}
	return nil
}

// Authenticated reports the current mode.
func (h *Handler) Authenticated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authenticated
}

// User returns the logged-in account, nil in guest mode.
func (h *Handler) User() *client.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.user
}

// Quota returns the remaining and total daily message allowance.
func (h *Handler) Quota() (remaining, limit int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remaining, h.dailyLimit
}

func (h *Handler) becomeAuthenticated(ctx context.Context, user *client.User) error {
	h.mu.Lock()
	h.authenticated = true
	h.user = user
	if user != nil {
		h.remaining = user.RemainingMessages
		h.dailyLimit = user.DailyLimit
	}
	h.mu.Unlock()

	h.store.SetAuthenticated(h.client)

	// Migration failure is non-fatal: local sessions stay put and the next
	// login retries the identical batch.
	if err := h.syncer.Migrate(ctx); err != nil {
		slog.Error("Session migration failed, keeping local sessions", "error", err)
	}
	return h.syncer.Reload(ctx)
}

func (h *Handler) becomeGuest(ctx context.Context, remaining, limit int) error {
	h.mu.Lock()
	h.authenticated = false
	h.user = nil
	h.remaining = remaining
	h.dailyLimit = limit
	h.mu.Unlock()

	h.store.SetGuest()
	return h.syncer.ReloadLocal(ctx)
}
