package client

import (
	"context"
)

// User is the account record returned by the auth endpoints.
type User struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	IsVerified        bool   `json:"is_verified"`
	RemainingMessages int    `json:"remaining_messages"`
	DailyLimit        int    `json:"daily_limit"`
}

type AuthStatusResponse struct {
	Authenticated  bool  `json:"authenticated"`
	User           *User `json:"user"`
	GuestRemaining int   `json:"guest_remaining"`
	GuestLimit     int   `json:"guest_limit"`
}

// AuthResponse is the common shape of the credential endpoints.
type AuthResponse struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	User                 *User  `json:"user"`
	RequiresVerification bool   `json:"requires_verification"`
	UserID               int    `json:"user_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	UserID  int    `json:"user_id"`
	OTPCode string `json:"otp_code"`
}

type resendOTPRequest struct {
	UserID int `json:"user_id"`
}

// GetAuthStatus reports whether the backend recognizes our cookie and how
// many messages remain in the current quota window.
func (c *Client) GetAuthStatus(ctx context.Context) (*AuthStatusResponse, error) {
	resp := AuthStatusResponse{}
	if err := c.getJSON(ctx, "/get_auth_status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	resp := AuthResponse{}
	if err := c.postJSON(ctx, "/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	resp := AuthResponse{}
	if err := c.postJSON(ctx, "/register", registerRequest{Username: username, Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) VerifyOTP(ctx context.Context, userID int, code string) (*AuthResponse, error) {
	resp := AuthResponse{}
	if err := c.postJSON(ctx, "/verify_otp", verifyOTPRequest{UserID: userID, OTPCode: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ResendOTP(ctx context.Context, userID int) (*AuthResponse, error) {
	resp := AuthResponse{}
	if err := c.postJSON(ctx, "/resend_otp", resendOTPRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/logout", nil, nil)
}

func (c *Client) DeleteAccount(ctx context.Context) (*AuthResponse, error) {
	resp := AuthResponse{}
	if err := c.postJSON(ctx, "/delete_account", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
