package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Login exchanges the admin key for a session cookie.
func (c *Client) Login(ctx context.Context, adminKey string) error {
	if adminKey == "" {
		return fmt.Errorf("admin key must not be empty")
	}

	var resp MessageResponse
	if err := c.do(ctx, http.MethodPost, "/login", nil, loginPayload{AdminKey: adminKey}, &resp); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("login failed: %s", resp.Message)
	}
	if c.SessionToken() == "" {
		return fmt.Errorf("login failed: server did not issue a session cookie")
	}

	c.logger.Infow("Logged in to admin API", "base_url", c.BaseURL())
	return nil
}

// Logout ends the server-side session and forgets the cookie.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/logout", nil, nil, nil)
	c.SetSessionToken("")
	if err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// CheckAuth reports whether the current session is accepted by a protected endpoint.
// An error is returned only when the check itself could not be performed.
func (c *Client) CheckAuth(ctx context.Context) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/admin/dashboard-data", nil, nil, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	return false, err
}
