package adminapi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionFile persists the admin session cookie between CLI invocations.
type SessionFile struct {
	Path string
}

type savedSession struct {
	BaseURL string    `yaml:"base_url"`
	Token   string    `yaml:"token"`
	SavedAt time.Time `yaml:"saved_at"`
}

// Save writes the client's current session token.
func (f SessionFile) Save(c *Client) error {
	token := c.SessionToken()
	if token == "" {
		return f.Clear()
	}

	data, err := yaml.Marshal(savedSession{
		BaseURL: c.BaseURL(),
		Token:   token,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Restore installs a saved token into c. It reports false when there is
// nothing to restore or the saved session belongs to another server.
func (f SessionFile) Restore(c *Client) (bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session file: %w", err)
	}

	var s savedSession
	if err := yaml.Unmarshal(data, &s); err != nil {
		return false, fmt.Errorf("failed to decode session file: %w", err)
	}
	if s.Token == "" || s.BaseURL != c.BaseURL() {
		return false, nil
	}
	c.SetSessionToken(s.Token)
	return true, nil
}

// Clear removes the saved session.
func (f SessionFile) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
