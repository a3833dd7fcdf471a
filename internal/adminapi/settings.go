package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// APIConfig fetches the proxy settings document.
func (c *Client) APIConfig(ctx context.Context) (*APIConfig, error) {
	var cfg APIConfig
	if err := c.do(ctx, http.MethodGet, "/admin/config/api", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetAPIConfig updates the non-nil fields of the proxy settings document.
func (c *Client) SetAPIConfig(ctx context.Context, cfg APIConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/admin/config/api", nil, cfg, &MessageResponse{})
}

// Validate applies the bounds the server enforces.
func (cfg APIConfig) Validate() error {
	if cfg.APIBaseURL == nil && cfg.MaxFailureCount == nil && cfg.MaxRetryCount == nil {
		return fmt.Errorf("api config update has no fields set")
	}
	if cfg.APIBaseURL != nil {
		u := strings.TrimSpace(*cfg.APIBaseURL)
		if u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("api_base_url must be an http(s) URL")
		}
	}
	if n := cfg.MaxFailureCount; n != nil && (*n < 1 || *n > 100) {
		return fmt.Errorf("max_failure_count must be between 1 and 100, got %d", *n)
	}
	if n := cfg.MaxRetryCount; n != nil && (*n < 1 || *n > 20) {
		return fmt.Errorf("max_retry_count must be between 1 and 20, got %d", *n)
	}
	return nil
}

// SchedulerConfig fetches the scheduler settings document.
func (c *Client) SchedulerConfig(ctx context.Context) (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := c.do(ctx, http.MethodGet, "/admin/scheduler/config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetSchedulerConfig replaces the scheduler settings document.
func (c *Client) SetSchedulerConfig(ctx context.Context, cfg SchedulerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/admin/scheduler/config", nil, cfg, &MessageResponse{})
}

// Validate checks the scheduler document before it is sent.
func (cfg SchedulerConfig) Validate() error {
	if strings.TrimSpace(cfg.ValidationModel) == "" {
		return fmt.Errorf("validation_model is required")
	}
	if cfg.ValidationInterval < 1 {
		return fmt.Errorf("validation_interval must be at least 1 hour")
	}
	if strings.TrimSpace(cfg.SchedulerTimezone) == "" {
		return fmt.Errorf("scheduler_timezone is required")
	}
	if cfg.ErrorLogRetentionDays < 1 || cfg.RequestLogRetentionDays < 1 {
		return fmt.Errorf("log retention must be at least 1 day")
	}
	return nil
}

// AvailableModels lists upstream models that can be used for validation.
func (c *Client) AvailableModels(ctx context.Context) ([]AvailableModel, error) {
	var models []AvailableModel
	if err := c.do(ctx, http.MethodGet, "/admin/available-models", nil, nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// AccessKeys lists the client access keys accepted by the proxy.
func (c *Client) AccessKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := c.do(ctx, http.MethodGet, "/admin/access-keys", nil, nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// AddAccessKey registers a new access key.
func (c *Client) AddAccessKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("access key must not be empty")
	}
	return c.do(ctx, http.MethodPost, "/admin/access-keys", nil, keyPayload{Key: key}, &MessageResponse{})
}

// DeleteAccessKey removes an access key.
func (c *Client) DeleteAccessKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("access key must not be empty")
	}
	return c.do(ctx, http.MethodDelete, "/admin/access-keys", nil, keyPayload{Key: key}, &MessageResponse{})
}

// ConfigKeys reports which service-level keys are set.
func (c *Client) ConfigKeys(ctx context.Context) (*ConfigKeys, error) {
	var keys ConfigKeys
	if err := c.do(ctx, http.MethodGet, "/admin/config/keys", nil, nil, &keys); err != nil {
		return nil, err
	}
	return &keys, nil
}

// SetAdminKey rotates the admin key. The server logs out every session, including this one.
func (c *Client) SetAdminKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("admin key must not be empty")
	}
	if err := c.do(ctx, http.MethodPost, "/admin/config/admin_key", nil, keyPayload{Key: key}, &MessageResponse{}); err != nil {
		return err
	}
	c.SetSessionToken("")
	return nil
}
