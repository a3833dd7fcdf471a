package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

// DashboardData fetches the full authoritative snapshot.
func (c *Client) DashboardData(ctx context.Context) (*DashboardData, error) {
	var data DashboardData
	if err := c.do(ctx, http.MethodGet, "/admin/dashboard-data", nil, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// KeyDetails returns per-model call counts for one key over the last 24 hours.
func (c *Client) KeyDetails(ctx context.Context, id int64) ([]ModelCallDetail, error) {
	var details []ModelCallDetail
	path := "/admin/keys/" + strconv.FormatInt(id, 10) + "/details"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &details); err != nil {
		return nil, err
	}
	return details, nil
}

// BatchAdd adds keys; keys already present on the server are skipped by the server.
func (c *Client) BatchAdd(ctx context.Context, keys []string) (*BatchAddResponse, error) {
	var resp BatchAddResponse
	if err := c.do(ctx, http.MethodPost, "/admin/keys/batch-add", nil, keysPayload{Keys: keys}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchDelete removes keys by id.
func (c *Client) BatchDelete(ctx context.Context, ids []int64) (*BatchDeleteResponse, error) {
	var resp BatchDeleteResponse
	if err := c.do(ctx, http.MethodPost, "/admin/keys/batch-delete", nil, keyIDsPayload{KeyIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchDeleteByValue removes keys by their full value.
func (c *Client) BatchDeleteByValue(ctx context.Context, keys []string) (*BatchDeleteResponse, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key list cannot be empty")
	}
	var resp BatchDeleteResponse
	if err := c.do(ctx, http.MethodPost, "/admin/keys/batch-delete-by-value", nil, keysPayload{Keys: keys}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchReset marks keys valid and clears their failure counters.
func (c *Client) BatchReset(ctx context.Context, ids []int64) error {
	return c.do(ctx, http.MethodPost, "/admin/keys/batch-reset", nil, keyIDsPayload{KeyIDs: ids}, nil)
}

// BatchDeactivate marks keys invalid.
func (c *Client) BatchDeactivate(ctx context.Context, ids []int64) error {
	return c.do(ctx, http.MethodPost, "/admin/keys/batch-deactivate", nil, keyIDsPayload{KeyIDs: ids}, nil)
}

// Reveal returns the full key values for ids, ordered by id.
func (c *Client) Reveal(ctx context.Context, ids []int64) ([]RevealedKey, error) {
	var resp revealResponse
	if err := c.do(ctx, http.MethodPost, "/admin/keys/reveal", nil, keyIDsPayload{KeyIDs: ids}, &resp); err != nil {
		return nil, err
	}

	out := make([]RevealedKey, 0, len(resp.RevealedKeys))
	for rawID, key := range resp.RevealedKeys {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid key id %q in reveal response: %w", rawID, err)
		}
		out = append(out, RevealedKey{ID: id, Key: key})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RevealedKey pairs a key id with its full value.
type RevealedKey struct {
	ID  int64
	Key string
}

// ToggleStatus flips a key between valid and invalid.
func (c *Client) ToggleStatus(ctx context.Context, id int64) (*APIKey, error) {
	var key APIKey
	path := "/admin/keys/" + strconv.FormatInt(id, 10) + "/status"
	if err := c.do(ctx, http.MethodPut, path, nil, nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// DeleteKey removes a single key.
func (c *Client) DeleteKey(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/admin/keys/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// Trend returns the call-volume trend for "1d", "7d" or "30d".
func (c *Client) Trend(ctx context.Context, rng string) (*TrendData, error) {
	switch rng {
	case "1d", "7d", "30d":
	default:
		return nil, fmt.Errorf("invalid trend range %q (want 1d, 7d or 30d)", rng)
	}
	var data TrendData
	if err := c.do(ctx, http.MethodGet, "/admin/stats/trend", url.Values{"range": {rng}}, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ErrorLogs returns one page of error logs. The server caps size at 50.
func (c *Client) ErrorLogs(ctx context.Context, page, size int) (*ErrorLogPage, error) {
	var logs ErrorLogPage
	if err := c.do(ctx, http.MethodGet, "/admin/error-logs", pageQuery(page, size), nil, &logs); err != nil {
		return nil, err
	}
	return &logs, nil
}

// ClearErrorLogs deletes every error log entry.
func (c *Client) ClearErrorLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/admin/error-logs", nil, nil, nil)
}

// RequestLogs returns one page of request logs.
func (c *Client) RequestLogs(ctx context.Context, page, size int) (*RequestLogPage, error) {
	var logs RequestLogPage
	if err := c.do(ctx, http.MethodGet, "/admin/request-logs", pageQuery(page, size), nil, &logs); err != nil {
		return nil, err
	}
	return &logs, nil
}

func pageQuery(page, size int) url.Values {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 50
	}
	return url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}
}
