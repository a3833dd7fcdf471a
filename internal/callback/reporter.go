// Package callback posts validation session progress and completion to
// external HTTP endpoints.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LiquorXR/gemini-synapse/internal/config"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

// Source identifies this reporter in every payload.
const Source = "synapse-admin"

const queueSize = 64

// Progress represents a progress update.
type Progress struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Sequence  int    `json:"sequence"` // per session, for idempotency
	Phase     string `json:"phase"`
	Progress  int    `json:"progress"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Completion represents the end of a session.
type Completion struct {
	SessionID    string  `json:"session_id"`
	Source       string  `json:"source"`
	Status       string  `json:"status"` // completed, failed, aborted
	KeyIDs       []int64 `json:"key_ids"`
	Processed    int     `json:"processed"`
	Total        int     `json:"total"`
	Message      string  `json:"message,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

type delivery struct {
	url     string
	payload interface{}
}

// Reporter sends session callbacks. It implements validation.Listener;
// deliveries happen on a background worker so listeners are never blocked by
// a slow endpoint. Progress updates are dropped when the queue is full,
// completions are not.
type Reporter struct {
	progressURL string
	completeURL string
	apiKey      string
	logger      *zap.SugaredLogger
	client      *http.Client
	timeout     time.Duration

	mu       sync.Mutex
	sequence map[string]int

	qmu    sync.RWMutex
	closed bool
	queue  chan delivery
	done   chan struct{}
}

// NewReporter creates a reporter and starts its worker. Call Close to flush it.
func NewReporter(cfg config.CallbackConfig, logger *zap.SugaredLogger) *Reporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Reporter{
		progressURL: cfg.ProgressURL,
		completeURL: cfg.CompleteURL,
		apiKey:      cfg.APIKey,
		logger:      logger,
		client: &http.Client{
			Timeout: timeout,
		},
		timeout:  timeout,
		sequence: make(map[string]int),
		queue:    make(chan delivery, queueSize),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// SessionChanged implements validation.Listener.
func (r *Reporter) SessionChanged(s validation.Snapshot) {
	switch {
	case s.Phase.Active():
		if r.progressURL == "" {
			return
		}
		p := Progress{
			SessionID: s.ID,
			Source:    Source,
			Sequence:  r.next(s.ID),
			Phase:     s.Phase.String(),
			Progress:  s.Percent,
			Processed: s.Processed,
			Total:     s.Total,
			Message:   validation.Present(s).Message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if !r.enqueue(delivery{url: r.progressURL, payload: p}, false) {
			r.logger.Debugw("Progress callback dropped", "session", s.ID)
		}

	case s.Phase.Terminal():
		r.forget(s.ID)
		if r.completeURL == "" {
			return
		}
		if !r.enqueue(delivery{url: r.completeURL, payload: completion(s)}, true) {
			r.logger.Warnw("Completion callback dropped, reporter closed", "session", s.ID)
		}
	}
}

// Close stops accepting callbacks and waits for queued ones to be sent.
func (r *Reporter) Close() {
	r.qmu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.qmu.Unlock()
	<-r.done
}

func (r *Reporter) enqueue(d delivery, wait bool) bool {
	r.qmu.RLock()
	defer r.qmu.RUnlock()
	if r.closed {
		return false
	}
	if wait {
		r.queue <- d
		return true
	}
	select {
	case r.queue <- d:
		return true
	default:
		return false
	}
}

func (r *Reporter) run() {
	defer close(r.done)
	for d := range r.queue {
		_ = r.sendCallback(d.url, d.payload)
	}
}

func (r *Reporter) next(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequence[id]++
	return r.sequence[id]
}

func (r *Reporter) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sequence, id)
}

func completion(s validation.Snapshot) Completion {
	c := Completion{
		SessionID: s.ID,
		Source:    Source,
		KeyIDs:    make([]int64, len(s.RequestedIDs)),
		Processed: s.Processed,
		Total:     s.Total,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for i, id := range s.RequestedIDs {
		c.KeyIDs[i] = int64(id)
	}
	switch s.Phase {
	case validation.PhaseDone:
		c.Status = "completed"
		c.Message = s.Message
	case validation.PhaseErrored:
		c.Status = "failed"
		c.ErrorMessage = s.Message
	default:
		c.Status = "aborted"
		c.ErrorMessage = s.Message
	}
	return c
}

func (r *Reporter) sendCallback(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warnw("Callback failed", "url", url, "error", err)
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		r.logger.Warnw("Callback returned error", "url", url, "status", resp.StatusCode)
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	r.logger.Debugw("Callback sent", "url", url, "status", resp.StatusCode)
	return nil
}
