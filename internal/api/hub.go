package api

import (
	"sync"

	"go.uber.org/zap"

	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

// Event names on the relay stream.
const (
	eventSession = "session"
	eventNotice  = "notice"
)

// relayEvent is one message fanned out to stream subscribers.
type relayEvent struct {
	Name    string
	Session *SessionResponse
	Notice  *noticePayload
}

type noticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Hub fans session transitions and supervisor notices out to event stream
// subscribers. It implements validation.Listener and validation.Notifier.
type Hub struct {
	logger *zap.SugaredLogger

	mu           sync.Mutex
	subs         map[chan relayEvent]struct{}
	lastTerminal *SessionResponse
}

// NewHub creates an empty hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[chan relayEvent]struct{}),
	}
}

// SessionChanged implements validation.Listener.
func (h *Hub) SessionChanged(s validation.Snapshot) {
	resp := sessionResponse(s)
	if s.Phase.Terminal() {
		h.mu.Lock()
		h.lastTerminal = &resp
		h.mu.Unlock()
	}
	h.broadcast(relayEvent{Name: eventSession, Session: &resp})
}

// Notify implements validation.Notifier.
func (h *Hub) Notify(level validation.Level, msg string) {
	h.broadcast(relayEvent{Name: eventNotice, Notice: &noticePayload{Level: levelName(level), Message: msg}})
}

// LastTerminal returns the most recent terminal session, if any.
func (h *Hub) LastTerminal() *SessionResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTerminal
}

// subscribe registers a subscriber. The returned function unsubscribes.
func (h *Hub) subscribe() (<-chan relayEvent, func()) {
	ch := make(chan relayEvent, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// broadcast delivers ev to every subscriber without blocking. A full buffer
// loses progress and notices, but a subscriber that cannot take a terminal or
// idle session event is closed instead, so its client reconnects and reads
// the current state.
func (h *Hub) broadcast(ev relayEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			if !ev.settles() {
				h.logger.Warnw("Dropping event for slow subscriber", "event", ev.Name)
				continue
			}
			h.logger.Warnw("Closing slow subscriber", "event", ev.Name, "phase", ev.Session.Session.Phase.String())
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// settles reports whether ev ends or clears a session.
func (ev relayEvent) settles() bool {
	if ev.Name != eventSession || ev.Session == nil {
		return false
	}
	p := ev.Session.Session.Phase
	return p == validation.PhaseIdle || p.Terminal()
}

func levelName(l validation.Level) string {
	switch l {
	case validation.LevelWarning:
		return "warning"
	case validation.LevelError:
		return "error"
	}
	return "info"
}
