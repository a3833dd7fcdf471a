package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Messages stored on sessions that end without a server supplied text.
const (
	MsgConnectionLost = "与服务器的连接丢失，验证中断。"
	MsgCancelled      = "验证已取消"
	MsgDoneDefault    = "验证完成"
	MsgErrorDefault   = "未知错误"
)

// Phase is the lifecycle position of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseRunning
	PhaseDone
	PhaseErrored
	PhaseAborted
)

var phaseNames = [...]string{"idle", "preparing", "running", "done", "errored", "aborted"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Active reports whether a session in this phase holds the transport.
func (p Phase) Active() bool { return p == PhasePreparing || p == PhaseRunning }

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseErrored || p == PhaseAborted }

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ID           string    `json:"id,omitempty"`
	RequestedIDs []KeyID   `json:"requested_ids,omitempty"`
	Phase        Phase     `json:"phase"`
	Processed    int       `json:"processed"`
	Total        int       `json:"total"`
	Percent      int       `json:"percent"`
	Message      string    `json:"message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// Listener observes session transitions. Calls are made in transition order
// and never while the machine is locked, so a listener may call back into it.
type Listener interface {
	SessionChanged(Snapshot)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Snapshot)

// SessionChanged calls f.
func (f ListenerFunc) SessionChanged(s Snapshot) { f(s) }

// MachineOptions configure a Machine.
type MachineOptions struct {
	// Reconciler runs once for every session that ends in PhaseDone.
	Reconciler Reconciler
	// IdleTimeout aborts a session that receives no event for this long. Zero disables it.
	IdleTimeout time.Duration
	Logger      *zap.SugaredLogger
}

// Machine owns the single validation session of the process.
type Machine struct {
	transport   Transport
	reconciler  Reconciler
	idleTimeout time.Duration
	logger      *zap.SugaredLogger
	now         func() time.Time

	mu        sync.Mutex
	session   *session
	listeners []Listener

	qmu      sync.Mutex
	queue    []Snapshot
	draining bool
}

type session struct {
	id        string
	ids       []KeyID
	phase     Phase
	processed int
	total     int
	percent   int
	message   string
	startedAt time.Time
	endedAt   time.Time

	stream   Stream
	cancel   context.CancelFunc
	watchdog *time.Timer

	// reconciling holds acknowledgment of a done session until the
	// reconciler has run; ackPending records one that arrived meanwhile.
	reconciling bool
	ackPending  bool
}

func (s *session) snapshot() Snapshot {
	ids := make([]KeyID, len(s.ids))
	copy(ids, s.ids)
	return Snapshot{
		ID:           s.id,
		RequestedIDs: ids,
		Phase:        s.phase,
		Processed:    s.processed,
		Total:        s.total,
		Percent:      s.percent,
		Message:      s.message,
		StartedAt:    s.startedAt,
		EndedAt:      s.endedAt,
	}
}

// NewMachine creates an idle machine that opens sessions on transport.
func NewMachine(transport Transport, opts MachineOptions) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Machine{
		transport:   transport,
		reconciler:  opts.Reconciler,
		idleTimeout: opts.IdleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// AddListener registers l for every later transition.
func (m *Machine) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Snapshot returns the current session state, or an idle snapshot.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Snapshot{Phase: PhaseIdle}
	}
	return m.session.snapshot()
}

// Busy reports whether a session exists that has not been acknowledged.
func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Start opens a session for req. Empty requests and starts while another
// session exists are rejected without side effects. A transport that fails
// to open ends the new session as aborted; Start still returns nil then.
//
// The session outlives ctx's cancellation; use Abort to stop it.
func (m *Machine) Start(ctx context.Context, req Request) (Snapshot, error) {
	if req.Empty() {
		return Snapshot{}, ErrEmptyRequest
	}

	m.mu.Lock()
	if m.session != nil {
		active := m.session.snapshot()
		m.mu.Unlock()
		return active, ErrSessionActive
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		id:        uuid.NewString(),
		ids:       req.IDs(),
		phase:     PhasePreparing,
		total:     req.Len(),
		startedAt: m.now(),
		cancel:    cancel,
	}
	m.session = s
	if m.idleTimeout > 0 {
		id := s.id
		s.watchdog = time.AfterFunc(m.idleTimeout, func() { m.expire(id) })
	}
	started := s.snapshot()
	m.enqueueLocked(started)
	m.mu.Unlock()
	m.drain()

	m.logger.Infow("Validation session started", "session", s.id, "keys", req.Len())

	stream, err := m.transport.Open(sctx, req)
	if err != nil {
		m.logger.Warnw("Failed to open validation stream", "session", s.id, "error", err)
		m.finish(s.id, PhaseAborted, MsgConnectionLost)
		return started, nil
	}

	m.mu.Lock()
	if m.session != s || !s.phase.Active() {
		m.mu.Unlock()
		_ = stream.Close()
		return started, nil
	}
	s.stream = stream
	m.mu.Unlock()

	go m.pump(s.id, stream)
	return started, nil
}

// Acknowledge returns a terminal session to idle. It reports false for an
// unknown or stale id and for sessions that are still active. A done session
// whose reconciliation is still running goes idle once it finishes.
func (m *Machine) Acknowledge(id string) bool {
	m.mu.Lock()
	s := m.session
	if s == nil || s.id != id || !s.phase.Terminal() {
		m.mu.Unlock()
		return false
	}
	if s.reconciling {
		s.ackPending = true
		m.mu.Unlock()
		m.logger.Debugw("Acknowledgement deferred until reconciliation ends", "session", id)
		return true
	}
	m.session = nil
	m.enqueueLocked(Snapshot{ID: id, Phase: PhaseIdle})
	m.mu.Unlock()
	m.drain()

	m.logger.Debugw("Validation session acknowledged", "session", id)
	return true
}

// Abort cancels an active session without reconciliation, or acknowledges a
// terminal one. It returns the resulting snapshot.
func (m *Machine) Abort() Snapshot {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return Snapshot{Phase: PhaseIdle}
	}
	id, terminal := s.id, s.phase.Terminal()
	m.mu.Unlock()

	if terminal {
		m.Acknowledge(id)
	} else if m.finish(id, PhaseAborted, MsgCancelled) {
		m.logger.Infow("Validation session cancelled", "session", id)
	}
	return m.Snapshot()
}

func (m *Machine) pump(id string, stream Stream) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			switch {
			case errors.Is(err, ErrMalformedEvent):
				m.logger.Warnw("Ignoring malformed validation event", "session", id, "error", err)
				if !m.touch(id) {
					return
				}
				continue
			case errors.Is(err, ErrStreamClosed):
				return
			}
			m.logger.Warnw("Validation stream lost", "session", id, "error", err)
			m.finish(id, PhaseAborted, MsgConnectionLost)
			return
		}

		switch ev.Kind {
		case EventProgress:
			if !m.progress(id, ev) {
				return
			}
		case EventDone:
			msg := ev.Message
			if msg == "" {
				msg = MsgDoneDefault
			}
			if m.finish(id, PhaseDone, msg) {
				m.reconcile(id)
			}
			return
		case EventError:
			msg := ev.Message
			if msg == "" {
				msg = MsgErrorDefault
			}
			m.finish(id, PhaseErrored, msg)
			return
		}
	}
}

// progress applies a progress event. It reports false once the session is no
// longer active.
func (m *Machine) progress(id string, ev Event) bool {
	m.mu.Lock()
	s := m.session
	if s == nil || s.id != id || !s.phase.Active() {
		m.mu.Unlock()
		return false
	}

	// Latest event wins: nothing is accumulated across events.
	s.total = max(ev.Total, 0)
	s.processed = min(max(ev.Processed, 0), s.total)
	s.percent = percentOf(s.processed, s.total, ev.Percent)
	s.phase = PhaseRunning
	m.resetWatchdogLocked(s)
	m.enqueueLocked(s.snapshot())
	m.mu.Unlock()
	m.drain()
	return true
}

// touch records liveness without changing state.
func (m *Machine) touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	if s == nil || s.id != id || !s.phase.Active() {
		return false
	}
	m.resetWatchdogLocked(s)
	return true
}

func (m *Machine) expire(id string) {
	if m.finish(id, PhaseAborted, MsgConnectionLost) {
		m.logger.Warnw("Validation session timed out waiting for events", "session", id, "idle_timeout", m.idleTimeout)
	}
}

// finish moves an active session to a terminal phase. The first terminal
// signal wins; later ones for the same session report false.
func (m *Machine) finish(id string, phase Phase, msg string) bool {
	m.mu.Lock()
	s := m.session
	if s == nil || s.id != id || !s.phase.Active() {
		m.mu.Unlock()
		return false
	}

	s.phase = phase
	s.message = msg
	s.endedAt = m.now()
	if phase == PhaseDone {
		s.percent = 100
		s.reconciling = m.reconciler != nil
	}
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	stream, cancel := s.stream, s.cancel
	m.enqueueLocked(s.snapshot())
	m.mu.Unlock()

	// Terminal before close, so anything the stream still yields is ignored.
	if stream != nil {
		_ = stream.Close()
	}
	cancel()
	m.drain()

	m.logger.Infow("Validation session ended", "session", id, "phase", phase.String(), "message", msg)
	return true
}

func (m *Machine) reconcile(id string) {
	if m.reconciler == nil {
		return
	}
	if err := m.reconciler.Reconcile(context.Background()); err != nil {
		m.logger.Warnw("Failed to refresh dashboard after validation", "session", id, "error", err)
	}

	m.mu.Lock()
	s := m.session
	pending := false
	if s != nil && s.id == id {
		s.reconciling = false
		pending = s.ackPending
		s.ackPending = false
	}
	m.mu.Unlock()
	if pending {
		m.Acknowledge(id)
	}
}

func (m *Machine) resetWatchdogLocked(s *session) {
	if s.watchdog != nil {
		s.watchdog.Reset(m.idleTimeout)
	}
}

// enqueueLocked queues a snapshot for delivery; m.mu must be held so the
// queue order matches the transition order.
func (m *Machine) enqueueLocked(s Snapshot) {
	m.qmu.Lock()
	m.queue = append(m.queue, s)
	m.qmu.Unlock()
}

// drain delivers queued snapshots. Only one goroutine drains at a time; a
// listener that triggers another transition has it delivered by the same loop.
func (m *Machine) drain() {
	m.qmu.Lock()
	if m.draining {
		m.qmu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.qmu.Unlock()

		m.mu.Lock()
		listeners := append([]Listener(nil), m.listeners...)
		m.mu.Unlock()
		for _, l := range listeners {
			l.SessionChanged(next)
		}

		m.qmu.Lock()
	}
	m.draining = false
	m.qmu.Unlock()
}

// percentOf is round(processed/total*100) clamped to [0,100]. With no total
// the server's own percentage is used.
func percentOf(processed, total, reported int) int {
	p := reported
	if total > 0 {
		p = int(math.Round(float64(processed) / float64(total) * 100))
	}
	return min(max(p, 0), 100)
}
