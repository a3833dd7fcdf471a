package validation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recvResult struct {
	ev  Event
	err error
}

// fakeStream hands out whatever the test pushes into it.
type fakeStream struct {
	events chan recvResult
	closed chan struct{}
	once   sync.Once
	closes atomic.Int32
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan recvResult),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) Recv() (Event, error) {
	select {
	case <-f.closed:
		return Event{}, ErrStreamClosed
	case r := <-f.events:
		return r.ev, r.err
	}
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// push delivers one event and fails the test if nobody is receiving.
func (f *fakeStream) push(t *testing.T, ev Event) {
	t.Helper()
	f.pushResult(t, recvResult{ev: ev})
}

func (f *fakeStream) fail(t *testing.T, err error) {
	t.Helper()
	f.pushResult(t, recvResult{err: err})
}

func (f *fakeStream) pushResult(t *testing.T, r recvResult) {
	t.Helper()
	select {
	case f.events <- r:
	case <-time.After(2 * time.Second):
		t.Fatal("stream consumer did not receive event")
	}
}

type fakeTransport struct {
	mu      sync.Mutex
	opened  []Request
	streams []*fakeStream
	err     error
}

func (t *fakeTransport) Open(_ context.Context, req Request) (Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = append(t.opened, req)
	if t.err != nil {
		return nil, t.err
	}
	s := newFakeStream()
	t.streams = append(t.streams, s)
	return s, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.opened)
}

func (t *fakeTransport) stream(i int) *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[i]
}

// recorder keeps every snapshot the machine publishes.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	ch    chan Snapshot
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Snapshot, 128)}
}

func (r *recorder) SessionChanged(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, len(r.snaps))
	for i, s := range r.snaps {
		out[i] = s.Phase
	}
	return out
}

// waitPhase consumes published snapshots until one in phase p arrives.
func (r *recorder) waitPhase(t *testing.T, p Phase) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if s.Phase == p {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %s (saw %v)", p, r.phases())
		}
	}
}

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (c *countingReconciler) Reconcile(context.Context) error {
	c.calls.Add(1)
	return c.err
}

// blockingReconciler holds Reconcile until release is closed.
type blockingReconciler struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingReconciler() *blockingReconciler {
	return &blockingReconciler{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingReconciler) Reconcile(context.Context) error {
	close(b.entered)
	<-b.release
	return nil
}

func newTestMachine(t *testing.T, opts MachineOptions) (*Machine, *fakeTransport, *recorder) {
	t.Helper()
	tr := &fakeTransport{}
	m := NewMachine(tr, opts)
	rec := newRecorder()
	m.AddListener(rec)
	return m, tr, rec
}

func startSession(t *testing.T, m *Machine, ids ...KeyID) Snapshot {
	t.Helper()
	snap, err := m.Start(context.Background(), NewRequest(ids...))
	require.NoError(t, err)
	return snap
}
