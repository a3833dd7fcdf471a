package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// httpOpener is a bare StreamOpener over net/http.
type httpOpener struct {
	base string
}

func (o httpOpener) OpenStream(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func sseServer(t *testing.T, h http.HandlerFunc) *SSETransport {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewSSETransport(httpOpener{base: srv.URL}, 6000, nil)
}

func recvAll(t *testing.T, s Stream) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		ev, err := s.Recv()
		if errors.Is(err, ErrMalformedEvent) {
			continue
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		if ev.Kind != EventProgress {
			return events, nil
		}
	}
}

func TestSSETransport_ParsesEvents(t *testing.T) {
	tr := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, StreamPath, r.URL.Path)
		assert.Equal(t, "1,2", r.URL.Query().Get(StreamParam))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, "event: progress\nid: 1\ndata: {\"processed\":1,\"total\":2,\"percent\":50}\n\n")
		_, _ = io.WriteString(w, "data: not json\n\n")
		_, _ = io.WriteString(w, "data: {\"processed\":2,\r\ndata: \"total\":2,\"percent\":100}\r\n\r\n")
		_, _ = io.WriteString(w, "data: {\"status\":\"done\",\"message\":\"验证完成\"}\n\n")
	})

	s, err := tr.Open(context.Background(), NewRequest(1, 2))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	events, err := recvAll(t, s)
	require.NoError(t, err)
	assert.Equal(t, []Event{
		Progress(1, 2, 50),
		Progress(2, 2, 100),
		Done("验证完成"),
	}, events)
}

func TestSSETransport_EndWithoutTerminalIsLoss(t *testing.T) {
	tr := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"processed\":1,\"total\":2,\"percent\":50}\n\n")
	})

	s, err := tr.Open(context.Background(), NewRequest(1, 2))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	events, err := recvAll(t, s)
	assert.Len(t, events, 1)
	assert.True(t, errors.Is(err, ErrTransportLost))
}

func TestSSETransport_TrailingEventWithoutBlankLine(t *testing.T) {
	tr := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"status\":\"error\",\"message\":\"bad\"}")
	})

	s, err := tr.Open(context.Background(), NewRequest(1))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, Failed("bad"), ev)
}

func TestSSETransport_OpenFailure(t *testing.T) {
	tr := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := tr.Open(context.Background(), NewRequest(1))
	assert.True(t, errors.Is(err, ErrTransportLost))

	_, err = tr.Open(context.Background(), NewRequest())
	assert.True(t, errors.Is(err, ErrEmptyRequest))
}

func TestSSETransport_CloseSuppressesDelivery(t *testing.T) {
	release := make(chan struct{})
	tr := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"processed\":1,\"total\":2,\"percent\":50}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	s, err := tr.Open(context.Background(), NewRequest(1, 2))
	require.NoError(t, err)

	_, err = s.Recv()
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Recv()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, ErrStreamClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not return after Close")
	}

	_, err = s.Recv()
	assert.True(t, errors.Is(err, ErrStreamClosed))
}

func TestSSETransport_ChunksLargeRequests(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get(StreamParam)
		mu.Lock()
		requests = append(requests, raw)
		mu.Unlock()

		ids := strings.Split(raw, ",")
		for i := range ids {
			fmt.Fprintf(w, "data: {\"processed\":%d,\"total\":%d,\"percent\":0}\n\n", i+1, len(ids))
		}
		_, _ = io.WriteString(w, "data: {\"status\":\"done\",\"message\":\"验证完成\"}\n\n")
	}))
	t.Cleanup(srv.Close)

	tr := NewSSETransport(httpOpener{base: srv.URL}, 13, nil)
	s, err := tr.Open(context.Background(), NewRequest(1, 2, 3, 4, 5))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	events, err := recvAll(t, s)
	require.NoError(t, err)
	assert.Equal(t, []Event{
		Progress(1, 5, 20),
		Progress(2, 5, 40),
		Progress(3, 5, 60),
		Progress(4, 5, 80),
		Progress(5, 5, 100),
		Done("验证完成"),
	}, events)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1,2", "3,4", "5"}, requests)
}

func TestSSETransport_ChunkErrorEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Query().Get(StreamParam), "3") {
			_, _ = io.WriteString(w, "data: {\"status\":\"error\",\"message\":\"quota\"}\n\n")
			return
		}
		_, _ = io.WriteString(w, "data: {\"status\":\"done\",\"message\":\"ok\"}\n\n")
	}))
	t.Cleanup(srv.Close)

	tr := NewSSETransport(httpOpener{base: srv.URL}, 13, nil)
	s, err := tr.Open(context.Background(), NewRequest(1, 2, 3, 4, 5))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, Failed("quota"), ev)
}

func TestSSETransport_DrivesMachine(t *testing.T) {
	tr := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"processed\":1,\"total\":1,\"percent\":100}\n\n")
		_, _ = io.WriteString(w, "data: {\"status\":\"done\",\"message\":\"验证完成\"}\n\n")
	})
	rc := &countingReconciler{}
	m := NewMachine(tr, MachineOptions{Reconciler: rc})
	rec := newRecorder()
	m.AddListener(rec)

	startSession(t, m, 1)
	snap := rec.waitPhase(t, PhaseDone)
	assert.Equal(t, "验证完成", snap.Message)
	require.Eventually(t, func() bool { return rc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}
