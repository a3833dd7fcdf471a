package validation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	// StreamPath is the admin endpoint that streams batch validation progress.
	StreamPath = "/admin/keys/batch-validate-stream"
	// StreamParam carries the comma joined key ids.
	StreamParam = "key_ids"
)

// StreamOpener issues the HTTP request behind an event stream.
// *adminapi.Client satisfies it.
type StreamOpener interface {
	OpenStream(ctx context.Context, path string, query url.Values) (io.ReadCloser, error)
}

// SSETransport consumes the server-sent event endpoint of the admin API.
type SSETransport struct {
	opener        StreamOpener
	maxQueryBytes int
	logger        *zap.SugaredLogger
}

// NewSSETransport creates a transport. Requests whose encoded id list would
// exceed maxQueryBytes are split into sequential sub-streams.
func NewSSETransport(opener StreamOpener, maxQueryBytes int, logger *zap.SugaredLogger) *SSETransport {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SSETransport{
		opener:        opener,
		maxQueryBytes: maxQueryBytes,
		logger:        logger,
	}
}

// Open starts streaming validation progress for req.
func (t *SSETransport) Open(ctx context.Context, req Request) (Stream, error) {
	if req.Empty() {
		return nil, ErrEmptyRequest
	}

	chunks := req.Chunks(StreamParam, t.maxQueryBytes)
	if len(chunks) == 1 {
		return t.openOne(ctx, req)
	}

	t.logger.Infow("Splitting validation request", "keys", req.Len(), "chunks", len(chunks))
	first, err := t.openOne(ctx, chunks[0])
	if err != nil {
		return nil, err
	}
	return &chunkedStream{
		ctx:    ctx,
		open:   t.openOne,
		chunks: chunks,
		total:  req.Len(),
		cur:    first,
	}, nil
}

func (t *SSETransport) openOne(ctx context.Context, req Request) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	body, err := t.opener.OpenStream(ctx, StreamPath, url.Values{StreamParam: {req.Join()}})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrTransportLost, err)
	}

	t.logger.Debugw("Validation stream opened", "keys", req.Len())
	return &sseStream{
		body:   body,
		reader: bufio.NewReader(body),
		cancel: cancel,
	}, nil
}

// sseStream decodes one text/event-stream body.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc

	closed atomic.Bool
	once   sync.Once
}

func (s *sseStream) Recv() (Event, error) {
	if s.closed.Load() {
		return Event{}, ErrStreamClosed
	}

	data, err := s.next()
	// Whatever the read produced, nothing is delivered after Close.
	if s.closed.Load() {
		return Event{}, ErrStreamClosed
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, fmt.Errorf("%w: server closed the stream", ErrTransportLost)
		}
		return Event{}, fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	return DecodeEvent([]byte(data))
}

// next returns the data of the next dispatched event.
func (s *sseStream) next() (string, error) {
	var data []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
		}
	}
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		err = s.body.Close()
	})
	return err
}
