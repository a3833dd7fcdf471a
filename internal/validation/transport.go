package validation

import "context"

// Transport opens a server-push channel for a request.
type Transport interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// Stream is a lazy sequence of events with a single consumer.
//
// Recv blocks until the next event. It returns an error wrapping
// ErrMalformedEvent for an undecodable payload (the stream is still usable),
// an error wrapping ErrTransportLost when the connection fails or ends, and
// ErrStreamClosed once Close has been called. Close is idempotent and may be
// called from any goroutine.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (Stream, error)

// Open calls f.
func (f TransportFunc) Open(ctx context.Context, req Request) (Stream, error) {
	return f(ctx, req)
}
