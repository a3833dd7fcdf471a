package validation

import (
	"context"
	"errors"
	"sync"
)

// chunkedStream runs sub-streams one after another and presents them as a
// single stream over the whole request.
type chunkedStream struct {
	ctx    context.Context
	open   func(ctx context.Context, req Request) (Stream, error)
	chunks []Request
	total  int

	mu     sync.Mutex
	idx    int
	offset int
	cur    Stream
	closed bool
}

func (c *chunkedStream) Recv() (Event, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Event{}, ErrStreamClosed
		}
		cur, offset, last := c.cur, c.offset, c.idx == len(c.chunks)-1
		c.mu.Unlock()

		ev, err := cur.Recv()
		if err != nil {
			if c.isClosed() {
				return Event{}, ErrStreamClosed
			}
			return Event{}, err
		}

		switch ev.Kind {
		case EventProgress:
			processed := offset + ev.Processed
			return Progress(processed, c.total, percentOf(processed, c.total, ev.Percent)), nil
		case EventError:
			return ev, nil
		}

		if last {
			return ev, nil
		}
		if err := c.advance(cur); err != nil {
			return Event{}, err
		}
	}
}

// advance closes the finished chunk and opens the next one.
func (c *chunkedStream) advance(done Stream) error {
	_ = done.Close()

	c.mu.Lock()
	c.offset += c.chunks[c.idx].Len()
	c.idx++
	next := c.chunks[c.idx]
	c.mu.Unlock()

	s, err := c.open(c.ctx, next)
	if err != nil {
		if c.isClosed() {
			return ErrStreamClosed
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = s.Close()
		return ErrStreamClosed
	}
	c.cur = s
	return nil
}

func (c *chunkedStream) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *chunkedStream) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cur := c.cur
	c.mu.Unlock()

	if err := cur.Close(); err != nil && !errors.Is(err, ErrStreamClosed) {
		return err
	}
	return nil
}
