package validation

import (
	"encoding/json"
	"fmt"
	"math"
)

// EventKind discriminates the events pushed by the server.
type EventKind int

const (
	EventProgress EventKind = iota
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one pushed value. Sessions copy what they need and drop it.
type Event struct {
	Kind      EventKind
	Processed int
	Total     int
	Percent   int
	Message   string
}

// Progress builds a progress event.
func Progress(processed, total, percent int) Event {
	return Event{Kind: EventProgress, Processed: processed, Total: total, Percent: percent}
}

// Done builds a terminal success event.
func Done(msg string) Event { return Event{Kind: EventDone, Message: msg} }

// Failed builds a terminal error event.
func Failed(msg string) Event { return Event{Kind: EventError, Message: msg} }

type wireEvent struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Processed *float64 `json:"processed"`
	Total     *float64 `json:"total"`
	Percent   *float64 `json:"percent"`
}

// DecodeEvent parses one event payload. Anything that is not done, error or a
// progress object with processed and total is reported as ErrMalformedEvent.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch w.Status {
	case "done":
		return Done(w.Message), nil
	case "error":
		return Failed(w.Message), nil
	}

	if w.Processed == nil || w.Total == nil {
		return Event{}, fmt.Errorf("%w: progress event without processed/total: %s", ErrMalformedEvent, truncate(data, 120))
	}
	ev := Progress(int(*w.Processed), int(*w.Total), 0)
	if w.Percent != nil {
		ev.Percent = int(math.Round(*w.Percent))
	}
	return ev, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
