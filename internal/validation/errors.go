package validation

import (
	"errors"
	"fmt"
)

var (
	// ErrRejectedStart is wrapped by every refusal to start a session.
	ErrRejectedStart = errors.New("validation start rejected")
	// ErrEmptyRequest means there were no keys to validate.
	ErrEmptyRequest = fmt.Errorf("%w: no keys to validate", ErrRejectedStart)
	// ErrSessionActive means another session has not returned to idle yet.
	ErrSessionActive = fmt.Errorf("%w: a validation session is already active", ErrRejectedStart)

	// ErrDeclined is returned when the operator declines the confirmation.
	ErrDeclined = errors.New("validation declined")

	// ErrTransportLost is wrapped when the stream fails before a terminal event.
	ErrTransportLost = errors.New("validation stream lost")
	// ErrMalformedEvent is wrapped for a pushed payload that is not a known event shape.
	ErrMalformedEvent = errors.New("malformed validation event")
	// ErrStreamClosed is returned by Recv once the consumer has closed the stream.
	ErrStreamClosed = errors.New("validation stream closed")
)
