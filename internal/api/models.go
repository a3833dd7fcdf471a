package api

import (
	"time"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

// StartValidationRequest starts a session over a key list or the current selection.
// Confirm must be true: it is the operator's answer to the confirmation prompt.
type StartValidationRequest struct {
	List     string `json:"list"`
	Selected bool   `json:"selected"`
	Confirm  bool   `json:"confirm"`
}

// AckRequest acknowledges a terminal session.
type AckRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// SelectionRequest replaces the key selection.
type SelectionRequest struct {
	KeyIDs []int64 `json:"key_ids" binding:"required"`
}

// SessionResponse pairs a session snapshot with its presented view.
type SessionResponse struct {
	Session validation.Snapshot `json:"session"`
	View    validation.View     `json:"view"`
}

// StatusResponse is the validation status document.
type StatusResponse struct {
	SessionResponse
	// LastTerminal is the most recent terminal session, kept after it is acknowledged.
	LastTerminal *SessionResponse `json:"last_terminal,omitempty"`
}

// KeysResponse lists one partition of the cached keys.
type KeysResponse struct {
	List     string            `json:"list"`
	Keys     []adminapi.APIKey `json:"keys"`
	Selected []int64           `json:"selected"`
	Count    int               `json:"count"`
}

// DashboardResponse is the cached dashboard snapshot.
type DashboardResponse struct {
	Data      *adminapi.DashboardData `json:"data"`
	FetchedAt time.Time               `json:"fetched_at"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string               `json:"error"`
	Notice  string               `json:"notice,omitempty"`
	Session *validation.Snapshot `json:"session,omitempty"`
}

func sessionResponse(s validation.Snapshot) SessionResponse {
	return SessionResponse{Session: s, View: validation.Present(s)}
}

func toKeyIDs(ids []int64) []validation.KeyID {
	out := make([]validation.KeyID, len(ids))
	for i, id := range ids {
		out[i] = validation.KeyID(id)
	}
	return out
}

func fromKeyIDs(ids []validation.KeyID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
