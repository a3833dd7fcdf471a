// Package dashboard caches the authoritative dashboard snapshot and the
// operator's key selection.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

var (
	// ErrNotLoaded is returned before the first successful refresh.
	ErrNotLoaded = errors.New("dashboard data not loaded")
	// ErrUnknownKey is returned when selecting an id missing from the snapshot.
	ErrUnknownKey = errors.New("unknown key id")
)

// Fetcher loads the full snapshot. *adminapi.Client satisfies it.
type Fetcher interface {
	DashboardData(ctx context.Context) (*adminapi.DashboardData, error)
}

// Store holds the last fetched snapshot. It is only replaced by Refresh.
type Store struct {
	fetcher Fetcher
	logger  *zap.SugaredLogger

	mu        sync.RWMutex
	data      *adminapi.DashboardData
	fetchedAt time.Time
	selected  map[validation.KeyID]struct{}
}

// New creates an empty store.
func New(fetcher Fetcher, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		fetcher:  fetcher,
		logger:   logger,
		selected: make(map[validation.KeyID]struct{}),
	}
}

// Refresh fetches a new snapshot. Selected ids that no longer exist are dropped.
func (s *Store) Refresh(ctx context.Context) error {
	data, err := s.fetcher.DashboardData(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh dashboard: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.fetchedAt = time.Now()

	known := knownIDs(data)
	for id := range s.selected {
		if _, ok := known[id]; !ok {
			delete(s.selected, id)
		}
	}

	s.logger.Debugw("Dashboard refreshed",
		"keys", len(data.Keys),
		"valid", data.Stats.KeyStats.ValidKeys,
		"invalid", data.Stats.KeyStats.InvalidKeys,
	)
	return nil
}

// Data returns the cached snapshot and when it was fetched. Callers must not modify it.
func (s *Store) Data() (*adminapi.DashboardData, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, time.Time{}, ErrNotLoaded
	}
	return s.data, s.fetchedAt, nil
}

// Keys returns the cached keys in list, ordered by id.
func (s *Store) Keys(list validation.List) []adminapi.APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil
	}

	want := list == validation.ListValid
	var out []adminapi.APIKey
	for _, k := range s.data.Keys {
		if k.IsValid == want {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// KeyIDs implements validation.KeySource.
func (s *Store) KeyIDs(list validation.List) []validation.KeyID {
	keys := s.Keys(list)
	ids := make([]validation.KeyID, len(keys))
	for i, k := range keys {
		ids[i] = validation.KeyID(k.ID)
	}
	return ids
}

// SetSelection replaces the selection. Every id must be in the snapshot.
func (s *Store) SetSelection(ids []validation.KeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return ErrNotLoaded
	}

	known := knownIDs(s.data)
	next := make(map[validation.KeyID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownKey, id)
		}
		next[id] = struct{}{}
	}
	s.selected = next
	return nil
}

// Selected implements validation.Selection.
func (s *Store) Selected() []validation.KeyID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]validation.KeyID, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClearSelection implements validation.SelectionClearer.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[validation.KeyID]struct{})
}

func knownIDs(data *adminapi.DashboardData) map[validation.KeyID]struct{} {
	known := make(map[validation.KeyID]struct{}, len(data.Keys))
	for _, k := range data.Keys {
		known[validation.KeyID(k.ID)] = struct{}{}
	}
	return known
}
