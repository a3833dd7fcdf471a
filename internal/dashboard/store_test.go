package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) DashboardData(ctx context.Context) (*adminapi.DashboardData, error) {
	args := m.Called(ctx)
	data, _ := args.Get(0).(*adminapi.DashboardData)
	return data, args.Error(1)
}

func snapshot(keys ...adminapi.APIKey) *adminapi.DashboardData {
	return &adminapi.DashboardData{Keys: keys}
}

func TestStore_KeysByList(t *testing.T) {
	f := &mockFetcher{}
	f.On("DashboardData", mock.Anything).Return(snapshot(
		adminapi.APIKey{ID: 3, IsValid: true},
		adminapi.APIKey{ID: 1, IsValid: true},
		adminapi.APIKey{ID: 2, IsValid: false},
	), nil)

	s := New(f, nil)
	assert.Nil(t, s.KeyIDs(validation.ListValid))
	_, _, err := s.Data()
	assert.True(t, errors.Is(err, ErrNotLoaded))

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []validation.KeyID{1, 3}, s.KeyIDs(validation.ListValid))
	assert.Equal(t, []validation.KeyID{2}, s.KeyIDs(validation.ListInvalid))
}

func TestStore_Selection(t *testing.T) {
	f := &mockFetcher{}
	f.On("DashboardData", mock.Anything).Return(snapshot(
		adminapi.APIKey{ID: 1}, adminapi.APIKey{ID: 2}, adminapi.APIKey{ID: 3},
	), nil).Once()
	f.On("DashboardData", mock.Anything).Return(snapshot(
		adminapi.APIKey{ID: 1}, adminapi.APIKey{ID: 3},
	), nil).Once()

	s := New(f, nil)
	assert.True(t, errors.Is(s.SetSelection([]validation.KeyID{1}), ErrNotLoaded))

	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.SetSelection([]validation.KeyID{3, 2, 3}))
	assert.Equal(t, []validation.KeyID{2, 3}, s.Selected())

	err := s.SetSelection([]validation.KeyID{1, 99})
	assert.True(t, errors.Is(err, ErrUnknownKey))
	assert.Equal(t, []validation.KeyID{2, 3}, s.Selected(), "failed update leaves selection alone")

	// Key 2 disappears on the next refresh.
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []validation.KeyID{3}, s.Selected())

	s.ClearSelection()
	assert.Empty(t, s.Selected())
	f.AssertExpectations(t)
}

func TestStore_RefreshErrorKeepsSnapshot(t *testing.T) {
	f := &mockFetcher{}
	f.On("DashboardData", mock.Anything).Return(snapshot(adminapi.APIKey{ID: 1, IsValid: true}), nil).Once()
	f.On("DashboardData", mock.Anything).Return(nil, adminapi.ErrUnauthorized).Once()

	s := New(f, nil)
	require.NoError(t, s.Refresh(context.Background()))

	err := s.Refresh(context.Background())
	assert.True(t, errors.Is(err, adminapi.ErrUnauthorized))
	assert.Equal(t, []validation.KeyID{1}, s.KeyIDs(validation.ListValid))
}

func TestStore_AsReconciliationTrigger(t *testing.T) {
	f := &mockFetcher{}
	f.On("DashboardData", mock.Anything).Return(snapshot(adminapi.APIKey{ID: 1}, adminapi.APIKey{ID: 2}), nil)

	s := New(f, nil)
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.SetSelection([]validation.KeyID{1, 2}))

	trigger := validation.Trigger{Refresher: s, Selection: s}
	require.NoError(t, trigger.Reconcile(context.Background()))
	assert.Empty(t, s.Selected())
	f.AssertNumberOfCalls(t, "DashboardData", 2)
}
