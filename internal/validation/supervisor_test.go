package validation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockConfirmer struct {
	mock.Mock
}

func (m *mockConfirmer) Confirm(ctx context.Context, c Confirmation) (bool, error) {
	args := m.Called(ctx, c)
	return args.Bool(0), args.Error(1)
}

type notice struct {
	level Level
	msg   string
}

type noticeLog struct {
	mu      sync.Mutex
	notices []notice
}

func (n *noticeLog) Notify(level Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level, msg})
}

func (n *noticeLog) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

type staticKeys map[List][]KeyID

func (s staticKeys) KeyIDs(l List) []KeyID { return s[l] }

type staticSelection []KeyID

func (s staticSelection) Selected() []KeyID { return s }

func TestSupervisor_ValidateAllInList(t *testing.T) {
	m, tr, _ := newTestMachine(t, MachineOptions{})
	confirmer := &mockConfirmer{}
	confirmer.On("Confirm", mock.Anything, Confirmation{
		Title: "确认验证",
		Body:  "验证当前列表中的全部 3 个密钥",
		Count: 3,
	}).Return(true, nil).Once()

	keys := staticKeys{ListInvalid: {4, 5, 6, 5}}
	sup := NewSupervisor(m, keys, nil, confirmer, &noticeLog{}, nil)

	snap, err := sup.ValidateAllInList(context.Background(), ListInvalid)
	require.NoError(t, err)
	assert.Equal(t, PhasePreparing, snap.Phase)
	assert.Equal(t, []KeyID{4, 5, 6}, snap.RequestedIDs)
	assert.Equal(t, 1, tr.openCount())
	confirmer.AssertExpectations(t)
}

func TestSupervisor_EmptyInputs(t *testing.T) {
	m, tr, _ := newTestMachine(t, MachineOptions{})
	confirmer := &mockConfirmer{}
	notes := &noticeLog{}
	sup := NewSupervisor(m, staticKeys{}, staticSelection(nil), confirmer, notes, nil)

	_, err := sup.ValidateAllInList(context.Background(), ListValid)
	assert.True(t, errors.Is(err, ErrEmptyRequest))
	_, err = sup.ValidateSelected(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyRequest))

	assert.Equal(t, []notice{
		{LevelWarning, "列表中没有需要验证的密钥。"},
		{LevelWarning, "请至少选择一个密钥。"},
	}, notes.all())
	assert.Equal(t, 0, tr.openCount())
	confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
}

func TestSupervisor_Declined(t *testing.T) {
	m, tr, rec := newTestMachine(t, MachineOptions{})
	confirmer := &mockConfirmer{}
	confirmer.On("Confirm", mock.Anything, mock.MatchedBy(func(c Confirmation) bool {
		return c.Body == "验证选中的 2 个密钥" && c.Count == 2
	})).Return(false, nil)

	sup := NewSupervisor(m, nil, staticSelection{1, 2}, confirmer, &noticeLog{}, nil)
	_, err := sup.ValidateSelected(context.Background())
	assert.True(t, errors.Is(err, ErrDeclined))
	assert.Equal(t, 0, tr.openCount())
	assert.Empty(t, rec.phases())
	confirmer.AssertExpectations(t)
}

func TestSupervisor_ConfirmerError(t *testing.T) {
	m, _, _ := newTestMachine(t, MachineOptions{})
	boom := errors.New("terminal closed")
	sup := NewSupervisor(m, nil, staticSelection{1}, ConfirmFunc(func(context.Context, Confirmation) (bool, error) {
		return false, boom
	}), nil, nil)

	_, err := sup.ValidateSelected(context.Background())
	assert.True(t, errors.Is(err, boom))
	assert.False(t, m.Busy())
}

func TestSupervisor_RejectsWhileActive(t *testing.T) {
	m, tr, _ := newTestMachine(t, MachineOptions{})
	notes := &noticeLog{}
	confirmer := &mockConfirmer{}
	sup := NewSupervisor(m, staticKeys{ListValid: {9}}, staticSelection{1}, confirmer, notes, nil)

	first := startSession(t, m, 1)

	snap, err := sup.ValidateAllInList(context.Background(), ListValid)
	assert.True(t, errors.Is(err, ErrSessionActive))
	assert.Equal(t, first.ID, snap.ID)
	assert.Equal(t, []notice{{LevelError, "已有验证任务正在进行，请稍后再试。"}}, notes.all())
	assert.Equal(t, 1, tr.openCount())
	confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
}

func TestSupervisor_RaceLostAfterConfirm(t *testing.T) {
	m, tr, _ := newTestMachine(t, MachineOptions{})
	notes := &noticeLog{}

	// Another entry point starts a session while the operator is deciding.
	confirm := ConfirmFunc(func(ctx context.Context, c Confirmation) (bool, error) {
		_, err := m.Start(ctx, NewRequest(42))
		require.NoError(t, err)
		return true, nil
	})
	sup := NewSupervisor(m, nil, staticSelection{1}, confirm, notes, nil)

	_, err := sup.ValidateSelected(context.Background())
	assert.True(t, errors.Is(err, ErrSessionActive))
	assert.Equal(t, []KeyID{42}, m.Snapshot().RequestedIDs)
	assert.Len(t, notes.all(), 1)
	assert.Equal(t, 1, tr.openCount())
}

func TestSupervisor_Preconfirmed(t *testing.T) {
	m, _, _ := newTestMachine(t, MachineOptions{})
	sup := NewSupervisor(m, nil, staticSelection{3}, nil, nil, nil)

	_, err := sup.ValidateSelected(context.Background())
	assert.True(t, errors.Is(err, ErrDeclined), "no confirmer means no consent")

	_, err = sup.WithConfirmer(Preconfirmed(false)).ValidateSelected(context.Background())
	assert.True(t, errors.Is(err, ErrDeclined))

	snap, err := sup.WithConfirmer(Preconfirmed(true)).ValidateSelected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []KeyID{3}, snap.RequestedIDs)
}

func TestSupervisor_UnknownList(t *testing.T) {
	m, _, _ := newTestMachine(t, MachineOptions{})
	sup := NewSupervisor(m, staticKeys{}, nil, Preconfirmed(true), nil, nil)

	_, err := sup.ValidateAllInList(context.Background(), List("expired"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrRejectedStart))
}
