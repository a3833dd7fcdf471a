package validation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Supervisor notices.
const (
	NoticeEmptyList     = "列表中没有需要验证的密钥。"
	NoticeEmptySelected = "请至少选择一个密钥。"
	NoticeSessionActive = "已有验证任务正在进行，请稍后再试。"

	confirmTitle        = "确认验证"
	confirmListBody     = "验证当前列表中的全部 %d 个密钥"
	confirmSelectedBody = "验证选中的 %d 个密钥"
)

// List names a partition of the cached key set.
type List string

const (
	ListValid   List = "valid"
	ListInvalid List = "invalid"
)

// ParseList validates a list name.
func ParseList(s string) (List, error) {
	switch l := List(s); l {
	case ListValid, ListInvalid:
		return l, nil
	}
	return "", fmt.Errorf("unknown key list %q (want valid or invalid)", s)
}

// KeySource exposes the locally cached key set, read-only.
type KeySource interface {
	KeyIDs(list List) []KeyID
}

// Selection exposes the operator's current key selection.
type Selection interface {
	Selected() []KeyID
}

// Confirmation is the question put to the operator before a session starts.
type Confirmation struct {
	Title string
	Body  string
	Count int
}

// Confirmer obtains the operator's decision. It may block until one is made.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, c Confirmation) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, c Confirmation) (bool, error) { return f(ctx, c) }

// Preconfirmed answers every confirmation with a decision made up front, such
// as a --yes flag or an explicit field in an API request.
type Preconfirmed bool

// Confirm implements Confirmer.
func (p Preconfirmed) Confirm(context.Context, Confirmation) (bool, error) { return bool(p), nil }

// Level grades a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// Notifier shows a standalone message to the operator.
type Notifier interface {
	Notify(level Level, msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, msg string)

// Notify calls f.
func (f NotifierFunc) Notify(level Level, msg string) { f(level, msg) }

// Supervisor is where validation sessions are started from.
type Supervisor struct {
	machine   *Machine
	keys      KeySource
	selection Selection
	confirmer Confirmer
	notifier  Notifier
	logger    *zap.SugaredLogger
}

// NewSupervisor wires the entry points to machine.
func NewSupervisor(machine *Machine, keys KeySource, selection Selection, confirmer Confirmer, notifier Notifier, logger *zap.SugaredLogger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Level, string) {})
	}
	return &Supervisor{
		machine:   machine,
		keys:      keys,
		selection: selection,
		confirmer: confirmer,
		notifier:  notifier,
		logger:    logger,
	}
}

// WithConfirmer returns a copy of s that asks c instead.
func (s *Supervisor) WithConfirmer(c Confirmer) *Supervisor {
	cp := *s
	cp.confirmer = c
	return &cp
}

// ValidateAllInList validates every cached key in list.
func (s *Supervisor) ValidateAllInList(ctx context.Context, list List) (Snapshot, error) {
	if _, err := ParseList(string(list)); err != nil {
		return Snapshot{}, err
	}
	var ids []KeyID
	if s.keys != nil {
		ids = s.keys.KeyIDs(list)
	}
	return s.start(ctx, NewRequest(ids...), NoticeEmptyList, confirmListBody)
}

// ValidateSelected validates the keys currently selected.
func (s *Supervisor) ValidateSelected(ctx context.Context) (Snapshot, error) {
	var ids []KeyID
	if s.selection != nil {
		ids = s.selection.Selected()
	}
	return s.start(ctx, NewRequest(ids...), NoticeEmptySelected, confirmSelectedBody)
}

func (s *Supervisor) start(ctx context.Context, req Request, emptyNotice, bodyFormat string) (Snapshot, error) {
	if req.Empty() {
		s.notifier.Notify(LevelWarning, emptyNotice)
		return Snapshot{}, ErrEmptyRequest
	}
	if s.machine.Busy() {
		return s.rejectActive()
	}

	ok, err := s.confirm(ctx, Confirmation{
		Title: confirmTitle,
		Body:  fmt.Sprintf(bodyFormat, req.Len()),
		Count: req.Len(),
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		s.logger.Debugw("Validation declined", "keys", req.Len())
		return Snapshot{}, ErrDeclined
	}

	snap, err := s.machine.Start(ctx, req)
	if errors.Is(err, ErrSessionActive) {
		return s.rejectActive()
	}
	if err != nil {
		s.notifier.Notify(LevelError, err.Error())
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Supervisor) confirm(ctx context.Context, c Confirmation) (bool, error) {
	if s.confirmer == nil {
		return false, nil
	}
	return s.confirmer.Confirm(ctx, c)
}

func (s *Supervisor) rejectActive() (Snapshot, error) {
	s.notifier.Notify(LevelError, NoticeSessionActive)
	return s.machine.Snapshot(), ErrSessionActive
}
