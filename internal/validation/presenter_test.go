package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresent(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want View
	}{
		{
			name: "idle",
			snap: Snapshot{Phase: PhaseIdle},
			want: View{Phase: PhaseIdle},
		},
		{
			name: "preparing",
			snap: Snapshot{Phase: PhasePreparing, Total: 3},
			want: View{Phase: PhasePreparing, Message: MsgPreparing, Indeterminate: true},
		},
		{
			name: "running",
			snap: Snapshot{Phase: PhaseRunning, Processed: 2, Total: 3, Percent: 67},
			want: View{Phase: PhaseRunning, Percent: 67, Message: "正在验证... (2/3)"},
		},
		{
			name: "done",
			snap: Snapshot{Phase: PhaseDone, Processed: 3, Total: 3, Percent: 100, Message: "验证完成"},
			want: View{Phase: PhaseDone, Percent: 100, Message: "验证完成"},
		},
		{
			name: "errored",
			snap: Snapshot{Phase: PhaseErrored, Percent: 10, Message: "密钥验证失败"},
			want: View{Phase: PhaseErrored, Percent: 10, Message: "验证失败: 密钥验证失败"},
		},
		{
			name: "aborted without message",
			snap: Snapshot{Phase: PhaseAborted, Percent: 50},
			want: View{Phase: PhaseAborted, Percent: 50, Message: MsgConnectionLost},
		},
		{
			name: "cancelled",
			snap: Snapshot{Phase: PhaseAborted, Message: MsgCancelled},
			want: View{Phase: PhaseAborted, Message: MsgCancelled},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Present(tt.snap))
		})
	}
}

// newDwellMachine registers the dweller ahead of the recorder, so it has seen
// every snapshot the recorder returns.
func newDwellMachine(dwell time.Duration) (*Machine, *fakeTransport, *recorder, *Dweller) {
	tr := &fakeTransport{}
	m := NewMachine(tr, MachineOptions{})
	d := NewDweller(m, dwell)
	rec := newRecorder()
	m.AddListener(d)
	m.AddListener(rec)
	return m, tr, rec, d
}

func TestDweller_DoneWaitsForDwell(t *testing.T) {
	m, tr, rec, d := newDwellMachine(50 * time.Millisecond)

	startSession(t, m, 1)
	tr.stream(0).push(t, Done("ok"))
	rec.waitPhase(t, PhaseDone)
	assert.Equal(t, PhaseDone, m.Snapshot().Phase)
	assert.Equal(t, 1, d.Pending())

	rec.waitPhase(t, PhaseIdle)
	assert.Equal(t, 0, d.Pending())
}

func TestDweller_FailuresAcknowledgeAtOnce(t *testing.T) {
	m, tr, rec, _ := newDwellMachine(time.Hour)

	startSession(t, m, 1)
	tr.stream(0).push(t, Failed("bad"))
	rec.waitPhase(t, PhaseErrored)
	rec.waitPhase(t, PhaseIdle)

	startSession(t, m, 2)
	m.Abort()
	rec.waitPhase(t, PhaseIdle)
	assert.False(t, m.Busy())
}

func TestDweller_ReleasedByEarlyAcknowledge(t *testing.T) {
	m, tr, rec, d := newDwellMachine(time.Hour)

	startSession(t, m, 1)
	tr.stream(0).push(t, Done("ok"))
	rec.waitPhase(t, PhaseDone)
	require.Equal(t, 1, d.Pending())

	// Cancelling a finished session skips the rest of the dwell.
	assert.Equal(t, PhaseIdle, m.Abort().Phase)
	rec.waitPhase(t, PhaseIdle)
	assert.Equal(t, 0, d.Pending())
}

func TestDweller_Stop(t *testing.T) {
	acked := make(chan string, 1)
	d := NewDweller(ackFunc(func(id string) bool { acked <- id; return true }), 20*time.Millisecond)

	d.SessionChanged(Snapshot{ID: "a", Phase: PhaseDone})
	d.SessionChanged(Snapshot{ID: "a", Phase: PhaseDone})
	assert.Equal(t, 1, d.Pending())
	d.Stop()
	assert.Equal(t, 0, d.Pending())

	select {
	case id := <-acked:
		t.Fatalf("unexpected acknowledge of %s", id)
	case <-time.After(60 * time.Millisecond):
	}
}

type ackFunc func(id string) bool

func (f ackFunc) Acknowledge(id string) bool { return f(id) }
