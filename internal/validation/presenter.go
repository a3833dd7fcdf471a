package validation

import (
	"fmt"
	"sync"
	"time"
)

// Presenter messages.
const (
	MsgPreparing     = "正在准备验证..."
	msgRunningFormat = "正在验证... (%d/%d)"
	msgErroredFormat = "验证失败: %s"
)

// View is what a progress display shows for a snapshot.
type View struct {
	Phase         Phase  `json:"phase"`
	Percent       int    `json:"percent"`
	Message       string `json:"message"`
	Indeterminate bool   `json:"indeterminate"`
}

// Present projects a snapshot onto a progress display. It has no side effects.
func Present(s Snapshot) View {
	v := View{Phase: s.Phase, Percent: s.Percent}
	switch s.Phase {
	case PhaseIdle:
		v.Percent = 0
	case PhasePreparing:
		v.Percent = 0
		v.Message = MsgPreparing
		v.Indeterminate = true
	case PhaseRunning:
		v.Message = fmt.Sprintf(msgRunningFormat, s.Processed, s.Total)
	case PhaseDone:
		v.Percent = 100
		v.Message = s.Message
	case PhaseErrored:
		v.Message = fmt.Sprintf(msgErroredFormat, s.Message)
	case PhaseAborted:
		v.Message = s.Message
		if v.Message == "" {
			v.Message = MsgConnectionLost
		}
	}
	return v
}

// Acknowledger returns terminal sessions to idle. *Machine satisfies it.
type Acknowledger interface {
	Acknowledge(id string) bool
}

// Dweller acknowledges terminal sessions once they have been on screen long
// enough: a successful session stays for the dwell, failures are acknowledged
// at once.
type Dweller struct {
	ack   Acknowledger
	dwell time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDweller creates a Dweller. Register it with Machine.AddListener.
func NewDweller(ack Acknowledger, dwell time.Duration) *Dweller {
	return &Dweller{
		ack:    ack,
		dwell:  dwell,
		timers: make(map[string]*time.Timer),
	}
}

// SessionChanged implements Listener.
func (d *Dweller) SessionChanged(s Snapshot) {
	switch s.Phase {
	case PhaseDone:
		if d.dwell <= 0 {
			d.ack.Acknowledge(s.ID)
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.timers[s.ID]; ok {
			return
		}
		id := s.ID
		d.timers[id] = time.AfterFunc(d.dwell, func() {
			d.mu.Lock()
			delete(d.timers, id)
			d.mu.Unlock()
			d.ack.Acknowledge(id)
		})
	case PhaseErrored, PhaseAborted:
		d.ack.Acknowledge(s.ID)
	case PhaseIdle:
		d.release(s.ID)
	}
}

// Pending reports how many dwell timers are running.
func (d *Dweller) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop releases every pending timer without acknowledging.
func (d *Dweller) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

func (d *Dweller) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[id]; ok {
		t.Stop()
		delete(d.timers, id)
	}
}
