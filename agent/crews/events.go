package crews

import (
	"fmt"
	"slices"
	"time"
)

// UnitState 是执行单元的状态。
type UnitState string

const (
	StatePending      UnitState = "pending"
	StateContextBound UnitState = "context_bound"
	StateDispatched   UnitState = "dispatched"
	StateSucceeded    UnitState = "succeeded"
	StateFailed       UnitState = "failed"
	StateCancelled    UnitState = "cancelled"
	StateSkipped      UnitState = "skipped"
)

// Terminal reports whether no further transition may leave s.
func (s UnitState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateSkipped:
		return true
	}
	return false
}

var unitTransitions = map[UnitState][]UnitState{
	StatePending:      {StateContextBound, StateCancelled, StateSkipped},
	StateContextBound: {StateDispatched, StateCancelled},
	StateDispatched:   {StateSucceeded, StateFailed, StateCancelled},
}

// CanTransition reports whether a unit may move from one state to another.
func CanTransition(from, to UnitState) bool {
	return slices.Contains(unitTransitions[from], to)
}

// UnitEvent describes one state transition of a unit during a run.
type UnitEvent struct {
	RunID   string    `json:"run_id"`
	CrewID  string    `json:"crew_id"`
	TaskID  string    `json:"task_id"`
	AgentID string    `json:"agent_id"`
	Index   int       `json:"index"`
	From    UnitState `json:"from"`
	State   UnitState `json:"state"`
	At      time.Time `json:"at"`
	Output  string    `json:"output,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Observer receives unit events. It may be called from several goroutines
// in parallel mode and must not block for long.
type Observer func(UnitEvent)

// unitTracker enforces the unit state machine and publishes transitions.
type unitTracker struct {
	state UnitState
	event UnitEvent
	emit  Observer
	now   func() time.Time
}

func newUnitTracker(runID, crewID string, u Unit, emit Observer, now func() time.Time) *unitTracker {
	return &unitTracker{
		state: StatePending,
		event: UnitEvent{RunID: runID, CrewID: crewID, TaskID: u.TaskID, AgentID: u.AgentID, Index: u.Index},
		emit:  emit,
		now:   now,
	}
}

func (t *unitTracker) move(to UnitState, output, errText string) error {
	if !CanTransition(t.state, to) {
		return fmt.Errorf("unit %s: invalid transition %s -> %s", t.event.TaskID, t.state, to)
	}
	from := t.state
	t.state = to
	if t.emit != nil {
		ev := t.event
		ev.From = from
		ev.State = to
		ev.At = t.now()
		ev.Output = output
		ev.Error = errText
		t.emit(ev)
	}
	return nil
}
