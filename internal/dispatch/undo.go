package dispatch

import (
	"context"
	"sync"
	"time"
)

const DefaultUndoDepth = 5

type UndoKind string

const (
	UndoAssign     UndoKind = "assign"
	UndoReschedule UndoKind = "reschedule"
	UndoUnassign   UndoKind = "unassign"
)

// UndoAction records one past mutation. Actions with a revert function
// can be undone; the rest are informational history (a delete cannot be
// reversed without recreating the full dispatch state, so it is logged
// but never revertible).
type UndoAction struct {
	Kind        UndoKind
	DispatchID  string
	Description string
	At          time.Time

	revert func(ctx context.Context) error
}

func (a UndoAction) Reversible() bool {
	return a.revert != nil
}

// undoLog is a capacity-bounded stack: push evicts the oldest entry on
// overflow, pop returns the most recent first.
type undoLog struct {
	mu       sync.Mutex
	actions  []UndoAction
	capacity int
}

func newUndoLog(capacity int) *undoLog {
	if capacity <= 0 {
		capacity = DefaultUndoDepth
	}
	return &undoLog{capacity: capacity}
}

func (l *undoLog) push(a UndoAction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
	if len(l.actions) > l.capacity {
		l.actions = l.actions[len(l.actions)-l.capacity:]
	}
}

func (l *undoLog) pop() (UndoAction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.actions) == 0 {
		return UndoAction{}, false
	}
	a := l.actions[len(l.actions)-1]
	l.actions = l.actions[:len(l.actions)-1]
	return a, true
}

func (l *undoLog) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}
