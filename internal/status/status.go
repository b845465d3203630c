package status

import (
	"sync"
	"time"
)

// Status is a point in time view of the worker.
type Status struct {
	Ready     bool       `json:"ready"`
	Message   string     `json:"message"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Cycles    int        `json:"cycles"`
	Failures  int        `json:"failures"`
}

// Tracker records worker progress for the status endpoints.
type Tracker struct {
	mu sync.RWMutex
	s  Status
}

func NewTracker() *Tracker {
	return &Tracker{s: Status{Message: "Starting up"}}
}

func (t *Tracker) SetMessage(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Message = msg
}

// MarkReady flags the portfolio and history as available.
func (t *Tracker) MarkReady(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Ready = true
	t.s.Message = msg
	t.s.LastError = ""
}

// Fail records an error without changing readiness.
func (t *Tracker) Fail(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastError = err.Error()
	t.s.Failures++
}

// RecordCycle stores the outcome of one worker cycle.
func (t *Tracker) RecordCycle(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Cycles++
	t.s.LastCycle = &at
	if err != nil {
		t.s.LastError = err.Error()
		t.s.Failures++
		return
	}
	t.s.LastError = ""
}

func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.s
	if s.LastCycle != nil {
		at := *s.LastCycle
		s.LastCycle = &at
	}
	return s
}

func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s.Ready
}
