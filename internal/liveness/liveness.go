// Package liveness decides whether the device is online from how recently
// it was heard from. It is pure: time is passed in by the caller.
package liveness

import (
	"errors"
	"time"
)

// State is the derived device presence.
type State string

const (
	StateUnknown State = "UNKNOWN"
	StateOnline  State = "ONLINE"
	StateOffline State = "OFFLINE"
)

// Defaults used when configuration leaves them unset.
const (
	DefaultThreshold     = 60 * time.Second
	DefaultCheckInterval = 5 * time.Second
)

// ErrStale is reported while the device is offline because nothing was
// heard within the threshold.
var ErrStale = errors.New("liveness: device data is stale")

// Cause explains a transition.
type Cause string

const (
	CauseMessage        Cause = "message"
	CauseStale          Cause = "stale"
	CauseConnectionLost Cause = "connection_lost"
)

// Transition is a change of State.
type Transition struct {
	From  State
	To    State
	Cause Cause
	At    time.Time
}

// Monitor tracks the time of the last device message.
// Not safe for concurrent use.
type Monitor struct {
	threshold time.Duration
	state     State
	cause     Cause
	last      time.Time
	heard     bool
}

// New returns a Monitor in StateUnknown. A non-positive threshold selects
// DefaultThreshold.
func New(threshold time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{threshold: threshold, state: StateUnknown}
}

// Threshold returns the staleness threshold.
func (m *Monitor) Threshold() time.Duration { return m.threshold }

// State returns the current state.
func (m *Monitor) State() State { return m.state }

// LastHeard returns the time of the last qualifying message.
func (m *Monitor) LastHeard() (time.Time, bool) { return m.last, m.heard }

// Observe records a qualifying message received at now. The device goes
// ONLINE immediately.
func (m *Monitor) Observe(now time.Time) (Transition, bool) {
	if !m.heard || now.After(m.last) {
		m.last = now
	}
	m.heard = true
	return m.move(StateOnline, CauseMessage, now)
}

// Check evaluates staleness at now. ONLINE holds while now-last < threshold.
// Before any message has been heard the state stays UNKNOWN.
func (m *Monitor) Check(now time.Time) (Transition, bool) {
	if !m.heard {
		return Transition{}, false
	}
	if now.Sub(m.last) >= m.threshold {
		return m.move(StateOffline, CauseStale, now)
	}
	return Transition{}, false
}

// ConnectionLost marks the device OFFLINE because the broker session dropped.
func (m *Monitor) ConnectionLost(now time.Time) (Transition, bool) {
	return m.move(StateOffline, CauseConnectionLost, now)
}

// Err returns ErrStale when OFFLINE through staleness, otherwise nil.
func (m *Monitor) Err() error {
	if m.state == StateOffline && m.cause == CauseStale {
		return ErrStale
	}
	return nil
}

func (m *Monitor) move(to State, cause Cause, now time.Time) (Transition, bool) {
	if m.state == to {
		return Transition{}, false
	}
	tr := Transition{From: m.state, To: to, Cause: cause, At: now}
	m.state = to
	m.cause = cause
	return tr, true
}
