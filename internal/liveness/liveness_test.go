package liveness

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestStartsUnknown(t *testing.T) {
	m := New(0)
	if m.State() != StateUnknown {
		t.Errorf("initial state: got %s, want UNKNOWN", m.State())
	}
	if m.Threshold() != DefaultThreshold {
		t.Errorf("threshold: got %v, want %v", m.Threshold(), DefaultThreshold)
	}
	// Nothing heard, nothing to go stale.
	if _, changed := m.Check(t0.Add(time.Hour)); changed {
		t.Error("Check before any message should not transition")
	}
	if m.State() != StateUnknown {
		t.Errorf("state after Check: got %s, want UNKNOWN", m.State())
	}
}

func TestObserveGoesOnline(t *testing.T) {
	m := New(10 * time.Second)
	tr, changed := m.Observe(t0)
	if !changed {
		t.Fatal("first message should transition")
	}
	if tr.From != StateUnknown || tr.To != StateOnline || tr.Cause != CauseMessage {
		t.Errorf("transition: got %+v", tr)
	}
	if _, changed := m.Observe(t0.Add(time.Second)); changed {
		t.Error("second message should not transition")
	}
}

func TestThresholdBoundary(t *testing.T) {
	const T = 10 * time.Second
	tests := []struct {
		elapsed time.Duration
		want    State
	}{
		{0, StateOnline},
		{T - time.Millisecond, StateOnline},
		{T, StateOffline},
		{T + time.Second, StateOffline},
	}
	for _, tt := range tests {
		m := New(T)
		m.Observe(t0)
		m.Check(t0.Add(tt.elapsed))
		if m.State() != tt.want {
			t.Errorf("elapsed %v: got %s, want %s", tt.elapsed, m.State(), tt.want)
		}
	}
}

func TestStaleThenRecover(t *testing.T) {
	m := New(10 * time.Second)
	m.Observe(t0)

	tr, changed := m.Check(t0.Add(15 * time.Second))
	if !changed || tr.To != StateOffline || tr.Cause != CauseStale {
		t.Fatalf("stale check: changed=%v tr=%+v", changed, tr)
	}
	if !errors.Is(m.Err(), ErrStale) {
		t.Errorf("Err: got %v, want ErrStale", m.Err())
	}
	if _, changed := m.Check(t0.Add(20 * time.Second)); changed {
		t.Error("repeated stale check should not transition")
	}

	tr, changed = m.Observe(t0.Add(21 * time.Second))
	if !changed || tr.From != StateOffline || tr.To != StateOnline {
		t.Errorf("recovery: changed=%v tr=%+v", changed, tr)
	}
	if m.Err() != nil {
		t.Errorf("Err after recovery: got %v", m.Err())
	}
}

func TestConnectionLost(t *testing.T) {
	m := New(time.Minute)
	m.Observe(t0)
	tr, changed := m.ConnectionLost(t0.Add(time.Second))
	if !changed || tr.To != StateOffline || tr.Cause != CauseConnectionLost {
		t.Errorf("got changed=%v tr=%+v", changed, tr)
	}
	if m.Err() != nil {
		t.Errorf("connection loss is not staleness: got %v", m.Err())
	}
}

func TestConnectionLostBeforeAnyMessage(t *testing.T) {
	m := New(time.Minute)
	if _, changed := m.ConnectionLost(t0); !changed {
		t.Error("UNKNOWN -> OFFLINE on connection loss should transition")
	}
	if m.State() != StateOffline {
		t.Errorf("state: got %s", m.State())
	}
}

func TestOutOfOrderObserveKeepsLatest(t *testing.T) {
	m := New(10 * time.Second)
	m.Observe(t0.Add(5 * time.Second))
	m.Observe(t0)
	last, ok := m.LastHeard()
	if !ok || !last.Equal(t0.Add(5*time.Second)) {
		t.Errorf("LastHeard: got %v %v", last, ok)
	}
}

// Across any interleaving of messages and checks the state is ONLINE only
// when the last message is younger than the threshold.
func TestNoFalseOnline(t *testing.T) {
	const T = 7 * time.Second
	m := New(T)
	var last time.Time
	heard := false
	now := t0
	for i := 0; i < 200; i++ {
		now = now.Add(time.Duration(i%5+1) * time.Second)
		if i%9 == 0 || i%13 == 0 {
			m.Observe(now)
			last, heard = now, true
		}
		m.Check(now)
		if m.State() == StateOnline && (!heard || now.Sub(last) >= T) {
			t.Fatalf("step %d: ONLINE with last message %v ago", i, now.Sub(last))
		}
	}
}
