// Package status provides a thread-safe read model of the client for the
// status page and the CLI.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/beegreen/internal/liveness"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/pump"
	"github.com/sweeney/beegreen/internal/schedule"
	"github.com/sweeney/beegreen/internal/timeline"
)

// Config contains settings shown on the status page.
type Config struct {
	Broker        string
	HTTPAddr      string
	Threshold     time.Duration
	CheckInterval time.Duration
	CommandFormat string
}

// Device is what the client knows about the device itself.
type Device struct {
	State           liveness.State
	Stale           bool
	LastHeard       time.Time
	FirmwareVersion string
}

// Snapshot is a point-in-time view of client state.
// It is a value type; slices are copies.
type Snapshot struct {
	StartTime   time.Time
	Now         time.Time
	Connected   bool
	Onboarded   bool
	Device      Device
	Pump        pump.State
	SafetyArmed bool
	Schedules   []schedule.Schedule
	Timeline    []timeline.Event
	Recent      []mqtt.Received
	Config      Config
}

// Uptime returns the duration since the client started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable client state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Device:    Device{State: liveness.StateUnknown},
			Pump:      pump.State{Status: pump.StatusOff},
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used for Snapshot.Now.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// SetConnected sets the broker session status.
func (t *Tracker) SetConnected(connected bool) {
	t.mu.Lock()
	t.snap.Connected = connected
	t.mu.Unlock()
}

// SetOnboarded records whether a device config exists.
func (t *Tracker) SetOnboarded(v bool) {
	t.mu.Lock()
	t.snap.Onboarded = v
	t.mu.Unlock()
}

// SetBroker updates the broker URL shown on the page.
func (t *Tracker) SetBroker(broker string) {
	t.mu.Lock()
	t.snap.Config.Broker = broker
	t.mu.Unlock()
}

// SetDevice sets liveness details. An empty firmware version keeps the
// previous one.
func (t *Tracker) SetDevice(d Device) {
	t.mu.Lock()
	if d.FirmwareVersion == "" {
		d.FirmwareVersion = t.snap.Device.FirmwareVersion
	}
	t.snap.Device = d
	t.mu.Unlock()
}

// SetPump sets the pump state.
func (t *Tracker) SetPump(st pump.State, safetyArmed bool) {
	t.mu.Lock()
	t.snap.Pump = st
	t.snap.SafetyArmed = safetyArmed
	t.mu.Unlock()
}

// SetSchedules replaces the schedule list.
func (t *Tracker) SetSchedules(list []schedule.Schedule) {
	cp := append([]schedule.Schedule(nil), list...)
	t.mu.Lock()
	t.snap.Schedules = cp
	t.mu.Unlock()
}

// SetTimeline replaces the timeline view.
func (t *Tracker) SetTimeline(events []timeline.Event) {
	cp := append([]timeline.Event(nil), events...)
	t.mu.Lock()
	t.snap.Timeline = cp
	t.mu.Unlock()
}

// SetRecent replaces the recent inbound messages.
func (t *Tracker) SetRecent(msgs []mqtt.Received) {
	cp := append([]mqtt.Received(nil), msgs...)
	t.mu.Lock()
	t.snap.Recent = cp
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the client state.
// The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Schedules = append([]schedule.Schedule(nil), t.snap.Schedules...)
	s.Timeline = append([]timeline.Event(nil), t.snap.Timeline...)
	s.Recent = append([]mqtt.Received(nil), t.snap.Recent...)
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
