// Package pump issues start/stop commands to the device and keeps the
// client's view of the pump state.
//
// A start command arms a safety timer. If the device has not reported its
// status by the time the run should be over, the controller marks the pump
// OFF and publishes an explicit stop. Each arm bumps a generation counter;
// a timer callback whose generation is no longer current does nothing, so
// at most one timer is ever effective.
package pump

import (
	"fmt"
	"time"

	"github.com/sweeney/beegreen/internal/clock"
	"github.com/sweeney/beegreen/internal/mqtt"
)

// Status is the pump's on/off state.
type Status string

const (
	StatusOff Status = "OFF"
	StatusOn  Status = "ON"
)

// DefaultRun is the safety window for a start without an explicit duration.
const DefaultRun = 15 * time.Minute

// Cause explains a state change.
type Cause string

const (
	CauseCommand Cause = "command"
	CauseDevice  Cause = "device"
	CauseSafety  Cause = "safety_timeout"
)

// State is the client's view of the pump.
type State struct {
	Status        Status
	LastCommandAt time.Time
	LastReportAt  time.Time
}

// Transition is delivered to the observer on every change of Status, and on
// safety timeouts.
type Transition struct {
	From  Status
	To    Status
	Cause Cause
	At    time.Time
	// Err is the result of the stop publish for CauseSafety.
	Err error
}

// Options configure a Controller.
type Options struct {
	Topic      string
	Format     CommandFormat
	DefaultRun time.Duration
	QoS        byte
}

// Controller owns the pump state. It must only be used from one goroutine;
// the clock's timer callbacks must be delivered on that same goroutine.
type Controller struct {
	pub   mqtt.Publisher
	clock clock.Clock
	opts  Options

	state State

	timer clock.Timer
	gen   uint64
	armed bool

	observer func(Transition)
}

// NewController returns a Controller with the pump OFF.
func NewController(pub mqtt.Publisher, clk clock.Clock, opts Options) *Controller {
	if opts.Format == "" {
		opts.Format = FormatFlag
	}
	if opts.DefaultRun <= 0 {
		opts.DefaultRun = DefaultRun
	}
	if opts.QoS < mqtt.AtLeastOnce {
		opts.QoS = mqtt.AtLeastOnce
	}
	return &Controller{
		pub:   pub,
		clock: clk,
		opts:  opts,
		state: State{Status: StatusOff},
	}
}

// SetObserver installs a callback for transitions.
func (c *Controller) SetObserver(fn func(Transition)) { c.observer = fn }

// State returns the current state.
func (c *Controller) State() State { return c.state }

// SafetyArmed reports whether a safety timer is pending.
func (c *Controller) SafetyArmed() bool { return c.armed }

// Restore seeds the state from a cached value without publishing.
func (c *Controller) Restore(s State) {
	if s.Status == "" {
		s.Status = StatusOff
	}
	c.state = s
}

// Trigger publishes a start or stop command. A start with run <= 0 uses the
// default run time for the safety timer. On success the local state is
// updated optimistically; on failure it is left untouched.
func (c *Controller) Trigger(start bool, run time.Duration) error {
	if !c.pub.IsConnected() {
		return mqtt.ErrNotConnected
	}
	if run <= 0 {
		run = c.opts.DefaultRun
	}
	payload := EncodeTrigger(c.opts.Format, start, run)
	if err := c.pub.Publish(c.opts.Topic, payload, c.opts.QoS); err != nil {
		return fmt.Errorf("trigger pump: %w", err)
	}

	now := c.clock.Now()
	c.state.LastCommandAt = now
	if start {
		c.arm(run)
		c.set(StatusOn, CauseCommand, now, nil)
	} else {
		c.disarm()
		c.set(StatusOff, CauseCommand, now, nil)
	}
	return nil
}

// HandleStatus applies a device status report. The device is authoritative:
// its status replaces the local one, and a pending safety timer is
// cancelled since the device has either acknowledged the run or already
// stopped. Repeating the same report changes nothing.
func (c *Controller) HandleStatus(payload []byte) (Report, error) {
	r, err := DecodeStatus(payload)
	if err != nil {
		return Report{}, err
	}
	now := c.clock.Now()
	c.state.LastReportAt = now
	c.disarm()
	c.set(r.Status, CauseDevice, now, nil)
	return r, nil
}

// Disarm cancels any pending safety timer. Called on teardown.
func (c *Controller) Disarm() { c.disarm() }

func (c *Controller) arm(d time.Duration) {
	c.disarm()
	gen := c.gen
	c.armed = true
	c.timer = c.clock.AfterFunc(d, func() { c.fire(gen) })
}

func (c *Controller) disarm() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.armed = false
}

func (c *Controller) fire(gen uint64) {
	if gen != c.gen || !c.armed {
		return
	}
	c.armed = false
	c.timer = nil

	err := c.pub.Publish(c.opts.Topic, EncodeTrigger(c.opts.Format, false, 0), c.opts.QoS)
	if err != nil {
		err = fmt.Errorf("safety stop: %w", err)
	}
	now := c.clock.Now()
	from := c.state.Status
	c.state.Status = StatusOff
	c.notify(Transition{From: from, To: StatusOff, Cause: CauseSafety, At: now, Err: err})
}

func (c *Controller) set(to Status, cause Cause, now time.Time, err error) {
	from := c.state.Status
	if from == to {
		return
	}
	c.state.Status = to
	c.notify(Transition{From: from, To: to, Cause: cause, At: now, Err: err})
}

func (c *Controller) notify(tr Transition) {
	if c.observer != nil {
		c.observer(tr)
	}
}
