// Package app wires the transport, liveness monitor, pump controller and
// schedule registry together around a single event loop.
//
// All mutable client state is owned by the goroutine running Run. Timer fires
// and API calls are turned into closures and queued onto that loop, so the
// core components never see concurrent access. Inbound device messages go
// through a per-topic inbox instead: the newest message of each kind is kept
// until the loop drains it, so a busy loop never loses the latest status.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/beegreen/internal/clock"
	"github.com/sweeney/beegreen/internal/liveness"
	"github.com/sweeney/beegreen/internal/logger"
	"github.com/sweeney/beegreen/internal/metrics"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/pump"
	"github.com/sweeney/beegreen/internal/schedule"
	"github.com/sweeney/beegreen/internal/status"
	"github.com/sweeney/beegreen/internal/store"
	"github.com/sweeney/beegreen/internal/timeline"
)

var (
	// ErrNotOnboarded is returned by Connect when no device is configured.
	ErrNotOnboarded = errors.New("no device onboarded")
	// ErrStopped is returned for calls made after the loop has exited.
	ErrStopped = errors.New("client stopped")
)

const (
	eventQueueSize     = 64
	timelineViewSize   = 50
	defaultRecentCount = 20
)

// Options are the operational settings.
type Options struct {
	Topics         mqtt.Topics
	Transport      string
	Threshold      time.Duration
	CommandFormat  pump.CommandFormat
	DefaultRun     time.Duration
	RecentMessages int
}

// Deps are the collaborators. Metrics and Tracker may be nil.
type Deps struct {
	Session mqtt.Session
	Store   store.Store
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Tracker *status.Tracker
	Log     *logger.Logger
}

// App is the client.
type App struct {
	opts     Options
	log      *logger.Logger
	session  mqtt.Session
	store    store.Store
	clock    clock.Clock
	metrics  *metrics.Metrics
	tracker  *status.Tracker
	timeline *timeline.Log
	recorder *mqtt.Recorder

	monitor   *liveness.Monitor
	pump      *pump.Controller
	schedules *schedule.Registry

	device    store.DeviceConfig
	onboarded bool
	firmware  string
	waiters   []chan []schedule.Schedule

	inboxMu  sync.Mutex
	inbox    map[mqtt.Role]inbound
	inboxSeq uint64
	wake     chan struct{}

	events chan func()
	done   chan struct{}
}

// loopClock delivers timer callbacks onto the event loop.
type loopClock struct {
	base clock.Clock
	post func(func())
}

func (c loopClock) Now() time.Time { return c.base.Now() }

func (c loopClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return c.base.AfterFunc(d, func() { c.post(f) })
}

// New builds the client and restores cached state from the store.
func New(opts Options, deps Deps) (*App, error) {
	if err := opts.Topics.Validate(); err != nil {
		return nil, err
	}
	if opts.RecentMessages <= 0 {
		opts.RecentMessages = defaultRecentCount
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Tracker == nil {
		deps.Tracker = status.NewTracker(deps.Clock.Now(), status.Config{})
	}
	deps.Tracker.SetClock(deps.Clock.Now)

	a := &App{
		opts:     opts,
		log:      deps.Log.Named("app"),
		session:  deps.Session,
		store:    deps.Store,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		tracker:  deps.Tracker,
		timeline: timeline.New(),
		recorder: mqtt.NewRecorder(opts.RecentMessages),
		monitor:  liveness.New(opts.Threshold),
		inbox:    make(map[mqtt.Role]inbound),
		wake:     make(chan struct{}, 1),
		events:   make(chan func(), eventQueueSize),
		done:     make(chan struct{}),
	}
	a.pump = pump.NewController(a.session, loopClock{base: deps.Clock, post: a.post}, pump.Options{
		Topic:      opts.Topics.PumpTrigger,
		Format:     opts.CommandFormat,
		DefaultRun: opts.DefaultRun,
	})
	a.pump.SetObserver(a.onPumpTransition)
	a.schedules = schedule.NewRegistry(a.session, opts.Topics.SetSchedule, opts.Topics.GetSchedules)

	a.session.SetHandlers(mqtt.Handlers{
		OnMessage:        a.onMessage,
		OnConnectionLost: a.onConnectionLost,
	})

	a.restore()
	a.publishState()
	return a, nil
}

// restore loads the cached device record and schedules. Unreadable slots are
// logged and treated as empty; onboard or forget rewrites them.
func (a *App) restore() {
	cfg, ok, err := store.LoadDeviceConfig(a.store)
	if err != nil {
		a.log.Warnw("device config unreadable, treating device as not onboarded", "err", err)
	} else if ok {
		a.device = cfg
		a.onboarded = cfg.DeviceAdded
		if url, err := a.credentials().BrokerURL(); err == nil {
			a.tracker.SetBroker(url)
		}
		if cfg.LastPump != nil {
			st := pump.State{Status: pump.StatusOff, LastReportAt: cfg.LastPump.UpdatedAt}
			if cfg.LastPump.On {
				st.Status = pump.StatusOn
			}
			a.pump.Restore(st)
		}
	}

	var cached []schedule.Schedule
	if _, err := a.store.Get(store.KeySchedules, &cached); err != nil {
		a.log.Warnw("schedule cache unreadable, starting empty", "err", err)
	} else if n := a.schedules.Load(cached); n > 0 {
		a.log.Debugw("schedule cache loaded", "slots", n)
	}
}

func (a *App) credentials() mqtt.Credentials {
	return mqtt.Credentials{
		Server:    a.device.MQTTServer,
		Port:      a.device.MQTTPort,
		Username:  a.device.MQTTUser,
		Password:  a.device.MQTTPassword,
		Transport: a.opts.Transport,
	}
}

// Run processes events until ctx is done. tick drives liveness checks.
// On return the safety timer is disarmed and the session closed.
func (a *App) Run(ctx context.Context, tick <-chan time.Time) error {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.teardown()
			return nil
		case fn := <-a.events:
			a.drainInbox()
			fn()
		case <-a.wake:
			a.drainInbox()
		case <-tick:
			a.drainInbox()
			a.checkLiveness()
		}
		a.publishState()
	}
}

func (a *App) teardown() {
	a.pump.Disarm()
	a.session.Disconnect()
	a.tracker.SetConnected(false)
	a.log.Infow("stopped")
}

// post queues fn onto the loop, blocking until accepted or the loop exits.
func (a *App) post(fn func()) {
	select {
	case a.events <- fn:
	case <-a.done:
	}
}

// do runs fn on the loop and waits for its result.
func (a *App) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case a.events <- func() { errc <- fn() }:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) now() time.Time { return a.clock.Now() }

func (a *App) publishState() {
	lastHeard, _ := a.monitor.LastHeard()
	a.tracker.SetConnected(a.session.IsConnected())
	a.tracker.SetOnboarded(a.onboarded)
	a.tracker.SetDevice(status.Device{
		State:           a.monitor.State(),
		Stale:           errors.Is(a.monitor.Err(), liveness.ErrStale),
		LastHeard:       lastHeard,
		FirmwareVersion: a.firmware,
	})
	a.tracker.SetPump(a.pump.State(), a.pump.SafetyArmed())
	a.tracker.SetSchedules(a.schedules.All())
	a.tracker.SetTimeline(a.timeline.Latest(timelineViewSize))
	a.tracker.SetRecent(a.recorder.Recent())
}

// Timeline returns every event of this session, oldest first.
func (a *App) Timeline() []timeline.Event {
	return a.timeline.Events()
}

// State waits for already queued events and delivered messages to be processed and returns the
// current view.
func (a *App) State(ctx context.Context) (status.Snapshot, error) {
	if err := a.do(ctx, func() error { a.publishState(); return nil }); err != nil {
		return status.Snapshot{}, err
	}
	return a.tracker.Snapshot(), nil
}
