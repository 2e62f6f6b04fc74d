package app

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/beegreen/internal/liveness"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/schedule"
	"github.com/sweeney/beegreen/internal/timeline"
)

// Connect opens the broker session with the stored credentials, subscribes
// to the device topics and asks for the schedule snapshot. A failure leaves
// the device OFFLINE; calling Connect again is the retry.
func (a *App) Connect(ctx context.Context) error {
	var creds mqtt.Credentials
	err := a.do(ctx, func() error {
		if !a.onboarded {
			return ErrNotOnboarded
		}
		creds = a.credentials()
		return nil
	})
	if err != nil {
		return err
	}

	connErr := a.session.Connect(ctx, creds)
	return a.do(ctx, func() error {
		if connErr != nil {
			a.connectFailed(connErr)
			return connErr
		}
		return a.connected()
	})
}

func (a *App) connectFailed(err error) {
	reason := "unknown"
	var ce *mqtt.ConnectError
	if errors.As(err, &ce) {
		reason = string(ce.Reason)
	}
	a.metrics.ConnectFailures.WithLabelValues(reason).Inc()
	a.log.Warnw("connect failed", "reason", reason, "err", err)
	a.timeline.Add(a.now(), "Connection failed", err.Error(), timeline.IconWarning)
	if tr, changed := a.monitor.ConnectionLost(a.now()); changed {
		a.onLiveness(tr)
	}
}

func (a *App) connected() error {
	for _, topic := range a.opts.Topics.Subscriptions() {
		if err := a.session.Subscribe(topic, mqtt.AtLeastOnce); err != nil {
			a.log.Errorw("subscribe failed", "topic", topic, "err", err)
			return err
		}
	}
	a.log.Infow("connected", "server", a.device.MQTTServer)
	a.timeline.Add(a.now(), "Connected", "Broker session established", timeline.IconConnected)

	if err := a.schedules.RequestSnapshot(); err != nil {
		a.log.Warnw("schedule request failed", "err", err)
	} else {
		a.metrics.CommandsPublished.WithLabelValues("snapshot_request").Inc()
	}
	return nil
}

// Disconnect closes the session and cancels any pending safety timer.
func (a *App) Disconnect(ctx context.Context) error {
	return a.do(ctx, func() error {
		a.pump.Disarm()
		a.session.Disconnect()
		if tr, changed := a.monitor.ConnectionLost(a.now()); changed {
			a.onLiveness(tr)
		}
		return nil
	})
}

// TriggerPump starts or stops the pump. A start with run <= 0 uses the
// configured default run time for the safety timer.
func (a *App) TriggerPump(ctx context.Context, start bool, run time.Duration) error {
	return a.do(ctx, func() error {
		if err := a.pump.Trigger(start, run); err != nil {
			return err
		}
		kind, title, icon := "pump_stop", "Stop sent", timeline.IconPowerOff
		if start {
			kind, title, icon = "pump_start", "Start sent", timeline.IconPowerOn
		}
		a.metrics.CommandsPublished.WithLabelValues(kind).Inc()
		a.timeline.Add(a.now(), title, "", icon)
		a.log.Infow("pump command sent", "start", start, "run", run)
		return nil
	})
}

// Schedules returns the cached slots.
func (a *App) Schedules(ctx context.Context) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := a.do(ctx, func() error {
		out = a.schedules.All()
		return nil
	})
	return out, err
}

// ScheduleDraft returns defaults for a new schedule in the first free slot.
func (a *App) ScheduleDraft(ctx context.Context) (schedule.Schedule, error) {
	var d schedule.Schedule
	err := a.do(ctx, func() error {
		var err error
		d, err = a.schedules.NewDraft()
		return err
	})
	return d, err
}

// SaveSchedule sends s to the device. schedule.AutoIndex picks a free slot.
func (a *App) SaveSchedule(ctx context.Context, s schedule.Schedule) (schedule.Schedule, error) {
	var saved schedule.Schedule
	err := a.do(ctx, func() error {
		var err error
		saved, err = a.schedules.Save(s)
		if err != nil {
			return err
		}
		a.metrics.CommandsPublished.WithLabelValues("schedule_save").Inc()
		a.timeline.Add(a.now(), "Schedule saved", saved.Label(), timeline.IconSchedule)
		a.persistSchedules()
		return nil
	})
	return saved, err
}

// DeleteSchedule clears a slot on the device.
func (a *App) DeleteSchedule(ctx context.Context, index int) error {
	return a.do(ctx, func() error {
		if err := a.schedules.Delete(index); err != nil {
			return err
		}
		a.metrics.CommandsPublished.WithLabelValues("schedule_delete").Inc()
		a.timeline.Add(a.now(), "Schedule deleted", schedule.Empty(index).Label(), timeline.IconSchedule)
		a.persistSchedules()
		return nil
	})
}

// FetchSchedules requests a snapshot and waits for the device to answer.
func (a *App) FetchSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	ch := make(chan []schedule.Schedule, 1)
	err := a.do(ctx, func() error {
		if err := a.schedules.RequestSnapshot(); err != nil {
			return err
		}
		a.metrics.CommandsPublished.WithLabelValues("snapshot_request").Inc()
		a.waiters = append(a.waiters, ch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case list := <-ch:
		return list, nil
	case <-a.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeviceState returns the liveness state and, when stale, liveness.ErrStale.
func (a *App) DeviceState(ctx context.Context) (liveness.State, error) {
	var st liveness.State
	var stale error
	err := a.do(ctx, func() error {
		st = a.monitor.State()
		stale = a.monitor.Err()
		return nil
	})
	if err != nil {
		return "", err
	}
	return st, stale
}
