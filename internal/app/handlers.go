package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sweeney/beegreen/internal/liveness"
	"github.com/sweeney/beegreen/internal/metrics"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/pump"
	"github.com/sweeney/beegreen/internal/store"
	"github.com/sweeney/beegreen/internal/timeline"
)

// inbound is a device message waiting for the loop.
type inbound struct {
	seq     uint64
	topic   string
	payload []byte
	at      time.Time
}

// onMessage runs on the transport goroutine and must not block it. The
// message replaces any undrained one of the same role.
func (a *App) onMessage(topic string, payload []byte) {
	role := a.opts.Topics.Role(topic)
	msg := inbound{topic: topic, payload: append([]byte(nil), payload...), at: a.now()}

	a.inboxMu.Lock()
	a.inboxSeq++
	msg.seq = a.inboxSeq
	a.inbox[role] = msg
	a.inboxMu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// drainInbox handles the pending messages in arrival order.
func (a *App) drainInbox() {
	a.inboxMu.Lock()
	if len(a.inbox) == 0 {
		a.inboxMu.Unlock()
		return
	}
	msgs := make([]inbound, 0, len(a.inbox))
	for _, m := range a.inbox {
		msgs = append(msgs, m)
	}
	clear(a.inbox)
	a.inboxMu.Unlock()

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].seq < msgs[j].seq })
	for _, m := range msgs {
		a.handleMessage(m.topic, m.payload, m.at)
	}
}

func (a *App) onConnectionLost(err error) {
	a.post(func() { a.handleConnectionLost(err) })
}

func (a *App) handleMessage(topic string, payload []byte, at time.Time) {
	role := a.opts.Topics.Role(topic)
	a.recorder.Record(at, topic, payload)
	a.metrics.MessagesReceived.WithLabelValues(role.String()).Inc()

	switch role {
	case mqtt.RoleHeartbeat:
		a.handleHeartbeat(payload, at)
	case mqtt.RolePumpStatus:
		a.observe(at)
		a.handlePumpStatus(payload)
	case mqtt.RoleSchedules:
		a.handleSnapshot(payload)
	default:
		a.log.Debugw("message on unexpected topic", "topic", topic)
	}
}

func (a *App) handleHeartbeat(payload []byte, at time.Time) {
	if len(bytes.TrimSpace(payload)) == 0 {
		a.log.Debugw("empty heartbeat ignored")
		return
	}
	a.observe(at)
	if v := firmwareVersion(payload); v != "" && v != a.firmware {
		a.firmware = v
		a.log.Infow("device firmware", "version", v)
	}
}

func (a *App) observe(at time.Time) {
	if tr, changed := a.monitor.Observe(at); changed {
		a.onLiveness(tr)
	}
}

func (a *App) checkLiveness() {
	if tr, changed := a.monitor.Check(a.now()); changed {
		a.onLiveness(tr)
	}
}

func (a *App) onLiveness(tr liveness.Transition) {
	online := tr.To == liveness.StateOnline
	metrics.SetBool(a.metrics.DeviceOnline, online)
	a.log.Infow("device state changed", "from", tr.From, "to", tr.To, "cause", tr.Cause)

	if online {
		a.timeline.Add(tr.At, "Device Online", "Device is reporting", timeline.IconOnline)
		return
	}
	desc := "Broker connection lost"
	if tr.Cause == liveness.CauseStale {
		desc = fmt.Sprintf("Nothing heard for %v", a.monitor.Threshold())
	}
	a.timeline.Add(tr.At, "Device Offline", desc, timeline.IconOffline)
}

func (a *App) handlePumpStatus(payload []byte) {
	r, err := a.pump.HandleStatus(payload)
	if err != nil {
		a.malformed(mqtt.RolePumpStatus, payload, err)
		return
	}
	title, icon := "Pump off", timeline.IconPowerOff
	if r.Status == pump.StatusOn {
		title, icon = "Pump on", timeline.IconPowerOn
	}
	at := r.Timestamp
	desc := ""
	if at.IsZero() {
		at = a.now()
	} else {
		desc = "Device time " + at.Format(time.RFC3339)
	}
	a.timeline.Add(at, title, desc, icon)
}

func (a *App) onPumpTransition(tr pump.Transition) {
	metrics.SetBool(a.metrics.PumpOn, tr.To == pump.StatusOn)
	a.persistPump()

	if tr.Cause != pump.CauseSafety {
		return
	}
	a.metrics.SafetyStops.Inc()
	desc := "No status from device; stop sent"
	if tr.Err != nil {
		desc = "No status from device; stop not delivered: " + tr.Err.Error()
		a.log.Warnw("safety stop not delivered", "err", tr.Err)
	} else {
		a.metrics.CommandsPublished.WithLabelValues("safety_stop").Inc()
		a.log.Warnw("safety timer expired, pump stopped")
	}
	a.timeline.Add(tr.At, "Safety stop", desc, timeline.IconWarning)
}

func (a *App) handleSnapshot(payload []byte) {
	list, err := a.schedules.ApplySnapshot(payload)
	if err != nil {
		a.malformed(mqtt.RoleSchedules, payload, err)
		return
	}
	a.persistSchedules()
	enabled := len(a.schedules.Enabled())
	a.timeline.Add(a.now(), "Schedules synced", fmt.Sprintf("%d active", enabled), timeline.IconSchedule)
	a.log.Infow("schedule snapshot applied", "enabled", enabled)

	for _, ch := range a.waiters {
		ch <- list
	}
	a.waiters = nil
}

func (a *App) handleConnectionLost(err error) {
	a.metrics.ConnectionsLost.Inc()
	a.log.Warnw("broker connection lost", "err", err)
	if tr, changed := a.monitor.ConnectionLost(a.now()); changed {
		a.onLiveness(tr)
	}
}

func (a *App) malformed(role mqtt.Role, payload []byte, err error) {
	a.metrics.MalformedPayloads.WithLabelValues(role.String()).Inc()
	a.log.Warnw("dropping malformed payload", "role", role.String(), "payload", truncate(payload, 128), "err", err)
}

func (a *App) persistPump() {
	if !a.onboarded {
		return
	}
	st := a.pump.State()
	a.device.LastPump = &store.PumpCache{On: st.Status == pump.StatusOn, UpdatedAt: a.now()}
	if err := store.SaveDeviceConfig(a.store, a.device); err != nil {
		a.log.Warnw("pump state not saved", "err", err)
	}
}

func (a *App) persistSchedules() {
	if err := a.store.Set(store.KeySchedules, a.schedules.All()); err != nil {
		a.log.Warnw("schedule cache not saved", "err", err)
	}
}

// firmwareVersion extracts the version from a JSON heartbeat.
func firmwareVersion(payload []byte) string {
	p := bytes.TrimSpace(payload)
	if len(p) == 0 || p[0] != '{' {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return ""
	}
	for _, k := range []string{"firmwareVersion", "firmware_version", "version", "fw"} {
		switch v := m[k].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
