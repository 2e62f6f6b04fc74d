package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/beegreen/internal/schedule"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Device        DeviceJSON     `json:"device"`
	Pump          PumpJSON       `json:"pump"`
	Schedules     []ScheduleJSON `json:"schedules"`
	NextRun       *ScheduleJSON  `json:"next_run,omitempty"`
	Onboarded     bool           `json:"onboarded"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Config        ConfigJSON     `json:"config"`
}

// DeviceJSON reports liveness.
type DeviceJSON struct {
	State           string `json:"state"`
	Stale           bool   `json:"stale"`
	LastHeard       string `json:"last_heard,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// PumpJSON reports the pump.
type PumpJSON struct {
	State       string `json:"state"`
	LastCommand string `json:"last_command,omitempty"`
	LastReport  string `json:"last_report,omitempty"`
	SafetyArmed bool   `json:"safety_armed"`
}

// ScheduleJSON is one slot.
type ScheduleJSON struct {
	Index           int    `json:"index"`
	Time            string `json:"time"`
	DurationSeconds int    `json:"duration_seconds"`
	Days            string `json:"days"`
	DaysMask        int    `json:"days_mask"`
	Enabled         bool   `json:"enabled"`
	NextRun         string `json:"next_run,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of client settings.
type ConfigJSON struct {
	ThresholdSeconds     int64  `json:"threshold_seconds"`
	CheckIntervalSeconds int64  `json:"check_interval_seconds"`
	CommandFormat        string `json:"command_format"`
	HTTPAddr             string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func scheduleJSON(s schedule.Schedule, now time.Time) ScheduleJSON {
	sj := ScheduleJSON{
		Index:           s.Index,
		Time:            s.Clock(),
		DurationSeconds: s.DurationSeconds,
		Days:            s.Days.String(),
		DaysMask:        int(s.Days),
		Enabled:         s.Enabled,
	}
	if next, ok := s.Next(now); ok {
		sj.NextRun = formatTime(next)
	}
	return sj
}

// Build converts a snapshot to its JSON structure. Only enabled schedules
// are listed.
func Build(snap Snapshot) StatusInner {
	state := string(snap.Device.State)
	if state == "" {
		state = "UNKNOWN"
	}
	inner := StatusInner{
		Device: DeviceJSON{
			State:           state,
			Stale:           snap.Device.Stale,
			LastHeard:       formatTime(snap.Device.LastHeard),
			FirmwareVersion: snap.Device.FirmwareVersion,
		},
		Pump: PumpJSON{
			State:       string(snap.Pump.Status),
			LastCommand: formatTime(snap.Pump.LastCommandAt),
			LastReport:  formatTime(snap.Pump.LastReportAt),
			SafetyArmed: snap.SafetyArmed,
		},
		Schedules:     []ScheduleJSON{},
		Onboarded:     snap.Onboarded,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		MQTT:          MQTTStatus{Connected: snap.Connected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			ThresholdSeconds:     int64(snap.Config.Threshold / time.Second),
			CheckIntervalSeconds: int64(snap.Config.CheckInterval / time.Second),
			CommandFormat:        snap.Config.CommandFormat,
			HTTPAddr:             snap.Config.HTTPAddr,
		},
	}
	for _, s := range snap.Schedules {
		if s.Enabled {
			inner.Schedules = append(inner.Schedules, scheduleJSON(s, snap.Now))
		}
	}
	if s, _, ok := schedule.Upcoming(snap.Schedules, snap.Now); ok {
		sj := scheduleJSON(s, snap.Now)
		inner.NextRun = &sj
	}
	return inner
}

// FormatJSON returns the indented JSON status.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Build(snap)}, "", "  ")
	return data
}
