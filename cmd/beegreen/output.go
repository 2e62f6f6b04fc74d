package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sweeney/beegreen/internal/schedule"
	"github.com/sweeney/beegreen/internal/status"
	"github.com/sweeney/beegreen/internal/store"
	"github.com/sweeney/beegreen/internal/timeline"
)

const stampLayout = "2006-01-02 15:04:05"

func stamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(stampLayout)
}

func printDevice(w io.Writer, c store.DeviceConfig) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Server\t%s\n", c.MQTTServer)
	fmt.Fprintf(tw, "Port\t%d\n", c.MQTTPort)
	fmt.Fprintf(tw, "User\t%s\n", c.MQTTUser)
	fmt.Fprintf(tw, "Password\t%s\n", c.MaskedPassword())
	if c.WiFiSSID != "" {
		fmt.Fprintf(tw, "WiFi\t%s\n", c.WiFiSSID)
	}
	fmt.Fprintf(tw, "Onboarded\t%v\n", c.DeviceAdded)
	tw.Flush()
}

func printStatus(w io.Writer, snap status.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	device := string(snap.Device.State)
	if snap.Device.Stale {
		device += " (stale)"
	}
	fmt.Fprintf(tw, "Device\t%s\n", device)
	fmt.Fprintf(tw, "Last heard\t%s\n", stamp(snap.Device.LastHeard))
	if snap.Device.FirmwareVersion != "" {
		fmt.Fprintf(tw, "Firmware\t%s\n", snap.Device.FirmwareVersion)
	}
	fmt.Fprintf(tw, "Pump\t%s\n", snap.Pump.Status)
	fmt.Fprintf(tw, "Broker\t%s\n", snap.Config.Broker)
	if s, at, ok := schedule.Upcoming(snap.Schedules, snap.Now); ok {
		fmt.Fprintf(tw, "Next run\t%s at %s\n", s.Label(), stamp(at))
	}
	tw.Flush()
}

func printSchedules(w io.Writer, slots []schedule.Schedule, all bool, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tTIME\tDURATION\tDAYS\tENABLED\tNEXT")
	shown := 0
	for _, s := range slots {
		if !s.Enabled && !all {
			continue
		}
		next := "-"
		if at, ok := s.Next(now); ok {
			next = stamp(at)
		}
		fmt.Fprintf(tw, "#%d\t%s\t%v\t%s\t%v\t%s\n", s.Index+1, s.Clock(), s.Duration(), s.Days, s.Enabled, next)
		shown++
	}
	tw.Flush()
	if shown == 0 {
		fmt.Fprintln(w, "no active schedules")
	}
}

func printTimeline(w io.Writer, events []timeline.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", stamp(e.Timestamp), e.Title, e.Description)
	}
	tw.Flush()
}
