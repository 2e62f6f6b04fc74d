package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/beegreen/internal/config"
	"github.com/sweeney/beegreen/internal/liveness"
	"github.com/sweeney/beegreen/internal/pump"
	"github.com/sweeney/beegreen/internal/schedule"
	"github.com/sweeney/beegreen/internal/status"
)

func newStatusCmd(opts *options) *cobra.Command {
	var wait time.Duration
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Connect, wait for the device to report and print its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDevice(cmd.Context(), func(ctx context.Context, c *client, cfg config.Config) error {
				snap, _, err := waitFor(ctx, c.app, wait, func(s status.Snapshot) bool {
					return s.Device.State == liveness.StateOnline
				})
				if err != nil {
					return err
				}
				if asJSON {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", status.FormatJSON(snap))
					return nil
				}
				printStatus(cmd.OutOrStdout(), snap)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for a message from the device")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func newPumpCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pump",
		Short: "Start or stop the pump",
	}
	var run, wait time.Duration
	start := &cobra.Command{
		Use:   "start",
		Short: "Start the pump",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.trigger(cmd, true, run, wait)
		},
	}
	start.Flags().DurationVarP(&run, "duration", "d", 0, "Run time (default pump.default_run)")
	start.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the device to confirm")

	var stopWait time.Duration
	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the pump",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.trigger(cmd, false, 0, stopWait)
		},
	}
	stop.Flags().DurationVar(&stopWait, "wait", 5*time.Second, "How long to wait for the device to confirm")

	cmd.AddCommand(start, stop)
	return cmd
}

func (o *options) trigger(cmd *cobra.Command, start bool, run, wait time.Duration) error {
	return o.withDevice(cmd.Context(), func(ctx context.Context, c *client, cfg config.Config) error {
		if err := c.app.TriggerPump(ctx, start, run); err != nil {
			return err
		}
		want := pump.StatusOff
		if start {
			want = pump.StatusOn
		}
		snap, confirmed, err := waitFor(ctx, c.app, wait, func(s status.Snapshot) bool {
			return !s.Pump.LastReportAt.Before(s.Pump.LastCommandAt) && s.Pump.Status == want
		})
		if err != nil {
			return err
		}
		note := "not confirmed by device"
		if confirmed {
			note = "confirmed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pump %s (%s)\n", snap.Pump.Status, note)
		return nil
	})
}

func newScheduleCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the device's watering schedules",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Fetch and list schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDevice(cmd.Context(), func(ctx context.Context, c *client, cfg config.Config) error {
				slots, err := fetch(ctx, c, cfg)
				if err != nil {
					return err
				}
				printSchedules(cmd.OutOrStdout(), slots, all, time.Now())
				return nil
			})
		},
	}
	list.Flags().BoolVarP(&all, "all", "a", false, "Include empty slots")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch schedules into the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDevice(cmd.Context(), func(ctx context.Context, c *client, cfg config.Config) error {
				slots, err := fetch(ctx, c, cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d schedules active\n", countEnabled(slots))
				return nil
			})
		},
	}

	var f scheduleFlags
	set := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.build()
			if err != nil {
				return err
			}
			return opts.withDevice(cmd.Context(), func(ctx context.Context, c *client, cfg config.Config) error {
				saved, err := c.app.SaveSchedule(ctx, s)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", saved.Label())
				return nil
			})
		},
	}
	set.Flags().IntVar(&f.slot, "slot", 0, "Slot 1-10 (default first free)")
	set.Flags().StringVar(&f.at, "at", "8:00", "Start time, e.g. 06:30 or 6:30 PM")
	set.Flags().DurationVarP(&f.duration, "duration", "d", 60*time.Second, "Run time")
	set.Flags().StringVar(&f.days, "days", "weekdays", "Days: mon,wed,fri | weekdays | weekends | daily | mask")
	set.Flags().BoolVar(&f.disabled, "disabled", false, "Save the slot disabled")

	del := &cobra.Command{
		Use:   "delete SLOT",
		Short: "Clear a schedule slot (1-10)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("slot: %w", err)
			}
			index, err := slotIndex(n)
			if err != nil || index == schedule.AutoIndex {
				return fmt.Errorf("slot must be 1-%d", schedule.Slots)
			}
			return opts.withDevice(cmd.Context(), func(ctx context.Context, c *client, cfg config.Config) error {
				if err := c.app.DeleteSchedule(ctx, index); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared slot %d\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(list, refresh, set, del)
	return cmd
}

func fetch(ctx context.Context, c *client, cfg config.Config) ([]schedule.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Schedule.SnapshotTimeout)
	defer cancel()
	slots, err := c.app.FetchSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch schedules: %w", err)
	}
	return slots, nil
}

func countEnabled(slots []schedule.Schedule) int {
	n := 0
	for _, s := range slots {
		if s.Enabled {
			n++
		}
	}
	return n
}

type scheduleFlags struct {
	slot     int
	at       string
	duration time.Duration
	days     string
	disabled bool
}

func (f scheduleFlags) build() (schedule.Schedule, error) {
	index, err := slotIndex(f.slot)
	if err != nil {
		return schedule.Schedule{}, err
	}
	hour, minute, err := parseClock(f.at)
	if err != nil {
		return schedule.Schedule{}, err
	}
	days, err := schedule.ParseDays(f.days)
	if err != nil {
		return schedule.Schedule{}, err
	}
	if f.duration%time.Second != 0 {
		return schedule.Schedule{}, fmt.Errorf("duration %v is not whole seconds", f.duration)
	}
	s := schedule.Schedule{
		Index:           index,
		Hour:            hour,
		Minute:          minute,
		DurationSeconds: int(f.duration / time.Second),
		Days:            days,
		Enabled:         !f.disabled,
	}
	return s, s.Validate(true)
}

// slotIndex maps a 1-based slot number to an index; 0 means first free.
func slotIndex(n int) (int, error) {
	if n == 0 {
		return schedule.AutoIndex, nil
	}
	if n < 1 || n > schedule.Slots {
		return 0, fmt.Errorf("slot must be 1-%d", schedule.Slots)
	}
	return n - 1, nil
}

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "3 PM", "3PM"}

// parseClock reads a 24-hour or 12-hour start time.
func parseClock(s string) (hour, minute int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("invalid time %q", s)
}

func newTimelineCmd(opts *options) *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Connect, watch the device for a while and print what happened",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDevice(cmd.Context(), func(ctx context.Context, c *client, cfg config.Config) error {
				select {
				case <-ctx.Done():
				case <-time.After(watch):
				}
				printTimeline(cmd.OutOrStdout(), c.app.Timeline())
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&watch, "for", 30*time.Second, "How long to watch")
	return cmd
}
