package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/beegreen/internal/config"
	"github.com/sweeney/beegreen/internal/logger"
	"github.com/sweeney/beegreen/internal/schedule"
	"github.com/sweeney/beegreen/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// testConfig writes a default config and points the store into a temp dir.
func testConfig(t *testing.T) (cfgPath, storePath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "beegreen.yaml")
	if err := config.WriteDefault(cfgPath, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	storePath = filepath.Join(dir, "data", "beegreen.db")
	t.Setenv("BEEGREEN_STORE_PATH", storePath)
	return cfgPath, storePath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "beegreen ") {
		t.Errorf("output: got %q", out)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beegreen.yaml")
	if _, err := execute(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := execute(t, "--config", path, "config", "init"); err == nil {
		t.Error("second config init: expected error without --force")
	}
	if _, err := execute(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Errorf("config init --force: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Liveness.Threshold != 60*time.Second {
		t.Errorf("threshold: got %v, want 60s", cfg.Liveness.Threshold)
	}
}

func TestProvisionAndForget(t *testing.T) {
	cfgPath, storePath := testConfig(t)

	form := "s=garden&p=pw&mqtt_server=broker.example.com&mqtt_port=8884&username=bee&password=secret"
	out, err := execute(t, "--config", cfgPath, "provision", form)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !strings.Contains(out, "******") || strings.Contains(out, "secret") {
		t.Errorf("password not masked: %q", out)
	}

	st, err := store.OpenBolt(storePath)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	dc, ok, err := store.LoadDeviceConfig(st)
	st.Close()
	if err != nil || !ok {
		t.Fatalf("LoadDeviceConfig: ok=%v err=%v", ok, err)
	}
	if dc.WiFiSSID != "garden" || dc.MQTTPort != 8884 || dc.DeviceAdded {
		t.Errorf("stored: got %+v", dc)
	}

	if _, err := execute(t, "--config", cfgPath, "forget"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	st, err = store.OpenBolt(storePath)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer st.Close()
	if _, ok, _ := store.LoadDeviceConfig(st); ok {
		t.Error("device still stored after forget")
	}
}

func TestOnboardRequiresFields(t *testing.T) {
	cfgPath, _ := testConfig(t)
	if _, err := execute(t, "--config", cfgPath, "onboard", "--server", "broker.example.com"); err == nil {
		t.Error("onboard: expected error for missing user and password")
	}
}

func TestDeviceCommandsNeedOnboarding(t *testing.T) {
	cfgPath, _ := testConfig(t)
	_, err := execute(t, "--config", cfgPath, "pump", "stop")
	if err == nil || !strings.Contains(err.Error(), "beegreen onboard") {
		t.Errorf("pump stop: got %v, want onboarding hint", err)
	}
}

func TestSlotIndex(t *testing.T) {
	tests := []struct {
		in      int
		want    int
		wantErr bool
	}{
		{0, schedule.AutoIndex, false},
		{1, 0, false},
		{10, 9, false},
		{11, 0, true},
		{-1, 0, true},
	}
	for _, tt := range tests {
		got, err := slotIndex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("slotIndex(%d): err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("slotIndex(%d): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in        string
		hour, min int
		wantErr   bool
	}{
		{"06:30", 6, 30, false},
		{"8:00", 8, 0, false},
		{"23:59", 23, 59, false},
		{"6:30 PM", 18, 30, false},
		{"12:05 am", 0, 5, false},
		{"7pm", 19, 0, false},
		{"24:00", 0, 0, true},
		{"noon", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := parseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseClock(%q): err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && (h != tt.hour || m != tt.min) {
			t.Errorf("parseClock(%q): got %d:%02d, want %d:%02d", tt.in, h, m, tt.hour, tt.min)
		}
	}
}

func TestScheduleFlagsBuild(t *testing.T) {
	f := scheduleFlags{slot: 3, at: "6:15", duration: 90 * time.Second, days: "mon,wed"}
	s, err := f.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := schedule.Schedule{
		Index: 2, Hour: 6, Minute: 15, DurationSeconds: 90,
		Days: schedule.FromWeekdays(time.Monday, time.Wednesday), Enabled: true,
	}
	if s != want {
		t.Errorf("build: got %+v, want %+v", s, want)
	}

	bad := []scheduleFlags{
		{slot: 11, at: "6:15", duration: time.Minute, days: "daily"},
		{at: "6:15", duration: 1500 * time.Millisecond, days: "daily"},
		{at: "6:15", duration: time.Minute, days: "someday"},
		{at: "later", duration: time.Minute, days: "daily"},
	}
	for _, b := range bad {
		if _, err := b.build(); err == nil {
			t.Errorf("build(%+v): expected error", b)
		}
	}
}

func TestReadForm(t *testing.T) {
	got, err := readForm("-", strings.NewReader("s=a&p=b\n"))
	if err != nil || got != "s=a&p=b" {
		t.Errorf("readForm(-): got %q, %v", got, err)
	}
	got, _ = readForm("s=x", nil)
	if got != "s=x" {
		t.Errorf("readForm(arg): got %q", got)
	}
}

func TestPrintSchedules(t *testing.T) {
	slots := []schedule.Schedule{
		{Index: 0, Hour: 8, Minute: 5, DurationSeconds: 60, Days: schedule.Weekdays, Enabled: true},
		schedule.Empty(1),
	}
	now := time.Date(2026, 5, 4, 7, 0, 0, 0, time.Local)

	var buf bytes.Buffer
	printSchedules(&buf, slots, false, now)
	out := buf.String()
	if !strings.Contains(out, "8:05 AM") || !strings.Contains(out, "weekdays") {
		t.Errorf("output missing schedule: %q", out)
	}
	if strings.Contains(out, "#2") {
		t.Errorf("empty slot listed without --all: %q", out)
	}

	buf.Reset()
	printSchedules(&buf, slots[1:], false, now)
	if !strings.Contains(buf.String(), "no active schedules") {
		t.Errorf("output: got %q", buf.String())
	}
}

func TestCommandsRunBesideDaemon(t *testing.T) {
	cfgPath, _ := testConfig(t)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	daemon, err := startClient(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("startClient: %v", err)
	}
	defer daemon.Close()

	form := "s=garden&p=pw&mqtt_server=broker.example.com&mqtt_port=8884&username=bee&password=secret"
	if _, err := execute(t, "--config", cfgPath, "provision", form); err != nil {
		t.Fatalf("provision while daemon runs: %v", err)
	}
	dc, ok, err := store.LoadDeviceConfig(daemon.store)
	if err != nil || !ok || dc.WiFiSSID != "garden" {
		t.Errorf("daemon view: got %+v ok=%v err=%v", dc, ok, err)
	}
	if _, err := execute(t, "--config", cfgPath, "forget"); err != nil {
		t.Fatalf("forget while daemon runs: %v", err)
	}
}
