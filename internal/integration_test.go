package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/beegreen/internal/app"
	"github.com/sweeney/beegreen/internal/clock"
	"github.com/sweeney/beegreen/internal/liveness"
	"github.com/sweeney/beegreen/internal/logger"
	"github.com/sweeney/beegreen/internal/metrics"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/onboarding"
	"github.com/sweeney/beegreen/internal/pump"
	"github.com/sweeney/beegreen/internal/status"
	"github.com/sweeney/beegreen/internal/store"
	"github.com/sweeney/beegreen/internal/web"
)

type running struct {
	app     *app.App
	sess    *mqtt.FakeSession
	tracker *status.Tracker
	metrics *metrics.Metrics
	tick    chan time.Time
	stop    func()
}

func start(t *testing.T, st store.Store, clk *clock.Fake) *running {
	t.Helper()
	r := &running{
		sess:    mqtt.NewFakeSession(),
		tracker: status.NewTracker(clk.Now(), status.Config{Threshold: liveness.DefaultThreshold}),
		metrics: metrics.New(),
		tick:    make(chan time.Time),
	}
	r.tracker.SetClock(clk.Now)
	a, err := app.New(app.Options{
		Topics:     mqtt.DefaultTopics,
		Transport:  mqtt.TransportWSS,
		Threshold:  liveness.DefaultThreshold,
		DefaultRun: pump.DefaultRun,
	}, app.Deps{
		Session: r.sess,
		Store:   st,
		Clock:   clk,
		Metrics: r.metrics,
		Tracker: r.tracker,
		Log:     logger.NewNop(),
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	r.app = a

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, r.tick)
		close(done)
	}()
	r.stop = func() {
		cancel()
		<-done
	}
	return r
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

// TestIntegrationFullFlow onboards a device, talks to it through the fake
// broker, reads the status page and restarts on the same database.
func TestIntegrationFullFlow(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "beegreen.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer st.Close()

	flow := onboarding.New(mqtt.NewFakeSession(), st, mqtt.TransportWSS, logger.NewNop())
	if _, err := flow.Onboard(ctx, store.DeviceConfig{
		MQTTServer: "broker.example.com", MQTTPort: 8884, MQTTUser: "bee", MQTTPassword: "secret",
	}); err != nil {
		t.Fatalf("Onboard: %v", err)
	}

	clk := clock.NewFake(time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))
	r := start(t, st, clk)
	srv := httptest.NewServer(web.New(":0", r.tracker, r.metrics).Handler())
	defer srv.Close()

	if err := r.app.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := r.sess.LastCredentials.Server; got != "broker.example.com" {
		t.Errorf("server: got %q", got)
	}

	r.sess.Deliver(mqtt.DefaultTopics.Heartbeat, []byte(`{"firmwareVersion":"1.2.0"}`))
	r.sess.Deliver(mqtt.DefaultTopics.SchedulesResponse,
		[]byte(`{"schedules":[{"index":0,"hour":7,"min":0,"dur":300,"dow":127,"en":true}]}`))
	if err := r.app.TriggerPump(ctx, true, 2*time.Minute); err != nil {
		t.Fatalf("TriggerPump: %v", err)
	}
	r.sess.Deliver(mqtt.DefaultTopics.PumpStatus, []byte(`{"payload":"on","timestamp":1780293600}`))
	if _, err := r.app.State(ctx); err != nil {
		t.Fatalf("State: %v", err)
	}

	var sj status.StatusJSON
	getJSON(t, srv.URL+"/index.json", &sj)
	if sj.Status.Device.State != "ONLINE" || sj.Status.Device.FirmwareVersion != "1.2.0" {
		t.Errorf("device: got %+v", sj.Status.Device)
	}
	if sj.Status.Pump.State != "ON" || sj.Status.Pump.SafetyArmed {
		t.Errorf("pump: got %+v, want ON and disarmed", sj.Status.Pump)
	}
	if len(sj.Status.Schedules) != 1 || sj.Status.NextRun == nil {
		t.Errorf("schedules: got %+v next=%v", sj.Status.Schedules, sj.Status.NextRun)
	}

	var tl web.TimelineJSON
	getJSON(t, srv.URL+"/timeline.json", &tl)
	titles := map[string]bool{}
	for _, e := range tl.Events {
		titles[e.Title] = true
	}
	for _, want := range []string{"Connected", "Device Online", "Schedules synced", "Start sent", "Pump on"} {
		if !titles[want] {
			t.Errorf("timeline missing %q", want)
		}
	}

	// Device goes quiet.
	clk.Advance(liveness.DefaultThreshold)
	r.tick <- clk.Now()
	if _, err := r.app.State(ctx); err != nil {
		t.Fatalf("State: %v", err)
	}
	getJSON(t, srv.URL+"/index.json", &sj)
	if sj.Status.Device.State != "OFFLINE" || !sj.Status.Device.Stale {
		t.Errorf("device after silence: got %+v", sj.Status.Device)
	}
	r.stop()

	// Restart on the same database.
	r2 := start(t, st, clk)
	defer r2.stop()
	snap, err := r2.app.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.Pump.Status != pump.StatusOn {
		t.Errorf("restored pump: got %s, want ON", snap.Pump.Status)
	}
	if !snap.Schedules[0].Enabled || snap.Schedules[0].DurationSeconds != 300 {
		t.Errorf("restored slot 0: got %+v", snap.Schedules[0])
	}
	if snap.Device.State != liveness.StateUnknown {
		t.Errorf("restored device: got %s, want UNKNOWN", snap.Device.State)
	}
	if !snap.Onboarded {
		t.Error("restored onboarded: got false")
	}
}

func TestIntegrationForgetDevice(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	flow := onboarding.New(mqtt.NewFakeSession(), st, mqtt.TransportTCP, logger.NewNop())
	if _, err := flow.Onboard(ctx, store.DeviceConfig{
		MQTTServer: "10.0.0.2", MQTTPort: 1883, MQTTUser: "bee", MQTTPassword: "secret",
	}); err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if err := flow.Forget(); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	r := start(t, st, clock.NewFake(time.Now()))
	defer r.stop()
	if err := r.app.Connect(ctx); err != app.ErrNotOnboarded {
		t.Errorf("Connect: got %v, want ErrNotOnboarded", err)
	}
}
