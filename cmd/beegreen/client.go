package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sweeney/beegreen/internal/app"
	"github.com/sweeney/beegreen/internal/clock"
	"github.com/sweeney/beegreen/internal/config"
	"github.com/sweeney/beegreen/internal/logger"
	"github.com/sweeney/beegreen/internal/metrics"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/pump"
	"github.com/sweeney/beegreen/internal/status"
	"github.com/sweeney/beegreen/internal/store"
)

func (o *options) load() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.New(cfg.Log.Level), nil
}

func openStore(path string) (*store.BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return store.OpenBolt(path)
}

func appOptions(cfg config.Config) (app.Options, error) {
	format, err := pump.ParseFormat(cfg.Pump.CommandFormat)
	if err != nil {
		return app.Options{}, err
	}
	return app.Options{
		Topics:        cfg.Topics,
		Transport:     cfg.MQTT.Transport,
		Threshold:     cfg.Liveness.Threshold,
		CommandFormat: format,
		DefaultRun:    cfg.Pump.DefaultRun,
	}, nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		HTTPAddr:      cfg.HTTP.Addr,
		Threshold:     cfg.Liveness.Threshold,
		CheckInterval: cfg.Liveness.CheckInterval,
		CommandFormat: cfg.Pump.CommandFormat,
	}
}

// client is a running App with its store and session.
type client struct {
	app     *app.App
	session *mqtt.RealSession
	store   *store.BoltStore
	metrics *metrics.Metrics
	tracker *status.Tracker
	ticker  *time.Ticker
	cancel  context.CancelFunc
	done    chan error
}

func startClient(cfg config.Config, log *logger.Logger) (*client, error) {
	opts, err := appOptions(cfg)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	c := &client{
		session: mqtt.NewRealSession(cfg.MQTT.ConnectTimeout, cfg.MQTT.ClientIDPrefix, log),
		store:   st,
		metrics: metrics.New(),
		tracker: status.NewTracker(time.Now(), statusConfig(cfg)),
		done:    make(chan error, 1),
	}
	c.app, err = app.New(opts, app.Deps{
		Session: c.session,
		Store:   st,
		Clock:   clock.Real{},
		Metrics: c.metrics,
		Tracker: c.tracker,
		Log:     log,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.ticker = time.NewTicker(cfg.Liveness.CheckInterval)
	go func() { c.done <- c.app.Run(ctx, c.ticker.C) }()
	return c, nil
}

// Close stops the loop, which disconnects and disarms, then closes the store.
func (c *client) Close() error {
	c.cancel()
	<-c.done
	c.ticker.Stop()
	return c.store.Close()
}

// withDevice starts a client, connects it and runs fn.
func (o *options) withDevice(ctx context.Context, fn func(ctx context.Context, c *client, cfg config.Config) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	c, err := startClient(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.app.Connect(ctx); err != nil {
		if errors.Is(err, app.ErrNotOnboarded) {
			return fmt.Errorf("%w: run \"beegreen onboard\" first", err)
		}
		return err
	}
	return fn(ctx, c, cfg)
}

// waitFor polls the client state until cond holds or wait elapses. The last
// snapshot is returned either way.
func waitFor(ctx context.Context, a *app.App, wait time.Duration, cond func(status.Snapshot) bool) (status.Snapshot, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		snap, err := a.State(ctx)
		if err != nil {
			return status.Snapshot{}, false, err
		}
		if cond(snap) {
			return snap, true, nil
		}
		if time.Now().After(deadline) {
			return snap, false, nil
		}
		select {
		case <-ctx.Done():
			return snap, false, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
