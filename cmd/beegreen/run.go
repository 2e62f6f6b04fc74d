package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/beegreen/internal/app"
	"github.com/sweeney/beegreen/internal/web"
)

// reconnectInterval is how often a dropped session is retried.
const reconnectInterval = 15 * time.Second

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the client and status page until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runDaemon(cmd.Context())
		},
	}
}

func (o *options) runDaemon(parent context.Context) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	c, err := startClient(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, c.tracker, c.metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	log.Infow("started",
		"transport", cfg.MQTT.Transport,
		"threshold", cfg.Liveness.Threshold,
		"check_interval", cfg.Liveness.CheckInterval,
		"command_format", cfg.Pump.CommandFormat)

	retry := time.NewTicker(reconnectInterval)
	defer retry.Stop()
	if err := c.app.KeepConnected(ctx, retry.C); errors.Is(err, app.ErrNotOnboarded) {
		log.Warnw("no device onboarded; serving status only", "hint", "beegreen onboard")
		<-ctx.Done()
	}
	log.Infow("shutting down")
	return nil
}
