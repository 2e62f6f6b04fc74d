package app

import (
	"context"
	"errors"
	"time"
)

// KeepConnected connects and then, on every retry tick, reconnects if the
// session has dropped. It returns ErrNotOnboarded straight away when there
// is no device, and nil once ctx is done.
func (a *App) KeepConnected(ctx context.Context, retry <-chan time.Time) error {
	if err := a.Connect(ctx); errors.Is(err, ErrNotOnboarded) {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.done:
			return nil
		case <-retry:
			if a.session.IsConnected() {
				continue
			}
			a.log.Infow("reconnecting")
			if err := a.Connect(ctx); errors.Is(err, ErrNotOnboarded) {
				return err
			}
		}
	}
}
