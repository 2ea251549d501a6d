// Package runloop drives a bot's main loop: either a fixed-interval
// tick (grounded on kubernetes-sigs-prow's horologium poll loop) or a
// cron schedule (github.com/robfig/cron/v3, for bots like
// monthlycategories/sandboxreset/talkarchiver that fire on a calendar
// expression rather than a fixed tick), with graceful shutdown on
// context cancellation or SIGINT/SIGTERM.
package runloop

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// WithSignals returns a context cancelled on SIGINT/SIGTERM, and the
// associated stop function which should be deferred.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Tick runs fn once immediately and then every interval, until ctx is
// cancelled. A single run that returns an error is logged but does not
// stop the loop; only ctx cancellation does.
func Tick(ctx context.Context, log *logrus.Entry, interval time.Duration, fn func(ctx context.Context) error) {
	runOnce(ctx, log, fn)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("run loop stopping")
			return
		case <-ticker.C:
			runOnce(ctx, log, fn)
		}
	}
}

func runOnce(ctx context.Context, log *logrus.Entry, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		log.WithError(err).Error("run loop iteration failed")
	}
}

// Cron runs fn on every trigger of spec (standard five-field cron
// syntax) until ctx is cancelled.
func Cron(ctx context.Context, log *logrus.Entry, spec string, fn func(ctx context.Context) error) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() { runOnce(ctx, log, fn) })
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	log.Info("cron loop stopped")
	return nil
}
