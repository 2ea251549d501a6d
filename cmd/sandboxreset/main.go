// Command sandboxreset periodically enqueues one sandbox.reset job per
// configured sandbox page, grounded on
// _examples/original_source/orlodrimbot/sandbox/sandbox_lib.h's
// SandboxCleaner, which this binary drives on a cron schedule instead
// of a single invocation.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/orlodrim/wikibots-go/internal/bots/sandbox"
	"github.com/orlodrim/wikibots-go/pkg/botflags"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/config"
	"github.com/orlodrim/wikibots-go/pkg/healthz"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/logging"
	"github.com/orlodrim/wikibots-go/pkg/runloop"
)

type sandboxResetConfig struct {
	config.Bot
	Sandboxes []struct {
		Page          string `json:"page"`
		TemplatePage  string `json:"templatePage"`
		MinAgeSeconds int64  `json:"minAgeSeconds"`
	} `json:"sandboxes"`
}

type options struct {
	common   botflags.CommonOptions
	cronSpec string
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options
	o.common.AddFlags(fs)
	fs.StringVar(&o.cronSpec, "cron", "@every 30m", "Cron schedule on which to check for due sandboxes.")
	fs.Parse(args)
	return o
}

func main() {
	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.common.Validate("sandboxreset"); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	log := logging.Init("sandboxreset", o.common.Debug)

	configAgent, err := config.NewAgent[sandboxResetConfig](o.common.ConfigPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	queue, err := jobqueue.Open(o.common.StateFile+".jobqueue.sqlite", clock.System{})
	if err != nil {
		log.WithError(err).Fatal("failed to open job queue")
	}
	defer queue.Close()

	health := healthz.NewHealth(o.common.HealthPort)
	defer health.Shutdown(context.Background())
	health.ServeLive(func() bool { return true })

	ctx, cancel := runloop.WithSignals(context.Background())
	defer cancel()

	err = runloop.Cron(ctx, log, o.cronSpec, func(ctx context.Context) error {
		cfg := configAgent.Config()
		cfgs := make([]sandbox.Config, 0, len(cfg.Sandboxes))
		for _, s := range cfg.Sandboxes {
			cfgs = append(cfgs, sandbox.Config{
				Page:         s.Page,
				TemplatePage: s.TemplatePage,
				MinAge:       time.Duration(s.MinAgeSeconds) * time.Second,
			})
		}
		e := &sandbox.Enqueuer{Queue: queue, Sandboxes: cfgs}
		if o.common.DryRun {
			return nil
		}
		return e.EnqueueAll(ctx)
	})
	if err != nil {
		log.WithError(err).Fatal("cron loop failed")
	}
}
