// Command talkarchiver periodically enqueues one sweep job per
// configured talk page, grounded on
// _examples/original_source/orlodrimbot/talk_page_archiver/talk_page_archiver.cpp.
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/orlodrim/wikibots-go/internal/bots/talkarchiver"
	"github.com/orlodrim/wikibots-go/pkg/botflags"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/config"
	"github.com/orlodrim/wikibots-go/pkg/healthz"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/logging"
	"github.com/orlodrim/wikibots-go/pkg/runloop"
)

type talkArchiverConfig struct {
	config.Bot
	TalkPages []struct {
		Page               string `json:"page"`
		SizeThresholdBytes int    `json:"sizeThresholdBytes"`
	} `json:"talkPages"`
}

type options struct {
	common   botflags.CommonOptions
	cronSpec string
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options
	o.common.AddFlags(fs)
	fs.StringVar(&o.cronSpec, "cron", "0 3 * * *", "Cron schedule on which to sweep configured talk pages.")
	fs.Parse(args)
	return o
}

func main() {
	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.common.Validate("talkarchiver"); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	log := logging.Init("talkarchiver", o.common.Debug)

	configAgent, err := config.NewAgent[talkArchiverConfig](o.common.ConfigPath, log)
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
		pages := make([]talkarchiver.Config, 0, len(cfg.TalkPages))
		for _, p := range cfg.TalkPages {
			pages = append(pages, talkarchiver.Config{Page: p.Page, SizeThresholdBytes: p.SizeThresholdBytes})
		}
		e := &talkarchiver.Enqueuer{Queue: queue, Pages: pages}
		if o.common.DryRun {
			return nil
		}
		return e.EnqueueAll(ctx)
	})
	if err != nil {
		log.WithError(err).Fatal("cron loop failed")
	}
}
