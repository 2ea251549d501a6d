// Command monthlycats pre-creates the upcoming month's category pages
// a configurable number of days ahead of the boundary, grounded on
// _examples/original_source/orlodrimbot/monthly_categories_init/monthly_categories_init.cpp.
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/orlodrim/wikibots-go/internal/bots/monthlycategories"
	"github.com/orlodrim/wikibots-go/pkg/botflags"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/config"
	"github.com/orlodrim/wikibots-go/pkg/healthz"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/logging"
	"github.com/orlodrim/wikibots-go/pkg/runloop"
)

type monthlyCatsConfig struct {
	config.Bot
	DaysBefore int `json:"daysBefore"`
	Categories []struct {
		TitlePattern string `json:"titlePattern"`
		TemplateName string `json:"templateName"`
	} `json:"categories"`
}

type options struct {
	common   botflags.CommonOptions
	cronSpec string
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options
	o.common.AddFlags(fs)
	fs.StringVar(&o.cronSpec, "cron", "0 6 * * *", "Cron schedule on which to check whether a month boundary is approaching.")
	fs.Parse(args)
	return o
}

func main() {
	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.common.Validate("monthlycats"); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	log := logging.Init("monthlycats", o.common.Debug)

	configAgent, err := config.NewAgent[monthlyCatsConfig](o.common.ConfigPath, log)
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
		cats := make([]monthlycategories.CategoryTemplate, 0, len(cfg.Categories))
		for _, c := range cfg.Categories {
			cats = append(cats, monthlycategories.CategoryTemplate{TitlePattern: c.TitlePattern, TemplateName: c.TemplateName})
		}
		e := monthlycategories.NewEnqueuer(queue, monthlycategories.Config{DaysBefore: cfg.DaysBefore, Categories: cats})
		if o.common.DryRun {
			return nil
		}
		return e.EnqueueIfDue(ctx, clock.System{}.Now())
	})
	if err != nil {
		log.WithError(err).Fatal("cron loop failed")
	}
}
