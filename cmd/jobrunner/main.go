// Command jobrunner drains the JobQueue against a static handler
// registry, per spec.md §9's design note that handlers are registered
// at compile time rather than discovered dynamically.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/orlodrim/wikibots-go/internal/bots/draftmove"
	"github.com/orlodrim/wikibots-go/internal/bots/lostmessages"
	"github.com/orlodrim/wikibots-go/internal/bots/monthlycategories"
	"github.com/orlodrim/wikibots-go/internal/bots/sandbox"
	"github.com/orlodrim/wikibots-go/internal/bots/talkarchiver"
	"github.com/orlodrim/wikibots-go/pkg/botflags"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/config"
	"github.com/orlodrim/wikibots-go/pkg/healthz"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/jobrunner"
	"github.com/orlodrim/wikibots-go/pkg/logging"
	"github.com/orlodrim/wikibots-go/pkg/runloop"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
)

// jobRunnerConfig is the --config-path YAML shape for this binary: the
// shared Bot section plus one sub-section per registered handler.
type jobRunnerConfig struct {
	config.Bot

	LostMessages struct {
		TalkPagePrefix string `json:"talkPagePrefix"`
		DelaySeconds   int64  `json:"delaySeconds"`
		ReminderBody   string `json:"reminderBody"`
	} `json:"lostMessages"`
	Sandboxes []struct {
		Page          string `json:"page"`
		TemplatePage  string `json:"templatePage"`
		MinAgeSeconds int64  `json:"minAgeSeconds"`
	} `json:"sandboxes"`
	TalkPages []struct {
		Page               string `json:"page"`
		SizeThresholdBytes int    `json:"sizeThresholdBytes"`
	} `json:"talkPages"`
	DraftMove struct {
		DraftPrefix       string `json:"draftPrefix"`
		TrackingPageTitle string `json:"trackingPageTitle"`
	} `json:"draftMove"`
}

type options struct {
	common       botflags.CommonOptions
	wikiOpts     botflags.WikiOptions
	maxCount     int
	pollInterval time.Duration
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options
	o.common.AddFlags(fs)
	o.wikiOpts.AddFlags(fs)
	fs.IntVar(&o.maxCount, "max-jobs-per-tick", 10, "Maximum number of jobs pulled from the queue in one tick.")
	fs.DurationVar(&o.pollInterval, "poll-interval", 30*time.Second, "How often to check for ready jobs.")
	fs.Parse(args)
	return o
}

func (o *options) Validate() error {
	if err := o.common.Validate("jobrunner"); err != nil {
		return err
	}
	return o.wikiOpts.Validate("jobrunner")
}

func main() {
	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	log := logging.Init("jobrunner", o.common.Debug)

	configAgent, err := config.NewAgent[jobRunnerConfig](o.common.ConfigPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	cfg := configAgent.Config()

	queue, err := jobqueue.Open(o.common.StateFile+".jobqueue.sqlite", clock.System{})
	if err != nil {
		log.WithError(err).Fatal("failed to open job queue")
	}
	defer queue.Close()

	delayBeforeRequests := o.wikiOpts.DelayBeforeRequests
	if delayBeforeRequests == 0 {
		delayBeforeRequests = time.Duration(cfg.DelayBeforeRequestsSeconds) * time.Second
	}
	delayBetweenEdits := o.wikiOpts.DelayBetweenEdits
	if delayBetweenEdits == 0 {
		delayBetweenEdits = time.Duration(cfg.DelayBetweenEditsSeconds) * time.Second
	}
	client, err := wiki.NewHTTPClient(wiki.HTTPClientOptions{
		APIURL:              o.wikiOpts.APIURL,
		UserName:            o.wikiOpts.UserName,
		Password:            o.wikiOpts.Password(),
		UserAgent:           o.wikiOpts.UserAgent,
		DelayBeforeRequests: delayBeforeRequests,
		DelayBetweenEdits:   delayBetweenEdits,
		Clock:               clock.System{},
		Log:                 log,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to build wiki client")
	}
	ctx, cancel := runloop.WithSignals(context.Background())
	defer cancel()
	if err := client.LogIn(ctx); err != nil {
		log.WithError(err).Fatal("failed to log in")
	}

	mutator := &wiki.Mutator{
		Client:  client,
		BotName: client.InternalUserName(),
		EmergencyStop: wiki.NewDefaultEmergencyStopTest(
			client, clock.System{}, cfg.Bot.EmergencyStopGracePeriodSeconds).Test,
	}

	handlers := map[string]jobrunner.Handler{
		lostmessages.HandlerPrefix: lostmessages.NewHandler(mutator, lostmessages.Config{
			TalkPagePrefix: cfg.LostMessages.TalkPagePrefix,
			Delay:          time.Duration(cfg.LostMessages.DelaySeconds) * time.Second,
			ReminderBody:   cfg.LostMessages.ReminderBody,
		}),
		sandbox.HandlerPrefix:           sandbox.NewHandler(mutator, clock.System{}, sandboxConfigs(cfg)),
		monthlycategories.HandlerPrefix: &monthlycategories.Handler{Mutator: mutator},
		draftmove.HandlerPrefix: draftmove.NewHandler(mutator, draftmove.Config{
			DraftPrefix:       cfg.DraftMove.DraftPrefix,
			TrackingPageTitle: cfg.DraftMove.TrackingPageTitle,
		}),
		talkarchiver.HandlerPrefix: talkarchiver.NewHandler(mutator, clock.System{}, talkPageConfigs(cfg)),
	}

	runner := jobrunner.NewRunner(queue, handlers, clock.System{})

	health := healthz.NewHealth(o.common.HealthPort)
	defer health.Shutdown(context.Background())
	health.ServeLive(func() bool { return true })

	runloop.Tick(ctx, log, o.pollInterval, func(ctx context.Context) error {
		return runner.RunJobs(ctx, jobrunner.RunJobOptions{MaxCount: o.maxCount, DryRun: o.common.DryRun})
	})
}

func sandboxConfigs(cfg jobRunnerConfig) []sandbox.Config {
	out := make([]sandbox.Config, 0, len(cfg.Sandboxes))
	for _, s := range cfg.Sandboxes {
		out = append(out, sandbox.Config{
			Page:         s.Page,
			TemplatePage: s.TemplatePage,
			MinAge:       time.Duration(s.MinAgeSeconds) * time.Second,
		})
	}
	return out
}

func talkPageConfigs(cfg jobRunnerConfig) []talkarchiver.Config {
	out := make([]talkarchiver.Config, 0, len(cfg.TalkPages))
	for _, p := range cfg.TalkPages {
		out = append(out, talkarchiver.Config{Page: p.Page, SizeThresholdBytes: p.SizeThresholdBytes})
	}
	return out
}
