// Command rcsync keeps the local ChangeLog mirror current by polling
// the wiki's recent-changes feed, grounded on
// _examples/original_source/orlodrimbot/live_replication/recent_changes_sync.cpp's
// RecentChangesSync::updateDatabaseFromWiki, which this binary calls on
// a fixed tick instead of once per process invocation.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/orlodrim/wikibots-go/pkg/botflags"
	"github.com/orlodrim/wikibots-go/pkg/changelog"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/config"
	"github.com/orlodrim/wikibots-go/pkg/healthz"
	"github.com/orlodrim/wikibots-go/pkg/logging"
	"github.com/orlodrim/wikibots-go/pkg/runloop"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
)

type options struct {
	common       botflags.CommonOptions
	wikiOpts     botflags.WikiOptions
	pollInterval time.Duration
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options
	o.common.AddFlags(fs)
	o.wikiOpts.AddFlags(fs)
	fs.DurationVar(&o.pollInterval, "poll-interval", time.Minute, "How often to pull recent changes from the wiki.")
	fs.Parse(args)
	return o
}

func (o *options) Validate() error {
	if err := o.common.Validate("rcsync"); err != nil {
		return err
	}
	return o.wikiOpts.Validate("rcsync")
}

func main() {
	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	log := logging.Init("rcsync", o.common.Debug)

	configAgent, err := config.NewAgent[config.Bot](o.common.ConfigPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	cfg := configAgent.Config()
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

	store, err := changelog.Open(o.common.RCDatabaseFile, clock.System{}, changelog.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("failed to open changelog store")
	}
	defer store.Close()

	health := healthz.NewHealth(o.common.HealthPort)
	lastSuccess := time.Time{}
	health.ServeLive(func() bool {
		return lastSuccess.IsZero() || time.Since(lastSuccess) < 10*o.pollInterval
	})
	defer health.Shutdown(context.Background())

	runloop.Tick(ctx, log, o.pollInterval, func(ctx context.Context) error {
		if err := store.UpdateFromSource(ctx, client); err != nil {
			return err
		}
		lastSuccess = time.Now()
		return nil
	})
}
