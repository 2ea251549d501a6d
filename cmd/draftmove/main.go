// Command draftmove watches ChangeLog for page moves crossing the
// draft namespace boundary and enqueues a notify job per move,
// grounded on
// _examples/original_source/orlodrimbot/draft_moved_to_main/draft_moved_to_main_lib.h.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/orlodrim/wikibots-go/internal/bots/draftmove"
	"github.com/orlodrim/wikibots-go/pkg/botflags"
	"github.com/orlodrim/wikibots-go/pkg/changelog"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/config"
	"github.com/orlodrim/wikibots-go/pkg/healthz"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/logging"
	"github.com/orlodrim/wikibots-go/pkg/runloop"
	"github.com/orlodrim/wikibots-go/pkg/state"
)

type draftMoveConfig struct {
	config.Bot
	DraftPrefix       string `json:"draftPrefix"`
	TrackingPageTitle string `json:"trackingPageTitle"`
}

// cursor is this binary's state.Bot.Extra payload: the timestamp of
// the oldest change the next scan must still cover.
type cursor struct {
	LastScanTimestamp int64 `json:"lastScanTimestamp"`
}

type options struct {
	common       botflags.CommonOptions
	pollInterval time.Duration
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options
	o.common.AddFlags(fs)
	fs.DurationVar(&o.pollInterval, "poll-interval", 5*time.Minute, "How often to scan for new draft moves.")
	fs.Parse(args)
	return o
}

func main() {
	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.common.Validate("draftmove"); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	log := logging.Init("draftmove", o.common.Debug)

	configAgent, err := config.NewAgent[draftMoveConfig](o.common.ConfigPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	changeStore, err := changelog.Open(o.common.RCDatabaseFile, clock.System{})
	if err != nil {
		log.WithError(err).Fatal("failed to open changelog store")
	}
	defer changeStore.Close()
	reader := changelog.NewReader(changeStore)

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

	runloop.Tick(ctx, log, o.pollInterval, func(ctx context.Context) error {
		st, err := state.Load(o.common.StateFile)
		if err != nil {
			return err
		}
		var cur cursor
		if len(st.Extra) > 0 {
			if err := json.Unmarshal(st.Extra, &cur); err != nil {
				return err
			}
		}

		cfg := configAgent.Config()
		scanner := draftmove.NewScanner(reader, queue, draftmove.Config{
			DraftPrefix:       cfg.DraftPrefix,
			TrackingPageTitle: cfg.TrackingPageTitle,
		})
		if o.common.DryRun {
			return nil
		}
		scanStart := clock.System{}.Now().Unix()
		if err := scanner.Scan(ctx, cur.LastScanTimestamp); err != nil {
			return err
		}
		cur.LastScanTimestamp = scanStart
		extra, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		st.Extra = extra
		return state.Save(o.common.StateFile, st)
	})
}
