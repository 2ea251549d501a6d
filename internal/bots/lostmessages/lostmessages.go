// Package lostmessages enqueues a reminder job for newcomer talk pages
// whose latest message has gone unanswered past a configured delay.
//
// Grounded on
// _examples/original_source/orlodrimbot/lost_messages/lost_messages_lib.{h,cpp},
// simplified: the original classifies a post's content (question,
// thanks, draft submission, ...) with a trained MessageClassifier and
// forwards selected posts to a human mentor. This port drops the
// classifier and mentor-routing entirely and keeps only the structural
// signal a core-only rewrite can own: a talk page whose most recent
// edit is older than Config.Delay gets one reminder job.
package lostmessages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orlodrim/wikibots-go/pkg/botsection"
	"github.com/orlodrim/wikibots-go/pkg/changelog"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/jobrunner"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

// Handler name jobs are enqueued under; see handlerPrefix in pkg/jobrunner.
const HandlerPrefix = "lostmessages"

// Config tunes the scan.
type Config struct {
	// TalkPagePrefix selects which pages count as newcomer talk pages.
	TalkPagePrefix string
	// Delay is how long a page's most recent edit must be untouched
	// before a reminder job is enqueued.
	Delay time.Duration
	// ReminderBody is the English boilerplate posted into the bot
	// section (spec.md's collaborator-owned wikicode templating is
	// named out of scope; this is a fixed placeholder).
	ReminderBody string
}

func (c Config) withDefaults() Config {
	if c.TalkPagePrefix == "" {
		c.TalkPagePrefix = "User talk:"
	}
	if c.Delay <= 0 {
		c.Delay = 48 * time.Hour
	}
	if c.ReminderBody == "" {
		c.ReminderBody = "It looks like your question hasn't been answered yet. A volunteer will follow up soon."
	}
	return c
}

// ChangeEnumerator is the slice of changelog.Reader this package needs.
type ChangeEnumerator interface {
	Enumerate(ctx context.Context, opts changelog.EnumerateOptions, cb changelog.Callback) error
}

// JobInserter is the slice of jobqueue.Queue this package needs.
type JobInserter interface {
	Insert(ctx context.Context, job jobqueue.Job, mode jobqueue.InsertMode) (int64, error)
}

// Scanner enumerates recent changes and enqueues notify jobs.
type Scanner struct {
	Changes ChangeEnumerator
	Queue   JobInserter
	Clock   clock.Clock
	Config  Config
}

// NewScanner builds a Scanner with defaults applied.
func NewScanner(changes ChangeEnumerator, queue JobInserter, c clock.Clock, cfg Config) *Scanner {
	return &Scanner{Changes: changes, Queue: queue, Clock: c, Config: cfg.withDefaults()}
}

// Scan looks at every edit since the given timestamp, finds the latest
// edit per matching talk page, and enqueues a notify job for each page
// whose latest edit is already older than Config.Delay. Re-running Scan
// against the same window is idempotent: IgnoreIfExists means a page
// already queued for notification is left alone.
func (s *Scanner) Scan(ctx context.Context, sinceTimestamp int64) error {
	now := s.Clock.Now().Unix()
	latest := map[string]int64{}
	opts := changelog.EnumerateOptions{
		KindMask:       changelog.MaskEdit | changelog.MaskNewPage,
		PropertyMask:   changelog.PropUser,
		StartTimestamp: &sinceTimestamp,
	}
	err := s.Changes.Enumerate(ctx, opts, func(c changelog.Change) bool {
		if !strings.HasPrefix(c.Title, s.Config.TalkPagePrefix) {
			return true
		}
		if c.Timestamp > latest[c.Title] {
			latest[c.Title] = c.Timestamp
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("lostmessages: scan: %w", err)
	}

	delaySeconds := int64(s.Config.Delay / time.Second)
	for title, ts := range latest {
		if now-ts < delaySeconds {
			continue
		}
		job := jobqueue.Job{
			Handler: HandlerPrefix + ".notify",
			Key:     title,
			Parameters: wikivalue.NewMap().
				Set("title", wikivalue.String(title)).
				Set("last_edit", wikivalue.Int64(ts)).
				Build(),
		}
		if _, err := s.Queue.Insert(ctx, job, jobqueue.IgnoreIfExists); err != nil {
			return fmt.Errorf("lostmessages: enqueue %s: %w", title, err)
		}
	}
	return nil
}

// Handler posts the reminder into the page's bot section.
type Handler struct {
	jobrunner.BaseHandler
	Mutator *wiki.Mutator
	Config  Config
}

// NewHandler builds a Handler with defaults applied.
func NewHandler(m *wiki.Mutator, cfg Config) *Handler {
	return &Handler{Mutator: m, Config: cfg.withDefaults()}
}

// Run posts Config.ReminderBody into title's bot section, honoring
// {{nobots}} like any other PageMutator write.
func (h *Handler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	title := job.Parameters.FieldOr("title", wikivalue.String("")).GetString("")
	if title == "" {
		return jobrunner.NewSourceError(jobrunner.Error, "Validation", "missing_title",
			"lostmessages.notify job has no title parameter", 0)
	}
	if dryRun {
		return nil
	}
	err := h.Mutator.Edit(ctx, title, func(content, summary *string) {
		updated, _ := botsection.Replace(*content, h.Config.ReminderBody, botsection.UpdateCounter)
		*content = updated
		*summary = "Reminder: unanswered message"
	}, 0)
	if err == nil {
		return nil
	}
	var noBots *wiki.NoBotsError
	if errors.As(err, &noBots) {
		return nil
	}
	return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "write_failed", err.Error(), 10*time.Minute)
}
