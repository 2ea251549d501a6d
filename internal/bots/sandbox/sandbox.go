// Package sandbox periodically resets a configured sandbox page back
// to boilerplate content, unless it was edited too recently.
//
// Grounded on
// _examples/original_source/orlodrimbot/sandbox/sandbox_lib.{h,cpp}:
// the original's SandboxPage{page, templatePage, minSeconds} and
// SandboxCleaner::run(force, dryRun) map directly onto Config and
// Handler.Run below; "as an optimization, a sandbox page is written
// only if either the sandbox or the template were recently modified"
// is dropped (cmd/sandboxreset enqueues resets on its cron schedule
// instead of reacting to ChangeLog activity).
package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/jobrunner"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

// HandlerPrefix is the jobqueue handler prefix this package registers
// under.
const HandlerPrefix = "sandbox"

// Config describes one sandbox page to maintain.
type Config struct {
	// Page is the sandbox page's title.
	Page string
	// TemplatePage is the title whose content replaces Page on reset.
	TemplatePage string
	// MinAge is the original's minSeconds: a sandbox edited more
	// recently than this is left alone even when a reset is due.
	MinAge time.Duration
}

// JobInserter is the slice of jobqueue.Queue this package needs.
type JobInserter interface {
	Insert(ctx context.Context, job jobqueue.Job, mode jobqueue.InsertMode) (int64, error)
}

// Enqueuer schedules one sandbox.reset job per configured sandbox.
// cmd/sandboxreset calls it on a runloop.Cron schedule; the schedule
// plays the role of the original's run frequency.
type Enqueuer struct {
	Queue     JobInserter
	Sandboxes []Config
}

// EnqueueAll inserts one reset job per sandbox, deduplicated against
// any still-pending job for the same page.
func (e *Enqueuer) EnqueueAll(ctx context.Context) error {
	for _, cfg := range e.Sandboxes {
		job := jobqueue.Job{
			Handler:    HandlerPrefix + ".reset",
			Key:        cfg.Page,
			Parameters: wikivalue.NewMap().Set("page", wikivalue.String(cfg.Page)).Build(),
		}
		if _, err := e.Queue.Insert(ctx, job, jobqueue.IgnoreIfExists); err != nil {
			return err
		}
	}
	return nil
}

// Handler performs the reset.
type Handler struct {
	jobrunner.BaseHandler
	Mutator   *wiki.Mutator
	Clock     clock.Clock
	Sandboxes map[string]Config // keyed by Page
}

// NewHandler indexes cfgs by Page for Run's lookup.
func NewHandler(m *wiki.Mutator, c clock.Clock, cfgs []Config) *Handler {
	byPage := make(map[string]Config, len(cfgs))
	for _, cfg := range cfgs {
		byPage[cfg.Page] = cfg
	}
	return &Handler{Mutator: m, Clock: c, Sandboxes: byPage}
}

// Run overwrites the sandbox with its template's content, unless the
// sandbox's latest revision is younger than Config.MinAge.
func (h *Handler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	page := job.Parameters.FieldOr("page", wikivalue.String("")).GetString("")
	cfg, ok := h.Sandboxes[page]
	if !ok {
		return jobrunner.NewSourceError(jobrunner.Error, "Validation", "unknown_sandbox",
			"no sandbox configured for "+page, 0)
	}

	rev, token, err := h.Mutator.ReadWithToken(ctx, page, wiki.RevPropTimestamp, "sandbox-reset")
	var notFound *wiki.NotFoundError
	switch {
	case errors.As(err, &notFound):
		token = wiki.ForCreation(page)
	case err != nil:
		return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "read_failed", err.Error(), 5*time.Minute)
	default:
		age := h.Clock.Now().Sub(time.Unix(rev.Timestamp, 0))
		if age < cfg.MinAge {
			return nil
		}
	}

	template, err := h.Mutator.Read(ctx, cfg.TemplatePage, wiki.RevPropContent)
	if err != nil {
		return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "template_read_failed", err.Error(), 30*time.Minute)
	}
	if dryRun {
		return nil
	}

	err = h.Mutator.Write(ctx, page, template.Content, token, "Resetting sandbox", wiki.AllowBlanking)
	if err == nil {
		return nil
	}
	var noBots *wiki.NoBotsError
	if errors.As(err, &noBots) {
		return nil
	}
	return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "write_failed", err.Error(), 10*time.Minute)
}
