// Package talkarchiver periodically sweeps a configured list of talk
// pages and, once a page grows past a size threshold, copies its body
// into a dated archive subpage and replaces the main page's bot
// section with a stub pointing at the archive.
//
// Grounded on
// _examples/original_source/orlodrimbot/talk_page_archiver/talk_page_archiver.cpp:
// the original's main() is a one-line dispatch to an Archiver class not
// present in the retrieval pack ("Archive old sections on talk pages
// containing {{Archivage par bot}}"); per spec.md §4.4's note that the
// interesting logic lives in PageMutator/BotSection, this handler stays
// intentionally thin and pushes all of its behavior through those two.
package talkarchiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orlodrim/wikibots-go/pkg/botsection"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/jobrunner"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

// HandlerPrefix is the jobqueue handler prefix this package registers
// under.
const HandlerPrefix = "talkarchiver"

// Config describes one talk page to sweep.
type Config struct {
	// Page is the talk page's title.
	Page string
	// SizeThresholdBytes is how large the page's bot-section body must be
	// before a sweep archives it.
	SizeThresholdBytes int
}

func (c Config) withDefaults() Config {
	if c.SizeThresholdBytes <= 0 {
		c.SizeThresholdBytes = 75_000
	}
	return c
}

// JobInserter is the slice of jobqueue.Queue this package needs.
type JobInserter interface {
	Insert(ctx context.Context, job jobqueue.Job, mode jobqueue.InsertMode) (int64, error)
}

// Enqueuer schedules one sweep job per configured page.
type Enqueuer struct {
	Queue JobInserter
	Pages []Config
}

// EnqueueAll inserts one sweep job per page, deduplicated against any
// still-pending job for that page.
func (e *Enqueuer) EnqueueAll(ctx context.Context) error {
	for _, cfg := range e.Pages {
		job := jobqueue.Job{
			Handler:    HandlerPrefix + ".sweep",
			Key:        cfg.Page,
			Parameters: wikivalue.NewMap().Set("page", wikivalue.String(cfg.Page)).Build(),
		}
		if _, err := e.Queue.Insert(ctx, job, jobqueue.IgnoreIfExists); err != nil {
			return fmt.Errorf("talkarchiver: enqueue %s: %w", cfg.Page, err)
		}
	}
	return nil
}

// Handler sweeps a single talk page.
type Handler struct {
	jobrunner.BaseHandler
	Mutator *wiki.Mutator
	Clock   clock.Clock
	Pages   map[string]Config // keyed by Page
}

// NewHandler indexes cfgs by Page for Run's lookup.
func NewHandler(m *wiki.Mutator, c clock.Clock, cfgs []Config) *Handler {
	byPage := make(map[string]Config, len(cfgs))
	for _, cfg := range cfgs {
		byPage[cfg.Page] = cfg.withDefaults()
	}
	return &Handler{Mutator: m, Clock: c, Pages: byPage}
}

// Run archives Page's bot-section body to a dated subpage if it exceeds
// SizeThresholdBytes, leaving a pointer stub behind; otherwise it is a
// no-op.
func (h *Handler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	page := job.Parameters.FieldOr("page", wikivalue.String("")).GetString("")
	cfg, ok := h.Pages[page]
	if !ok {
		return jobrunner.NewSourceError(jobrunner.Error, "Validation", "unknown_page",
			"no talk page configured for "+page, 0)
	}

	content, token, err := h.Mutator.ReadContentIfExists(ctx, page)
	if err != nil {
		return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "read_failed", err.Error(), 15*time.Minute)
	}
	parsed := botsection.Parse(content)
	if len(parsed.Body) < cfg.SizeThresholdBytes {
		return nil
	}
	if dryRun {
		return nil
	}

	archiveTitle := page + "/Archive " + h.Clock.Now().Format("2006-01")
	if err := h.Mutator.Write(ctx, archiveTitle, parsed.Body, wiki.ForCreation(archiveTitle),
		"Archiving old discussions", wiki.AllowBlanking); err != nil {
		var alreadyExists *wiki.PageAlreadyExistsError
		if !errors.As(err, &alreadyExists) {
			return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "archive_write_failed", err.Error(), 30*time.Minute)
		}
	}

	stub := "See [[" + archiveTitle + "]] for older discussions.\n"
	err = h.Mutator.Write(ctx, page, mustReplace(content, stub), token, "Archiving old discussions", 0)
	if err == nil {
		return nil
	}
	var noBots *wiki.NoBotsError
	if errors.As(err, &noBots) {
		return nil
	}
	return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "write_failed", err.Error(), 15*time.Minute)
}

func mustReplace(content, newBody string) string {
	updated, _ := botsection.Replace(content, newBody, botsection.UpdateCounter)
	return updated
}
