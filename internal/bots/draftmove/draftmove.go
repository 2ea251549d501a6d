// Package draftmove watches ChangeLog move events that cross a
// configured draft namespace boundary and appends each one to a
// BotSection-delimited tracking list on a community page.
//
// Grounded on
// _examples/original_source/orlodrimbot/draft_moved_to_main/draft_moved_to_main_lib.h
// (ListOfPublishedDrafts: tracks drafts moved into the mainspace onto a
// single wiki page) and
// _examples/original_source/orlodrimbot/article_to_draft_move/article_to_draft_move.{h,cpp}
// (the reverse direction). This port drops the original's republish/
// redirect-chasing bookkeeping (Article.currentTitle,
// Article.lastMoveDate, deleted-page tracking) and keeps only the
// structural signal: log one line per move that touches the draft
// namespace, oldest first.
package draftmove

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/orlodrim/wikibots-go/pkg/botsection"
	"github.com/orlodrim/wikibots-go/pkg/changelog"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/jobrunner"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

// HandlerPrefix is the jobqueue handler prefix this package registers
// under.
const HandlerPrefix = "draftmove"

// Config tunes the scan.
type Config struct {
	// DraftPrefix selects which titles count as being in the draft
	// namespace, e.g. "Draft:".
	DraftPrefix string `json:"draftPrefix"`
	// TrackingPageTitle is the community page whose bot section records
	// one line per move.
	TrackingPageTitle string `json:"trackingPageTitle"`
}

func (c Config) withDefaults() Config {
	if c.DraftPrefix == "" {
		c.DraftPrefix = "Draft:"
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

// Scanner finds move log events crossing the draft boundary.
type Scanner struct {
	Changes ChangeEnumerator
	Queue   JobInserter
	Config  Config
}

// NewScanner builds a Scanner with defaults applied.
func NewScanner(changes ChangeEnumerator, queue JobInserter, cfg Config) *Scanner {
	return &Scanner{Changes: changes, Queue: queue, Config: cfg.withDefaults()}
}

// Scan enqueues one notify job per move log event, since sinceTimestamp,
// whose source or target title is in the draft namespace. Jobs are keyed
// by change id, so re-running Scan over an overlapping window never
// double-enqueues.
func (s *Scanner) Scan(ctx context.Context, sinceTimestamp int64) error {
	opts := changelog.EnumerateOptions{
		KindMask:       changelog.MaskLog,
		PropertyMask:   changelog.PropAll,
		StartTimestamp: &sinceTimestamp,
	}
	var enqueueErr error
	err := s.Changes.Enumerate(ctx, opts, func(c changelog.Change) bool {
		if c.LogKind != changelog.LogMove {
			return true
		}
		fromDraft := strings.HasPrefix(c.Title, s.Config.DraftPrefix)
		toDraft := strings.HasPrefix(c.NewTitle, s.Config.DraftPrefix)
		if !fromDraft && !toDraft {
			return true
		}
		job := jobqueue.Job{
			Handler: HandlerPrefix + ".notify",
			Key:     strconv.FormatInt(c.ChangeID, 10),
			Parameters: wikivalue.NewMap().
				Set("from", wikivalue.String(c.Title)).
				Set("to", wikivalue.String(c.NewTitle)).
				Set("user", wikivalue.String(c.User)).
				Set("timestamp", wikivalue.Int64(c.Timestamp)).
				Build(),
		}
		if _, err := s.Queue.Insert(ctx, job, jobqueue.IgnoreIfExists); err != nil {
			enqueueErr = fmt.Errorf("draftmove: enqueue change %d: %w", c.ChangeID, err)
			return false
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("draftmove: scan: %w", err)
	}
	return enqueueErr
}

// Handler appends one line to the tracking page's bot section per move.
type Handler struct {
	jobrunner.BaseHandler
	Mutator           *wiki.Mutator
	TrackingPageTitle string
}

// NewHandler builds a Handler targeting cfg.TrackingPageTitle.
func NewHandler(m *wiki.Mutator, cfg Config) *Handler {
	return &Handler{Mutator: m, TrackingPageTitle: cfg.withDefaults().TrackingPageTitle}
}

// Run appends a line describing the move to h.TrackingPageTitle's bot
// section.
func (h *Handler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	from := job.Parameters.FieldOr("from", wikivalue.String("")).GetString("")
	to := job.Parameters.FieldOr("to", wikivalue.String("")).GetString("")
	user := job.Parameters.FieldOr("user", wikivalue.String("")).GetString("")
	ts := job.Parameters.FieldOr("timestamp", wikivalue.Int64(0)).GetInt64(0)
	if from == "" || to == "" {
		return jobrunner.NewSourceError(jobrunner.Error, "Validation", "missing_parameters",
			"draftmove.notify job is missing from or to", 0)
	}
	if dryRun {
		return nil
	}

	line := fmt.Sprintf("* [[%s]] → [[%s]] (moved by %s, %s)\n", from, to, user,
		time.Unix(ts, 0).UTC().Format("2006-01-02"))
	err := h.Mutator.Edit(ctx, h.TrackingPageTitle, func(content, summary *string) {
		parsed := botsection.Parse(*content)
		body := strings.TrimPrefix(parsed.Body, "\n")
		updated, _ := botsection.Replace(*content, body+line, botsection.UpdateCounter)
		*content = updated
		*summary = "Logging draft move: " + from
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
