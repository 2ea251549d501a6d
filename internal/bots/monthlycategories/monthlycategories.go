// Package monthlycategories pre-creates maintenance category pages a
// configurable number of days before the month they cover begins, so a
// template that stamps "categorize into <category> for <month> <year>"
// always has a page to land in.
//
// Grounded on
// _examples/original_source/orlodrimbot/monthly_categories_init/monthly_categories_init.cpp,
// generalized from the original's "run daily, act when tomorrow is the
// 1st" check into a configurable DaysBefore lead time, and from its
// fixed CATEGORY_CONFIGS array into Config.Categories. English category
// title patterns and template parameter names replace the original's
// French ones; wikicode/templating content is named collaborator
// territory, not core.
package monthlycategories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/jobrunner"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

// HandlerPrefix is the jobqueue handler prefix this package registers
// under.
const HandlerPrefix = "monthlycat"

// CategoryTemplate describes one maintenance category family.
type CategoryTemplate struct {
	// TitlePattern contains the literal placeholders "%(monthname)s"
	// and "%(year)d", substituted with the covered month's English name
	// in lowercase and the year.
	TitlePattern string
	// TemplateName is subst'd into the created page's content.
	TemplateName string
}

// Config tunes the scan.
type Config struct {
	// DaysBefore is how many days ahead of a month boundary the
	// categories for that month should already exist.
	DaysBefore int
	Categories []CategoryTemplate
}

func (c Config) withDefaults() Config {
	if c.DaysBefore <= 0 {
		c.DaysBefore = 1
	}
	return c
}

// JobInserter is the slice of jobqueue.Queue this package needs.
type JobInserter interface {
	Insert(ctx context.Context, job jobqueue.Job, mode jobqueue.InsertMode) (int64, error)
}

// Enqueuer decides, once per call, whether today is DaysBefore days
// ahead of the next month boundary, and if so enqueues one create job
// per configured category.
type Enqueuer struct {
	Queue  JobInserter
	Config Config
}

// NewEnqueuer builds an Enqueuer with defaults applied.
func NewEnqueuer(queue JobInserter, cfg Config) *Enqueuer {
	return &Enqueuer{Queue: queue, Config: cfg.withDefaults()}
}

// EnqueueIfDue enqueues the month's categories when now is exactly
// Config.DaysBefore days before the 1st of the following month.
// Intended to be called once per day from a runloop.Cron.
func (e *Enqueuer) EnqueueIfDue(ctx context.Context, now time.Time) error {
	boundary := nextMonthBoundary(now)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	daysUntil := int(boundary.Sub(today).Hours() / 24)
	if daysUntil != e.Config.DaysBefore {
		return nil
	}
	for _, cat := range e.Config.Categories {
		title := formatTitle(cat.TitlePattern, boundary.Month(), boundary.Year())
		job := jobqueue.Job{
			Handler: HandlerPrefix + ".create",
			Key:     title,
			Parameters: wikivalue.NewMap().
				Set("title", wikivalue.String(title)).
				Set("template", wikivalue.String(cat.TemplateName)).
				Set("month", wikivalue.Int64(int64(boundary.Month()))).
				Set("year", wikivalue.Int64(int64(boundary.Year()))).
				Build(),
		}
		if _, err := e.Queue.Insert(ctx, job, jobqueue.IgnoreIfExists); err != nil {
			return fmt.Errorf("monthlycategories: enqueue %s: %w", title, err)
		}
	}
	return nil
}

func nextMonthBoundary(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
}

func formatTitle(pattern string, month time.Month, year int) string {
	s := strings.ReplaceAll(pattern, "%(monthname)s", strings.ToLower(month.String()))
	s = strings.ReplaceAll(s, "%(year)d", fmt.Sprintf("%d", year))
	return s
}

// Handler creates the category page if it doesn't already exist.
type Handler struct {
	jobrunner.BaseHandler
	Mutator *wiki.Mutator
}

// Run is a no-op if title already exists (matching the original's
// "the page already exists" info log and early return), else creates
// it with a subst'd template invocation as content.
func (h *Handler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	title := job.Parameters.FieldOr("title", wikivalue.String("")).GetString("")
	template := job.Parameters.FieldOr("template", wikivalue.String("")).GetString("")
	month := job.Parameters.FieldOr("month", wikivalue.Int64(0)).GetInt64(0)
	year := job.Parameters.FieldOr("year", wikivalue.Int64(0)).GetInt64(0)
	if title == "" || template == "" {
		return jobrunner.NewSourceError(jobrunner.Error, "Validation", "missing_parameters",
			"monthlycat.create job is missing title or template", 0)
	}

	_, err := h.Mutator.Read(ctx, title, 0)
	var notFound *wiki.NotFoundError
	if err == nil {
		return nil // already exists
	}
	if !errors.As(err, &notFound) {
		return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "read_failed", err.Error(), 30*time.Minute)
	}
	if dryRun {
		return nil
	}

	content := fmt.Sprintf("{{subst:%s|month=%02d|year=%d}}", template, month, year)
	err = h.Mutator.Write(ctx, title, content, wiki.ForCreation(title), "", 0)
	if err == nil {
		return nil
	}
	var alreadyExists *wiki.PageAlreadyExistsError
	if errors.As(err, &alreadyExists) {
		return nil
	}
	return jobrunner.NewSourceError(jobrunner.Warning, "Wiki", "write_failed", err.Error(), 30*time.Minute)
}
