package jobrunner

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/metrics"
)

// RunJobOptions configures RunJobs.
type RunJobOptions struct {
	// MaxCount is a job budget, decremented once per job pulled into any
	// batch (including jobs discarded for an unregistered handler), and
	// also bounds batch growth: a batch stops growing once the budget
	// would go non-positive, even if the handler's MaxBatchSize allows
	// more. Matches job_runner.cpp's maxCount, threaded by reference
	// through runOneBatchOfJobs/enumerateJobsToRun.
	MaxCount int
	// BackoffRandomness is the jitter fraction r in randomize(d, r).
	BackoffRandomness float64
	DryRun            bool
	// Rand is used for backoff jitter; a default source is used if nil.
	Rand *rand.Rand
}

func (o RunJobOptions) withDefaults() RunJobOptions {
	if o.MaxCount <= 0 {
		o.MaxCount = 10
	}
	if o.BackoffRandomness <= 0 {
		o.BackoffRandomness = 0.5
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(1))
	}
	return o
}

// Runner dispatches ready jobs from a Queue to statically registered
// Handlers.
type Runner struct {
	Queue    *jobqueue.Queue
	Handlers map[string]Handler
	Clock    clock.Clock
	Log      *logrus.Entry
}

// NewRunner builds a Runner. handlers is keyed by the handler prefix
// jobs are dispatched on (spec.md §9's static registration design).
func NewRunner(q *jobqueue.Queue, handlers map[string]Handler, c clock.Clock) *Runner {
	return &Runner{
		Queue:    q,
		Handlers: handlers,
		Clock:    c,
		Log:      logrus.WithField("component", "jobrunner"),
	}
}

// RunJobs implements the dispatch algorithm of spec.md §4.3: forms
// batches against the MaxCount job budget, exiting early once the
// budget is exhausted or the queue has no ready job.
func (rn *Runner) RunJobs(ctx context.Context, opts RunJobOptions) error {
	opts = opts.withDefaults()
	remaining := opts.MaxCount
	for remaining > 0 {
		batch, prefix, handler, registered, err := rn.nextBatch(ctx, remaining)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		remaining -= len(batch)
		if !registered {
			rn.Log.WithFields(logrus.Fields{"handler_prefix": prefix, "count": len(batch)}).
				Error("no handler registered for prefix; discarding jobs")
			if !opts.DryRun {
				ids := make([]int64, len(batch))
				for i, j := range batch {
					ids[i] = j.ID
				}
				if err := rn.Queue.RemoveMany(ctx, ids); err != nil {
					return err
				}
			}
			continue
		}
		if err := rn.runOneBatch(ctx, handler, batch, opts); err != nil {
			return err
		}
	}
	return nil
}

// nextBatch implements spec.md §4.3 step 1: gather ready jobs of one
// handler at one priority level, tolerating up to 10 intervening
// mismatched jobs, and halting batch growth at the handler's
// MaxBatchSize or once budget would go non-positive, whichever comes
// first.
func (rn *Runner) nextBatch(ctx context.Context, budget int) (batch []jobqueue.Job, prefix string, handler Handler, registered bool, err error) {
	gotAnchor := false
	var anchorPriority int64
	var anchorHandler string
	mismatchStreak := 0
	maxBatchSize := 1
	remaining := budget

	addJob := func(job jobqueue.Job) bool {
		batch = append(batch, job)
		remaining--
		return remaining > 0 && len(batch) < maxBatchSize
	}

	err = rn.Queue.EnumerateReady(ctx, func(job jobqueue.Job) bool {
		if !gotAnchor {
			gotAnchor = true
			anchorPriority = job.Priority
			anchorHandler = job.Handler
			prefix = handlerPrefix(job.Handler)
			handler, registered = rn.Handlers[prefix]
			if registered {
				maxBatchSize = handler.MaxBatchSize()
				if maxBatchSize <= 0 {
					maxBatchSize = 1
				}
			} else {
				maxBatchSize = 1 << 30
			}
			return addJob(job)
		}
		if job.Priority != anchorPriority {
			return false
		}
		if job.Handler != anchorHandler {
			mismatchStreak++
			return mismatchStreak <= 10
		}
		mismatchStreak = 0
		return addJob(job)
	})
	return
}

// runOneBatch implements spec.md §4.3 steps 3-6: pre-execution
// rescheduling, adaptive batch splitting, per-job execution, end_batch.
func (rn *Runner) runOneBatch(ctx context.Context, handler Handler, batch []jobqueue.Job, opts RunJobOptions) error {
	now := rn.Clock.Now()

	original := make(map[int64]jobqueue.Job, len(batch))
	entries := make([]jobqueue.RescheduleEntry, len(batch))
	for i, job := range batch {
		original[job.ID] = job
		entries[i] = rescheduleBeforeTrying(job, now, opts.BackoffRandomness, opts.Rand)
	}
	if err := rn.Queue.RescheduleMany(ctx, entries); err != nil {
		return err
	}
	for i := range batch {
		batch[i].LastAttemptResult = entries[i].NewLastAttemptResult
	}

	current := batch
	for {
		err := handler.StartBatch(ctx, current, rn.Queue)
		if err == nil {
			break
		}
		if len(current) == 1 {
			return rn.finishFailedJob(ctx, current[0], err, now, opts)
		}
		rn.Log.WithError(err).WithField("batch_size", len(current)).
			Warn("start_batch failed; splitting batch")
		half := len(current) / 2
		cancelled := current[half:]
		restore := make([]jobqueue.RescheduleEntry, len(cancelled))
		for i, job := range cancelled {
			orig := original[job.ID]
			restore[i] = jobqueue.RescheduleEntry{
				ID:                   orig.ID,
				NewRunAfter:          orig.RunAfter,
				NewLastAttemptResult: orig.LastAttemptResult,
			}
		}
		if err := rn.Queue.RescheduleMany(ctx, restore); err != nil {
			return err
		}
		current = current[:half]
	}

	for _, job := range current {
		if err := rn.runSingleJob(ctx, job, now, opts); err != nil {
			return err
		}
	}
	return handler.EndBatch(ctx, rn.Queue)
}

func (rn *Runner) runSingleJob(ctx context.Context, job jobqueue.Job, now time.Time, opts RunJobOptions) error {
	prefix := handlerPrefix(job.Handler)
	start := rn.Clock.Now()
	err := rn.Handlers[prefix].Run(ctx, job, rn.Queue, opts.DryRun)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.JobRunDuration.WithLabelValues(prefix, outcome).Observe(rn.Clock.Now().Sub(start).Seconds())
	if err == nil {
		if !opts.DryRun {
			return rn.Queue.Remove(ctx, job.ID)
		}
		return nil
	}
	return rn.finishFailedJob(ctx, job, err, now, opts)
}

// finishFailedJob reschedules job after a run (or single-job
// start_batch) failure.
func (rn *Runner) finishFailedJob(ctx context.Context, job jobqueue.Job, err error, now time.Time, opts RunJobOptions) error {
	var jobErr *JobExecutionError
	if !errors.As(err, &jobErr) {
		jobErr = NewSourceError(Warning, "internal", "unstructured", err.Error(), minRetryDelay)
	}
	rn.Log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"handler": job.Handler,
		"level":   jobErr.Level.String(),
	}).Warn(jobErr.Description)
	metrics.JobFailuresTotal.WithLabelValues(handlerPrefix(job.Handler), jobErr.Level.String()).Inc()
	entry := rescheduleAfterFailure(job, jobErr, now, opts.BackoffRandomness, opts.Rand)
	return rn.Queue.RescheduleMany(ctx, []jobqueue.RescheduleEntry{entry})
}
