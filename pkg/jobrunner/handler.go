package jobrunner

import (
	"context"

	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
)

// Handler is "any type exposing start_batch/run/end_batch/max_batch_size"
// per spec.md §9's static-registration design note, registered into a
// map keyed by the handler prefix (the text of Job.Handler before the
// first '.').
type Handler interface {
	// MaxBatchSize bounds how many jobs StartBatch/Run see together.
	MaxBatchSize() int
	// StartBatch prepares a batch for execution. A returned error
	// triggers adaptive batch splitting in the runner.
	StartBatch(ctx context.Context, jobs []jobqueue.Job, queue *jobqueue.Queue) error
	// Run executes a single job. A *JobExecutionError communicates a
	// structured, retryable failure; the runner wraps any other error as
	// a Warning-level error with code "unstructured" and reschedules the
	// job the same way.
	Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error
	// EndBatch is called once per batch after StartBatch has succeeded,
	// regardless of individual job outcomes.
	EndBatch(ctx context.Context, queue *jobqueue.Queue) error
}

// BaseHandler provides the spec's default max_batch_size of 1 and no-op
// StartBatch/EndBatch, for handlers that don't need batching.
type BaseHandler struct{}

func (BaseHandler) MaxBatchSize() int { return 1 }
func (BaseHandler) StartBatch(ctx context.Context, jobs []jobqueue.Job, queue *jobqueue.Queue) error {
	return nil
}
func (BaseHandler) EndBatch(ctx context.Context, queue *jobqueue.Queue) error { return nil }

// handlerPrefix returns the text of a job's Handler field before the
// first '.', the key handlers are statically registered under.
func handlerPrefix(handler string) string {
	for i := 0; i < len(handler); i++ {
		if handler[i] == '.' {
			return handler[:i]
		}
	}
	return handler
}
