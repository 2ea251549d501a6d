package jobrunner

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
)

func newTestQueue(t *testing.T) (*jobqueue.Queue, *clock.Stepped) {
	t.Helper()
	c := clock.NewStepped(time.Unix(2_000_000, 0).UTC(), time.Second)
	q, err := jobqueue.Open(filepath.Join(t.TempDir(), "jobs.sqlite"), c)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, c
}

// countingHandler succeeds on every Run call and records the keys it saw,
// in the order Run was invoked.
type countingHandler struct {
	BaseHandler
	ran []string
}

func (h *countingHandler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	h.ran = append(h.ran, job.Key)
	return nil
}

func TestRunJobsBasicSuccessPath(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	_, err := q.Insert(ctx, jobqueue.Job{Handler: "generate.x", Key: "a"}, jobqueue.IgnoreDups)
	require.NoError(t, err)
	_, err = q.Insert(ctx, jobqueue.Job{Handler: "generate.y", Key: "b"}, jobqueue.IgnoreDups)
	require.NoError(t, err)

	h := &countingHandler{}
	rn := NewRunner(q, map[string]Handler{"generate": h}, clock.System{})
	require.NoError(t, rn.RunJobs(ctx, RunJobOptions{MaxCount: 10}))

	assert.ElementsMatch(t, []string{"a", "b"}, h.ran)

	var remaining []string
	require.NoError(t, q.EnumerateReady(ctx, func(j jobqueue.Job) bool {
		remaining = append(remaining, j.Key)
		return true
	}))
	assert.Empty(t, remaining, "successfully run jobs must be removed from the queue")
}

// failingRunHandler fails every job it runs with a structured,
// finite-retry error.
type failingRunHandler struct {
	BaseHandler
}

func (h *failingRunHandler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	return NewSourceError(Warning, "test", "boom", "always fails", time.Minute)
}

func TestRunJobsFailureReschedulesRatherThanDeletes(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Insert(ctx, jobqueue.Job{Handler: "broken.x", Key: "a"}, jobqueue.IgnoreDups)
	require.NoError(t, err)

	h := &failingRunHandler{}
	rn := NewRunner(q, map[string]Handler{"broken": h}, c)
	require.NoError(t, rn.RunJobs(ctx, RunJobOptions{MaxCount: 1, Rand: nil}))

	job, found, err := q.GetByHandlerAndKey(ctx, "broken.x", "a")
	require.NoError(t, err)
	require.True(t, found, "failed job must still exist")
	assert.Equal(t, id, job.ID)
	assert.True(t, job.RunAfter.After(c.Now()), "failed job must be rescheduled into the future")

	count, delay := attemptsField(job.LastAttemptResult, "failedAttempts")
	assert.Equal(t, int64(1), count)
	assert.Greater(t, delay, time.Duration(0))
}

// poisonStartBatchHandler fails StartBatch for any batch containing the
// poisoned key, but succeeds for batches that don't, exercising adaptive
// batch splitting (spec.md §4.3 step 4).
type poisonStartBatchHandler struct {
	BaseHandler
	poisoned string
	ran      []string
}

func (h *poisonStartBatchHandler) MaxBatchSize() int { return 10 }

func (h *poisonStartBatchHandler) StartBatch(ctx context.Context, jobs []jobqueue.Job, queue *jobqueue.Queue) error {
	for _, j := range jobs {
		if j.Key == h.poisoned {
			return NewSourceError(Error, "test", "poison", "batch contains poison job", time.Minute)
		}
	}
	return nil
}

func (h *poisonStartBatchHandler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	h.ran = append(h.ran, job.Key)
	return nil
}

// TestRunJobsSplitsAroundPoisonJob reproduces the mechanism of spec.md §8
// scenario R2: a job that makes start_batch fail is isolated from its
// batch-mates via halving, its mates still execute, and it survives in
// the queue (rescheduled) rather than being silently dropped.
func TestRunJobsSplitsAroundPoisonJob(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()
	for _, key := range []string{"a", "poison", "b", "c"} {
		_, err := q.Insert(ctx, jobqueue.Job{Handler: "generate.x", Key: key}, jobqueue.IgnoreDups)
		require.NoError(t, err)
	}

	h := &poisonStartBatchHandler{poisoned: "poison"}
	rn := NewRunner(q, map[string]Handler{"generate": h}, c)
	require.NoError(t, rn.RunJobs(ctx, RunJobOptions{MaxCount: 10}))

	assert.NotContains(t, h.ran, "poison", "the poison job itself must never execute")
	assert.Subset(t, []string{"a", "b", "c"}, h.ran)

	job, found, err := q.GetByHandlerAndKey(ctx, "generate.x", "poison")
	require.NoError(t, err)
	require.True(t, found, "the poison job must remain in the queue rather than being deleted")
	assert.True(t, job.RunAfter.After(c.Now()))
}

// bigBatchHandler allows batches up to 10 jobs, to exercise MaxCount as
// a job budget that can cut a batch short before MaxBatchSize does.
type bigBatchHandler struct {
	BaseHandler
	ran []string
}

func (h *bigBatchHandler) MaxBatchSize() int { return 10 }

func (h *bigBatchHandler) Run(ctx context.Context, job jobqueue.Job, queue *jobqueue.Queue, dryRun bool) error {
	h.ran = append(h.ran, job.Key)
	return nil
}

// TestRunJobsMaxCountBoundsBatchGrowth reproduces
// job_runner.cpp's runOneBatchOfJobs, where maxCount is decremented for
// every job pulled into a batch and its continue-condition is
// "maxCount > 0 && jobs.size() < handlerBatchSize": a single RunJobs
// call with MaxCount 3 against a handler whose MaxBatchSize is 10 must
// run at most 3 jobs, not up to 10.
func TestRunJobsMaxCountBoundsBatchGrowth(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		_, err := q.Insert(ctx, jobqueue.Job{Handler: "big.x", Key: key}, jobqueue.IgnoreDups)
		require.NoError(t, err)
	}

	h := &bigBatchHandler{}
	rn := NewRunner(q, map[string]Handler{"big": h}, c)
	require.NoError(t, rn.RunJobs(ctx, RunJobOptions{MaxCount: 3}))

	assert.Len(t, h.ran, 3, "MaxCount must cap batch growth even though MaxBatchSize allows more")

	var remaining int
	require.NoError(t, q.EnumerateReady(ctx, func(j jobqueue.Job) bool {
		remaining++
		return true
	}))
	assert.Equal(t, 2, remaining, "jobs beyond the MaxCount budget must remain queued for a later tick")
}

func TestRunJobsUnregisteredHandlerIsDiscarded(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()
	_, err := q.Insert(ctx, jobqueue.Job{Handler: "unknown.x", Key: "a"}, jobqueue.IgnoreDups)
	require.NoError(t, err)

	rn := NewRunner(q, map[string]Handler{}, c)
	require.NoError(t, rn.RunJobs(ctx, RunJobOptions{MaxCount: 10}))

	_, found, err := q.GetByHandlerAndKey(ctx, "unknown.x", "a")
	require.NoError(t, err)
	assert.False(t, found, "jobs for an unregistered handler must be discarded")
}

func TestRunJobsDryRunDoesNotMutateQueue(t *testing.T) {
	q, c := newTestQueue(t)
	ctx := context.Background()
	_, err := q.Insert(ctx, jobqueue.Job{Handler: "generate.x", Key: "a"}, jobqueue.IgnoreDups)
	require.NoError(t, err)

	h := &countingHandler{}
	rn := NewRunner(q, map[string]Handler{"generate": h}, c)
	require.NoError(t, rn.RunJobs(ctx, RunJobOptions{MaxCount: 10, DryRun: true}))

	assert.Equal(t, []string{"a"}, h.ran)
	_, found, err := q.GetByHandlerAndKey(ctx, "generate.x", "a")
	require.NoError(t, err)
	assert.True(t, found, "dry run must not remove the job from the queue")
}

func TestRescheduleBeforeTryingDoublesPreviousUnfinishedDelay(t *testing.T) {
	now := time.Unix(3_000_000, 0).UTC()
	rnd := rand.New(rand.NewSource(42))
	job := jobqueue.Job{ID: 1}
	entry := rescheduleBeforeTrying(job, now, 0, rnd)
	count, delay := attemptsField(entry.NewLastAttemptResult, "unfinishedAttempts")
	assert.Equal(t, int64(1), count)
	assert.Equal(t, minRetryDelay, delay)
	assert.Equal(t, now.Add(minRetryDelay), entry.NewRunAfter)

	job.LastAttemptResult = entry.NewLastAttemptResult
	entry2 := rescheduleBeforeTrying(job, now, 0, rnd)
	count2, delay2 := attemptsField(entry2.NewLastAttemptResult, "unfinishedAttempts")
	assert.Equal(t, int64(2), count2)
	assert.Equal(t, 2*minRetryDelay, delay2)
}

func TestRescheduleAfterFailureInfiniteDelayUsesSentinel(t *testing.T) {
	now := time.Unix(3_000_000, 0).UTC()
	rnd := rand.New(rand.NewSource(1))
	job := jobqueue.Job{ID: 1}
	failure := NewSourceError(Error, "test", "fatal", "never retry", InfiniteDelay)
	entry := rescheduleAfterFailure(job, failure, now, 0.5, rnd)
	assert.Equal(t, infiniteSentinel, entry.NewRunAfter)
	_, delay := attemptsField(entry.NewLastAttemptResult, "failedAttempts")
	assert.Equal(t, time.Duration(0), delay)
}

func TestRescheduleAfterFailureHonorsHandlerMinRetryDelay(t *testing.T) {
	now := time.Unix(3_000_000, 0).UTC()
	rnd := rand.New(rand.NewSource(1))
	job := jobqueue.Job{ID: 1}
	failure := NewSourceError(Warning, "test", "rate-limited", "slow down", 10*time.Minute)
	entry := rescheduleAfterFailure(job, failure, now, 0, rnd)
	assert.True(t, entry.NewRunAfter.Sub(now) >= 10*time.Minute)
}
