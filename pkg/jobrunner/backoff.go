package jobrunner

import (
	"math/rand"
	"time"

	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

const (
	minRetryDelay  = 3 * time.Minute
	maxDoubledBase = 200 * 24 * time.Hour
)

// infiniteSentinel is the run_after stamped on a job whose
// min_retry_delay is InfiniteDelay, per spec.md §4.3.
var infiniteSentinel = time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)

func randomizeDelay(d time.Duration, randomness float64, rnd *rand.Rand) time.Duration {
	if d <= 0 {
		return 0
	}
	factor := 1 + rnd.Float64()*randomness
	return time.Duration(float64(d) * factor)
}

func attemptsField(result wikivalue.Value, structName string) (count int64, delay time.Duration) {
	attempts, ok := result.Field(structName)
	if !ok {
		return 0, 0
	}
	count = attempts.FieldOr("count", wikivalue.Null()).GetInt64(0)
	delaySec := attempts.FieldOr("retryDelay", wikivalue.Null()).GetFloat64(0)
	return count, time.Duration(delaySec * float64(time.Second))
}

// rescheduleBeforeTrying implements the pre-execution rescheduling of
// spec.md §4.3 step 3: crash-loop protection that commits before the
// handler ever runs.
func rescheduleBeforeTrying(job jobqueue.Job, now time.Time, randomness float64, rnd *rand.Rand) jobqueue.RescheduleEntry {
	prevCount, prevDelay := attemptsField(job.LastAttemptResult, "unfinishedAttempts")
	if prevCount == 0 {
		// Also consider a prior failedAttempts basis, since a job can
		// alternate between the two structures across retries.
		prevCount, prevDelay = attemptsField(job.LastAttemptResult, "failedAttempts")
	}

	base := prevDelay * 2
	if base > maxDoubledBase {
		base = maxDoubledBase
	}
	delay := randomizeDelay(base, randomness, rnd)
	if delay < minRetryDelay {
		delay = minRetryDelay
	}

	result := wikivalue.NewMap().Set("unfinishedAttempts", wikivalue.NewMap().
		Set("count", wikivalue.Int64(prevCount+1)).
		Set("retryDelay", wikivalue.Number(delay.Seconds())).
		Build()).Build()

	return jobqueue.RescheduleEntry{
		ID:                   job.ID,
		NewRunAfter:          now.Add(delay),
		NewLastAttemptResult: result,
	}
}

// rescheduleAfterFailure implements spec.md §4.3's post-failure
// rescheduling: same doubling basis as the pre-execution push, but the
// lower bound incorporates the handler's requested min_retry_delay, and
// the result structure is replaced with failedAttempts + failure.
func rescheduleAfterFailure(job jobqueue.Job, failure *JobExecutionError, now time.Time, randomness float64, rnd *rand.Rand) jobqueue.RescheduleEntry {
	prevCount, prevDelay := attemptsField(job.LastAttemptResult, "unfinishedAttempts")

	var runAfter time.Time
	var retryDelayValue wikivalue.Value
	if failure.MinRetryDelay == InfiniteDelay {
		runAfter = infiniteSentinel
		retryDelayValue = wikivalue.String("infinite")
	} else {
		base := prevDelay * 2
		if base > maxDoubledBase {
			base = maxDoubledBase
		}
		delay := randomizeDelay(base, randomness, rnd)
		lowerBound := minRetryDelay
		if failure.MinRetryDelay > lowerBound {
			lowerBound = failure.MinRetryDelay
		}
		if delay < lowerBound {
			delay = lowerBound
		}
		runAfter = now.Add(delay)
		retryDelayValue = wikivalue.Number(delay.Seconds())
	}

	result := wikivalue.NewMap().
		Set("failedAttempts", wikivalue.NewMap().
			Set("count", wikivalue.Int64(prevCount)).
			Set("retryDelay", retryDelayValue).
			Build()).
		Set("failure", failure.StructuredInfo).
		Build()

	entry := jobqueue.RescheduleEntry{
		ID:                   job.ID,
		NewRunAfter:          runAfter,
		NewLastAttemptResult: result,
	}
	if failure.NewPriority != nil {
		entry.NewPriority = failure.NewPriority
	}
	return entry
}
