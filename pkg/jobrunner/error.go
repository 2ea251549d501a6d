// Package jobrunner pulls ready jobs from a jobqueue.Queue, batches
// them per handler, executes them with crash-loop protection and
// adaptive batch splitting, and reschedules failures with exponential
// backoff.
//
// Grounded on
// _examples/original_source/orlodrimbot/wiki_job_runner/job_queue/job_runner.{h,cpp}.
package jobrunner

import (
	"fmt"
	"time"

	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

// ErrorLevel classifies how serious a JobExecutionError is, purely for
// logging; it does not change retry behavior on its own.
type ErrorLevel int

const (
	Info ErrorLevel = iota
	Warning
	Error
)

func (l ErrorLevel) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// InfiniteDelay is the sentinel MinRetryDelay meaning "do not retry for
// the practical lifetime of the system". time.Duration cannot represent
// 1000 years, so this is the largest representable duration, treated as
// a distinguished value rather than a literal span of time.
const InfiniteDelay time.Duration = 1<<63 - 1

// JobExecutionError is the structured failure a Handler.Run returns.
type JobExecutionError struct {
	Level          ErrorLevel
	Description    string
	StructuredInfo wikivalue.Value
	NewPriority    *int64
	MinRetryDelay  time.Duration
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Level, e.Description)
}

// NewSourceError builds the conventional {<source>Error: {code,
// description}} structured payload the spec documents for
// last_attempt_result.failure.
func NewSourceError(level ErrorLevel, source, code, description string, minRetryDelay time.Duration) *JobExecutionError {
	info := wikivalue.NewMap().Set(source+"Error", wikivalue.NewMap().
		Set("code", wikivalue.String(code)).
		Set("description", wikivalue.String(description)).
		Build()).Build()
	return &JobExecutionError{
		Level:          level,
		Description:    description,
		StructuredInfo: info,
		MinRetryDelay:  minRetryDelay,
	}
}
