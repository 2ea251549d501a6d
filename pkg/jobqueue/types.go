// Package jobqueue implements the durable, priority-ordered,
// oldest/newest-interleaved job queue described in spec.md §4.2.
//
// Grounded on
// _examples/original_source/orlodrimbot/wiki_job_runner/job_queue/job_queue.{h,cpp}.
package jobqueue

import (
	"time"

	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

// Job is one persisted work item.
type Job struct {
	ID         int64
	Handler    string
	Key        string
	Priority   int64
	InsertedOn time.Time
	// RunAfter is the earliest execution time. A zero time means
	// "immediately".
	RunAfter time.Time

	Parameters        wikivalue.Value
	LastAttempt        time.Time
	LastAttemptResult  wikivalue.Value
}

// Ready reports whether the job is eligible to run at now.
func (j Job) Ready(now time.Time) bool {
	return j.RunAfter.IsZero() || !j.RunAfter.After(now)
}

// InsertMode controls insert's behavior on an existing (handler, key).
type InsertMode int

const (
	// IgnoreDups inserts unconditionally; duplicate (handler, key) rows
	// are permitted.
	IgnoreDups InsertMode = iota
	// OverwriteIfExists replaces the most recent existing row with the
	// same (handler, key), if any.
	OverwriteIfExists
	// IgnoreIfExists is a no-op (returning the existing id) if a row
	// with the same (handler, key) already exists.
	IgnoreIfExists
)

// RescheduleEntry is one row of a RescheduleMany call.
type RescheduleEntry struct {
	ID                   int64
	NewPriority          *int64
	NewRunAfter          time.Time
	NewLastAttemptResult wikivalue.Value
}
