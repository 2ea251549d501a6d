package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/metrics"
	"github.com/orlodrim/wikibots-go/pkg/store"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

const schema = `
CREATE TABLE IF NOT EXISTS job (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	handler             TEXT NOT NULL,
	key                 TEXT NOT NULL DEFAULT '',
	priority            INTEGER NOT NULL DEFAULT 0,
	inserted_on         INTEGER NOT NULL,
	run_after           INTEGER NOT NULL DEFAULT 0,
	ready               INTEGER NOT NULL DEFAULT 0,
	parameters          TEXT NOT NULL DEFAULT '',
	last_attempt        INTEGER NOT NULL DEFAULT 0,
	last_attempt_result TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_job_not_ready ON job(run_after) WHERE ready=0;
CREATE INDEX IF NOT EXISTS idx_job_ready ON job(priority, run_after, id) WHERE ready=1;
CREATE INDEX IF NOT EXISTS idx_job_handler_key ON job(handler, key);

CREATE TABLE IF NOT EXISTS job_flags (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// ErrEmptyHandler is returned by Insert/InsertMany for a job with an
// empty Handler field.
var ErrEmptyHandler = errors.New("jobqueue: handler must not be empty")

// Queue is the durable job store.
type Queue struct {
	db    *store.DB
	clock clock.Clock
	log   *logrus.Entry
}

// Open opens or creates the job queue file at path.
func Open(path string, c clock.Clock) (*Queue, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobqueue: create schema: %w", err)
	}
	return &Queue{db: db, clock: c, log: logrus.WithField("component", "jobqueue")}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Insert adds a single job, honoring mode for an existing (handler,
// key). It returns the row's id (the existing id, on an
// IgnoreIfExists hit).
func (q *Queue) Insert(ctx context.Context, job Job, mode InsertMode) (int64, error) {
	var id int64
	err := q.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = q.insertTx(tx, job, mode, q.clock.Now())
		return err
	})
	return id, err
}

// InsertMany adds jobs in a single transaction.
func (q *Queue) InsertMany(ctx context.Context, jobs []Job, mode InsertMode) ([]int64, error) {
	ids := make([]int64, len(jobs))
	now := q.clock.Now()
	err := q.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i, job := range jobs {
			id, err := q.insertTx(tx, job, mode, now)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	return ids, err
}

func (q *Queue) insertTx(tx *sqlx.Tx, job Job, mode InsertMode, now time.Time) (int64, error) {
	if job.Handler == "" {
		return 0, ErrEmptyHandler
	}
	if mode == IgnoreIfExists || mode == OverwriteIfExists {
		var existingID int64
		err := tx.QueryRow(`SELECT id FROM job WHERE handler=? AND key=? ORDER BY id DESC LIMIT 1`,
			job.Handler, job.Key).Scan(&existingID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		if err == nil {
			if mode == IgnoreIfExists {
				return existingID, nil
			}
			if _, err := tx.Exec(`DELETE FROM job WHERE id=?`, existingID); err != nil {
				return 0, err
			}
		}
	}

	insertedOn := job.InsertedOn
	if insertedOn.IsZero() {
		insertedOn = now
	}
	ready := 0
	if job.Ready(now) {
		ready = 1
	}
	res, err := tx.Exec(`
		INSERT INTO job (handler, key, priority, inserted_on, run_after, ready, parameters, last_attempt, last_attempt_result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Handler, job.Key, job.Priority, toUnix(insertedOn), toUnix(job.RunAfter), ready,
		job.Parameters.String(), toUnix(job.LastAttempt), job.LastAttemptResult.String(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Remove deletes a single job by id. Removing a nonexistent id is not an
// error.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	return q.RemoveMany(ctx, []int64{id})
}

// RemoveMany deletes jobs by id in one transaction, applying the
// start_from_most_recent fairness flip described in spec.md §4.2.
func (q *Queue) RemoveMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return q.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		firstReadyID, err := q.peekGlobalFirstReady(tx, q.clock.Now())
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM job WHERE id=?`, id); err != nil {
				return err
			}
		}
		return q.maybeFlipFairness(tx, ids, firstReadyID)
	})
}

// RescheduleMany applies a batch of reschedule entries in one
// transaction, applying the same fairness flip as RemoveMany.
func (q *Queue) RescheduleMany(ctx context.Context, entries []RescheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := q.clock.Now()
	return q.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		firstReadyID, err := q.peekGlobalFirstReady(tx, now)
		if err != nil {
			return err
		}
		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
			ready := 0
			if !e.NewRunAfter.After(now) {
				ready = 1
			}
			if e.NewPriority != nil {
				if _, err := tx.Exec(`UPDATE job SET priority=?, run_after=?, ready=?, last_attempt_result=? WHERE id=?`,
					*e.NewPriority, toUnix(e.NewRunAfter), ready, e.NewLastAttemptResult.String(), e.ID); err != nil {
					return err
				}
			} else {
				if _, err := tx.Exec(`UPDATE job SET run_after=?, ready=?, last_attempt_result=? WHERE id=?`,
					toUnix(e.NewRunAfter), ready, e.NewLastAttemptResult.String(), e.ID); err != nil {
					return err
				}
			}
		}
		return q.maybeFlipFairness(tx, ids, firstReadyID)
	})
}

// peekGlobalFirstReady returns the id of the job that would be visited
// first by EnumerateReady at this moment, or 0 if none is ready.
func (q *Queue) peekGlobalFirstReady(tx *sqlx.Tx, now time.Time) (int64, error) {
	if err := promoteReady(tx, now); err != nil {
		return 0, err
	}
	startFromMostRecent, err := readFlag(tx, "start_from_most_recent")
	if err != nil {
		return 0, err
	}
	var minPriority sql.NullInt64
	if err := tx.QueryRow(`SELECT MIN(priority) FROM job WHERE ready=1`).Scan(&minPriority); err != nil {
		return 0, err
	}
	if !minPriority.Valid {
		return 0, nil
	}
	order := "run_after ASC, id ASC"
	if startFromMostRecent {
		order = "run_after DESC, id DESC"
	}
	var id int64
	err = tx.QueryRow(`SELECT id FROM job WHERE ready=1 AND priority=? ORDER BY `+order+` LIMIT 1`, minPriority.Int64).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// maybeFlipFairness implements the start_from_most_recent policy: if
// the last job in the batch was the unique globally-first ready job at
// call time, flip the flag.
func (q *Queue) maybeFlipFairness(tx *sqlx.Tx, batchIDs []int64, firstReadyID int64) error {
	if firstReadyID == 0 || len(batchIDs) == 0 {
		return nil
	}
	last := batchIDs[len(batchIDs)-1]
	if last != firstReadyID {
		return nil
	}
	current, err := readFlag(tx, "start_from_most_recent")
	if err != nil {
		return err
	}
	return writeFlag(tx, "start_from_most_recent", !current)
}

func promoteReady(tx *sqlx.Tx, now time.Time) error {
	_, err := tx.Exec(`UPDATE job SET ready=1 WHERE ready=0 AND run_after<=?`, now.Unix())
	return err
}

func readFlag(tx *sqlx.Tx, name string) (bool, error) {
	var v int64
	err := tx.QueryRow(`SELECT value FROM job_flags WHERE name=?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func writeFlag(tx *sqlx.Tx, name string, v bool) error {
	n := int64(0)
	if v {
		n = 1
	}
	_, err := tx.Exec(`INSERT INTO job_flags(name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value=excluded.value`, name, n)
	return err
}

// GetByHandlerAndKey returns the most recently inserted job with the
// given (handler, key), if any.
func (q *Queue) GetByHandlerAndKey(ctx context.Context, handler, key string) (Job, bool, error) {
	var job Job
	found := false
	err := q.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		var row jobRow
		err := tx.Get(&row, `SELECT * FROM job WHERE handler=? AND key=? ORDER BY id DESC LIMIT 1`, handler, key)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		job, err = row.toJob()
		found = err == nil
		return err
	})
	return job, found, err
}

// FirstJobTime returns the earliest time at which the next job becomes
// ready: now if anything is ready, else the smallest run_after, else
// the zero time if the queue is empty.
func (q *Queue) FirstJobTime(ctx context.Context) (time.Time, error) {
	now := q.clock.Now()
	var t time.Time
	err := q.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		if err := promoteReady(tx, now); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRow(`SELECT COUNT(1) FROM job WHERE ready=1`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			t = now
			return nil
		}
		var minRunAfter sql.NullInt64
		if err := tx.QueryRow(`SELECT MIN(run_after) FROM job WHERE ready=0`).Scan(&minRunAfter); err != nil {
			return err
		}
		if minRunAfter.Valid {
			t = fromUnix(minRunAfter.Int64)
		}
		return nil
	})
	return t, err
}

// ReportMetrics updates metrics.QueueReadyJobs and
// metrics.QueueOldestReadyAgeSeconds from the current state of the
// queue, grouped by handler prefix. Intended to be called periodically
// from a bot's main loop, not from the hot dispatch path.
func (q *Queue) ReportMetrics(ctx context.Context) error {
	now := q.clock.Now()
	type row struct {
		Handler string `db:"handler"`
		RunAfter int64 `db:"run_after"`
	}
	var rows []row
	err := q.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		if err := promoteReady(tx, now); err != nil {
			return err
		}
		return tx.SelectContext(ctx, &rows, `SELECT handler, run_after FROM job WHERE ready=1`)
	})
	if err != nil {
		return err
	}
	counts := map[string]int{}
	oldest := map[string]int64{}
	for _, r := range rows {
		prefix := r.Handler
		if i := strings.IndexByte(r.Handler, '.'); i >= 0 {
			prefix = r.Handler[:i]
		}
		counts[prefix]++
		age := now.Unix() - r.RunAfter
		if age > oldest[prefix] {
			oldest[prefix] = age
		}
	}
	for prefix, count := range counts {
		metrics.QueueReadyJobs.WithLabelValues(prefix).Set(float64(count))
		metrics.QueueOldestReadyAgeSeconds.WithLabelValues(prefix).Set(float64(oldest[prefix]))
	}
	return nil
}

type jobRow struct {
	ID                int64  `db:"id"`
	Handler           string `db:"handler"`
	Key               string `db:"key"`
	Priority          int64  `db:"priority"`
	InsertedOn        int64  `db:"inserted_on"`
	RunAfter          int64  `db:"run_after"`
	Ready             int64  `db:"ready"`
	Parameters        string `db:"parameters"`
	LastAttempt       int64  `db:"last_attempt"`
	LastAttemptResult string `db:"last_attempt_result"`
}

func (r jobRow) toJob() (Job, error) {
	params, err := wikivalue.ParseString(r.Parameters)
	if err != nil {
		return Job{}, fmt.Errorf("jobqueue: parse parameters for job %d: %w", r.ID, err)
	}
	result, err := wikivalue.ParseString(r.LastAttemptResult)
	if err != nil {
		return Job{}, fmt.Errorf("jobqueue: parse last_attempt_result for job %d: %w", r.ID, err)
	}
	return Job{
		ID:                r.ID,
		Handler:           r.Handler,
		Key:               r.Key,
		Priority:          r.Priority,
		InsertedOn:        fromUnix(r.InsertedOn),
		RunAfter:          fromUnix(r.RunAfter),
		Parameters:        params,
		LastAttempt:       fromUnix(r.LastAttempt),
		LastAttemptResult: result,
	}, nil
}
