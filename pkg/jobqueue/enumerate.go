package jobqueue

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// JobCallback is invoked once per visited job. Returning false halts
// enumeration.
type JobCallback func(Job) bool

// EnumerateReady visits every ready job, interleaving oldest and newest
// within each priority level as described in spec.md §4.2: first
// promote newly-ready rows, then walk ascending priorities, and within
// each priority alternate between the oldest and newest surviving
// entries (the starting side controlled by the persistent
// start_from_most_recent flag) until the two ends meet.
func (q *Queue) EnumerateReady(ctx context.Context, cb JobCallback) error {
	now := q.clock.Now()
	return q.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		if err := promoteReady(tx, now); err != nil {
			return err
		}
		startFromMostRecent, err := readFlag(tx, "start_from_most_recent")
		if err != nil {
			return err
		}

		priorities, err := readyPriorities(tx)
		if err != nil {
			return err
		}
		for _, priority := range priorities {
			rows, err := tx.Queryx(`SELECT * FROM job WHERE ready=1 AND priority=? ORDER BY run_after ASC, id ASC`, priority)
			if err != nil {
				return err
			}
			var jobs []Job
			for rows.Next() {
				var r jobRow
				if err := rows.StructScan(&r); err != nil {
					rows.Close()
					return err
				}
				job, err := r.toJob()
				if err != nil {
					rows.Close()
					return err
				}
				jobs = append(jobs, job)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()

			halt := false
			i, j := 0, len(jobs)-1
			turnForward := !startFromMostRecent
			for i <= j {
				var job Job
				if turnForward {
					job = jobs[i]
					i++
				} else {
					job = jobs[j]
					j--
				}
				turnForward = !turnForward
				if !cb(job) {
					halt = true
					break
				}
			}
			if halt {
				break
			}
		}
		return nil
	})
}

func readyPriorities(tx *sqlx.Tx) ([]int64, error) {
	rows, err := tx.Query(`SELECT DISTINCT priority FROM job WHERE ready=1 ORDER BY priority ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var priorities []int64
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		priorities = append(priorities, p)
	}
	return priorities, rows.Err()
}

// EnumerateAll visits every job in the queue, ready or not, in
// ascending id order.
func (q *Queue) EnumerateAll(ctx context.Context, cb JobCallback) error {
	return q.enumerateQuery(ctx, `SELECT * FROM job ORDER BY id ASC`, cb)
}

// EnumerateByHandler visits every job with an exact handler match, in
// ascending id order.
func (q *Queue) EnumerateByHandler(ctx context.Context, handler string, cb JobCallback) error {
	return q.enumerateQuery(ctx, `SELECT * FROM job WHERE handler=? ORDER BY id ASC`, cb, handler)
}

func (q *Queue) enumerateQuery(ctx context.Context, query string, cb JobCallback, args ...interface{}) error {
	return q.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := tx.Queryx(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r jobRow
			if err := rows.StructScan(&r); err != nil {
				return err
			}
			job, err := r.toJob()
			if err != nil {
				return err
			}
			if !cb(job) {
				break
			}
		}
		return rows.Err()
	})
}
