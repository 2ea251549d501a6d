package changelog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/orlodrim/wikibots-go/pkg/store"
)

// Reader is a read-only cursor interface over a changelog Store's
// underlying file. It shares the Store's handle, so its reads go through
// the same single connection as the Store's writes and wait for any
// transaction in progress there.
type Reader struct {
	db *store.DB
}

// NewReader wraps an already-open Store for reading. A Reader never
// writes, so it is safe to share across goroutines.
func NewReader(s *Store) *Reader {
	return &Reader{db: s.db}
}

// EnumerateOptions configures Enumerate.
type EnumerateOptions struct {
	KindMask       KindMask
	PropertyMask   PropertyMask
	StartTimestamp *int64
	EndTimestamp   *int64
	Limit          int // 0 = unlimited

	// ContinueToken is read on entry and, if non-nil, updated on exit to
	// the id of the last row actually delivered (unchanged if nothing
	// was delivered).
	ContinueToken *Token
}

// Callback is invoked once per delivered Change. Returning false halts
// enumeration early.
type Callback func(Change) bool

// Enumerate implements the reader contract of spec.md §4.1: a
// restartable, strictly-increasing-change_id cursor.
func (r *Reader) Enumerate(ctx context.Context, opts EnumerateOptions, cb Callback) error {
	if opts.KindMask == 0 {
		opts.KindMask = MaskAll
	}
	return r.db.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		var floorID int64
		tokenGiven := opts.ContinueToken != nil && *opts.ContinueToken != ""
		if tokenGiven {
			id, ok := opts.ContinueToken.ChangeID()
			if !ok {
				return fmt.Errorf("changelog: malformed continue token %q", *opts.ContinueToken)
			}
			floorID = id
		} else if opts.StartTimestamp == nil {
			maxID, err := maxChangeID(tx)
			if err != nil {
				return err
			}
			if opts.ContinueToken != nil {
				*opts.ContinueToken = NewToken(maxID)
			}
			return nil
		}

		query, args := buildEnumerateQuery(floorID, opts)
		rows, err := tx.Queryx(query, args...)
		if err != nil {
			return fmt.Errorf("changelog: enumerate query: %w", err)
		}
		defer rows.Close()

		var lastDelivered int64 = -1
		delivered := 0
		for rows.Next() {
			var row changeRow
			if err := rows.StructScan(&row); err != nil {
				return fmt.Errorf("changelog: scan: %w", err)
			}
			c := row.toChange(opts.PropertyMask)
			lastDelivered = c.ChangeID
			delivered++
			if !cb(c) {
				break
			}
			if opts.Limit > 0 && delivered >= opts.Limit {
				break
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if opts.ContinueToken != nil && lastDelivered >= 0 {
			*opts.ContinueToken = NewToken(lastDelivered)
		}
		return nil
	})
}

func maxChangeID(tx *sqlx.Tx) (int64, error) {
	var id int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(change_id), 0) FROM changelog`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func buildEnumerateQuery(floorID int64, opts EnumerateOptions) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`SELECT change_id, timestamp, title, user, comment, kind, revid, old_revid, size,
		log_id, log_kind, log_action, new_title, log_params FROM changelog WHERE change_id > ?`)
	args := []interface{}{floorID}

	if opts.StartTimestamp != nil {
		b.WriteString(` AND timestamp >= ?`)
		args = append(args, *opts.StartTimestamp)
	}
	if opts.EndTimestamp != nil {
		b.WriteString(` AND timestamp <= ?`)
		args = append(args, *opts.EndTimestamp)
	}

	var kinds []string
	for _, k := range []Kind{KindEdit, KindNewPage, KindLog} {
		if opts.KindMask.allows(k) {
			kinds = append(kinds, "?")
			args = append(args, string(k))
		}
	}
	if len(kinds) > 0 {
		b.WriteString(" AND kind IN (" + strings.Join(kinds, ",") + ")")
	}

	b.WriteString(" ORDER BY change_id ASC")
	if opts.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", opts.Limit))
	}
	return b.String(), args
}

type changeRow struct {
	ChangeID  int64  `db:"change_id"`
	Timestamp int64  `db:"timestamp"`
	Title     string `db:"title"`
	User      string `db:"user"`
	Comment   string `db:"comment"`
	Kind      string `db:"kind"`
	RevID     int64  `db:"revid"`
	OldRevID  int64  `db:"old_revid"`
	Size      int64  `db:"size"`
	LogID     int64  `db:"log_id"`
	LogKind   string `db:"log_kind"`
	LogAction string `db:"log_action"`
	NewTitle  string `db:"new_title"`
	LogParams string `db:"log_params"`
}

func (row changeRow) toChange(mask PropertyMask) Change {
	c := Change{
		ChangeID:  row.ChangeID,
		Timestamp: row.Timestamp,
		Kind:      Kind(row.Kind),
		Title:     row.Title,
		NewRevID:  row.RevID,
		OldRevID:  row.OldRevID,
		NewSize:   row.Size,
	}
	if mask == 0 {
		mask = PropAll
	}
	if mask&PropUser != 0 {
		c.User = row.User
	}
	if mask&PropComment != 0 {
		c.Comment = row.Comment
	}
	if mask&PropLogDetails != 0 {
		c.LogID = row.LogID
		c.LogKind = LogKind(row.LogKind)
		c.LogAction = row.LogAction
		c.NewTitle = row.NewTitle
		c.LogParams = row.LogParams
	}
	return c
}

// RecentlyUpdatedPages returns the set of titles touched between start
// and end, including both endpoints of a move, optionally excluding one
// user's edits.
func (r *Reader) RecentlyUpdatedPages(ctx context.Context, start, end int64, excludedUser string) (map[string]bool, error) {
	titles := map[string]bool{}
	opts := EnumerateOptions{
		KindMask:       MaskAll,
		PropertyMask:   PropUser | PropLogDetails,
		StartTimestamp: &start,
		EndTimestamp:   &end,
	}
	err := r.Enumerate(ctx, opts, func(c Change) bool {
		if excludedUser != "" && c.User == excludedUser {
			return true
		}
		titles[c.Title] = true
		if c.Kind == KindLog && c.LogKind == LogMove && c.NewTitle != "" {
			titles[c.NewTitle] = true
		}
		return true
	})
	return titles, err
}

// LogEvent is a simplified view of a log-kind Change.
type LogEvent struct {
	Title     string
	User      string
	Timestamp int64
	LogKind   LogKind
	LogAction string
}

// RecentLogEvents returns only log entries of the given kind within
// [start, end].
func (r *Reader) RecentLogEvents(ctx context.Context, kind LogKind, start, end int64) ([]LogEvent, error) {
	var events []LogEvent
	opts := EnumerateOptions{
		KindMask:       MaskLog,
		PropertyMask:   PropAll,
		StartTimestamp: &start,
		EndTimestamp:   &end,
	}
	err := r.Enumerate(ctx, opts, func(c Change) bool {
		if c.LogKind == kind {
			events = append(events, LogEvent{
				Title:     c.Title,
				User:      c.User,
				Timestamp: c.Timestamp,
				LogKind:   c.LogKind,
				LogAction: c.LogAction,
			})
		}
		return true
	})
	return events, err
}
