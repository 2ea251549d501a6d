package changelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/metrics"
	"github.com/orlodrim/wikibots-go/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS changelog (
	change_id  INTEGER PRIMARY KEY,
	timestamp  INTEGER NOT NULL,
	title      TEXT NOT NULL,
	user       TEXT NOT NULL DEFAULT '',
	comment    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	revid      INTEGER NOT NULL DEFAULT 0,
	old_revid  INTEGER NOT NULL DEFAULT 0,
	size       INTEGER NOT NULL DEFAULT 0,
	log_id     INTEGER NOT NULL DEFAULT 0,
	log_kind   TEXT NOT NULL DEFAULT '',
	log_action TEXT NOT NULL DEFAULT '',
	new_title  TEXT NOT NULL DEFAULT '',
	log_params TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_changelog_timestamp ON changelog(timestamp);
CREATE INDEX IF NOT EXISTS idx_changelog_log ON changelog(change_id) WHERE kind='log';
`

// DefaultOverlap is the default lookback window applied to every sync
// request, absorbing the remote source's weak monotonicity.
const DefaultOverlap = 60 * time.Second

// DefaultRetention is how long committed rows are kept, measured from
// the newest committed timestamp.
const DefaultRetention = 35 * 24 * time.Hour

// Store is the durable local mirror plus its sync logic.
type Store struct {
	db        *store.DB
	clock     clock.Clock
	overlap   time.Duration
	retention time.Duration
	// secondsToIgnore guards against accepting a row whose id could
	// still be superseded by a not-yet-seen reordering; zero disables
	// the guard.
	secondsToIgnore time.Duration
	log             *logrus.Entry
	path            string
}

// Option customizes a Store at construction.
type Option func(*Store)

func WithOverlap(d time.Duration) Option          { return func(s *Store) { s.overlap = d } }
func WithRetention(d time.Duration) Option        { return func(s *Store) { s.retention = d } }
func WithSecondsToIgnore(d time.Duration) Option  { return func(s *Store) { s.secondsToIgnore = d } }
func WithLogger(l *logrus.Entry) Option           { return func(s *Store) { s.log = l } }

// Open opens or creates the changelog store at path.
func Open(path string, c clock.Clock, opts ...Option) (*Store, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("changelog: create schema: %w", err)
	}
	s := &Store{
		db:        db,
		clock:     c,
		overlap:   DefaultOverlap,
		retention: DefaultRetention,
		log:       logrus.WithField("component", "changelog"),
		path:      path,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

type localMax struct {
	MaxID int64 `db:"max_id"`
	MaxTS int64 `db:"max_ts"`
}

func (s *Store) currentMax(tx *sqlx.Tx) (localMax, error) {
	var m localMax
	row := tx.QueryRow(`SELECT COALESCE(MAX(change_id), 0), COALESCE(MAX(timestamp), 0) FROM changelog`)
	if err := row.Scan(&m.MaxID, &m.MaxTS); err != nil {
		return localMax{}, err
	}
	return m, nil
}

// UpdateFromSource implements the sync contract of spec.md §4.1.
func (s *Store) UpdateFromSource(ctx context.Context, source Source) error {
	nowWall := s.clock.Now()
	var newestCommittedTS int64
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		localMax, err := s.currentMax(tx)
		if err != nil {
			return fmt.Errorf("changelog: read local max: %w", err)
		}
		newestCommittedTS = localMax.MaxTS

		if localMax.MaxID == 0 {
			c, ok, err := source.FetchMostRecent(ctx)
			if err != nil {
				return fmt.Errorf("changelog: fetch most recent: %w", err)
			}
			if !ok {
				return nil
			}
			newestCommittedTS = c.Timestamp
			return insertRow(tx, c)
		}

		minTS := localMax.MaxTS - int64(s.overlap/time.Second)
		changes, err := source.FetchSince(ctx, minTS)
		if err != nil {
			return fmt.Errorf("changelog: fetch since %d: %w", minTS, err)
		}

		cutoffID := int64(-1) // -1 means "no cutoff" (+inf)
		hasCutoff := false
		if s.secondsToIgnore > 0 {
			ignoreFloor := nowWall.Unix() - int64(s.secondsToIgnore/time.Second)
			minIgnoredID := int64(-1)
			for _, c := range changes {
				if c.Timestamp > ignoreFloor {
					if minIgnoredID == -1 || c.ChangeID < minIgnoredID {
						minIgnoredID = c.ChangeID
					}
				}
			}
			if minIgnoredID != -1 {
				cutoffID = minIgnoredID - 1
				hasCutoff = true
			}
		}

		newestTS := localMax.MaxTS
		for _, c := range changes {
			if hasCutoff && c.ChangeID > cutoffID {
				continue
			}
			if c.ChangeID <= localMax.MaxID {
				exists, err := rowExists(tx, c.ChangeID)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				s.log.WithFields(logrus.Fields{
					"change_id": c.ChangeID,
					"max_id":    localMax.MaxID,
				}).Warn("reordered insertion")
				continue
			}
			if err := insertRow(tx, c); err != nil {
				return fmt.Errorf("changelog: insert %d: %w", c.ChangeID, err)
			}
			if c.Timestamp > newestTS {
				newestTS = c.Timestamp
			}
		}

		newestCommittedTS = newestTS
		cutoff := newestTS - int64(s.retention/time.Second)
		if _, err := tx.Exec(`DELETE FROM changelog WHERE timestamp < ?`, cutoff); err != nil {
			return fmt.Errorf("changelog: prune: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if newestCommittedTS > 0 {
		lag := nowWall.Unix() - newestCommittedTS
		metrics.ChangeLogLagSeconds.WithLabelValues(s.path).Set(float64(lag))
	}
	return nil
}

func rowExists(tx *sqlx.Tx, changeID int64) (bool, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM changelog WHERE change_id = ?`, changeID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func insertRow(tx *sqlx.Tx, c Change) error {
	_, err := tx.Exec(`
		INSERT INTO changelog
			(change_id, timestamp, title, user, comment, kind, revid, old_revid, size,
			 log_id, log_kind, log_action, new_title, log_params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ChangeID, c.Timestamp, c.Title, c.User, c.Comment, string(c.Kind),
		c.NewRevID, c.OldRevID, c.NewSize,
		c.LogID, string(c.LogKind), c.LogAction, c.NewTitle, c.LogParams,
	)
	return err
}
