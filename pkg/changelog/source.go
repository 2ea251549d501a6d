package changelog

import "context"

// Source is the remote recent-changes collaborator. It is a narrow slice
// of the wiki interface described in spec.md §6 — exactly the two calls
// UpdateFromSource needs.
type Source interface {
	// FetchSince returns all changes with Timestamp >= minTimestamp,
	// oldest-first, unbounded.
	FetchSince(ctx context.Context, minTimestamp int64) ([]Change, error)
	// FetchMostRecent returns the single most recent change, used to
	// bootstrap an empty local table without ingesting history. ok is
	// false if the remote stream is itself empty.
	FetchMostRecent(ctx context.Context) (c Change, ok bool, err error)
}
