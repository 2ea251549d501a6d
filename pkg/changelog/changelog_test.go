package changelog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orlodrim/wikibots-go/pkg/clock"
)

// fakeSource is an in-memory Source for tests: a fixed list of changes,
// oldest-first, with FetchSince/FetchMostRecent implemented the way the
// real wiki collaborator would.
type fakeSource struct {
	all []Change
}

func (f *fakeSource) FetchSince(ctx context.Context, minTimestamp int64) ([]Change, error) {
	var out []Change
	for _, c := range f.all {
		if c.Timestamp >= minTimestamp {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchMostRecent(ctx context.Context) (Change, bool, error) {
	if len(f.all) == 0 {
		return Change{}, false, nil
	}
	return f.all[len(f.all)-1], true, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changelog.sqlite")
	s, err := Open(path, clock.Fixed{T: time.Unix(10_000, 0).UTC()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpdateFromSourceBootstrapsWithoutHistory(t *testing.T) {
	s := newTestStore(t)
	src := &fakeSource{all: []Change{
		{ChangeID: 1, Timestamp: 100, Title: "A", Kind: KindEdit},
		{ChangeID: 2, Timestamp: 200, Title: "B", Kind: KindEdit},
	}}
	require.NoError(t, s.UpdateFromSource(context.Background(), src))

	r := NewReader(s)
	var delivered []Change
	tok := Token("")
	require.NoError(t, r.Enumerate(context.Background(), EnumerateOptions{ContinueToken: &tok}, func(c Change) bool {
		delivered = append(delivered, c)
		return true
	}))
	// Bootstrap only commits the single most recent change and the
	// first enumerate call (token empty, no start_timestamp) delivers
	// nothing, only advancing the token.
	assert.Empty(t, delivered)
	id, ok := tok.ChangeID()
	require.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestUpdateFromSourceSkipsReorderedRowsOutsideWindow(t *testing.T) {
	s := newTestStore(t)
	src := &fakeSource{all: []Change{{ChangeID: 5, Timestamp: 500, Title: "Seed", Kind: KindEdit}}}
	require.NoError(t, s.UpdateFromSource(context.Background(), src))

	// Second sync: change 4 arrives after 5 was already committed as
	// the high-water mark -- this is the "reordered insertion" case and
	// must be skipped, not inserted.
	src.all = append(src.all, Change{ChangeID: 4, Timestamp: 495, Title: "Late", Kind: KindEdit})
	require.NoError(t, s.UpdateFromSource(context.Background(), src))

	r := NewReader(s)
	var titles []string
	tok := Token("")
	zero := int64(0)
	require.NoError(t, r.Enumerate(context.Background(), EnumerateOptions{StartTimestamp: &zero, ContinueToken: &tok}, func(c Change) bool {
		titles = append(titles, c.Title)
		return true
	}))
	assert.NotContains(t, titles, "Late")
}

// TestUpdateFromSourceRoundTripsAllChangeFields stores one change of
// each kind and checks that every field, including the log-specific
// ones, survives the store/enumerate round trip unchanged. The first
// sync bootstraps the store with just the edit (an empty store only
// commits the single most recent change, per
// TestUpdateFromSourceBootstrapsWithoutHistory); the second sync, which
// goes through the normal FetchSince path, adds the move log event.
func TestUpdateFromSourceRoundTripsAllChangeFields(t *testing.T) {
	s := newTestStore(t)
	want := []Change{
		{ChangeID: 1, Timestamp: 100, Kind: KindEdit, Title: "A", User: "Alice", Comment: "typo",
			OldRevID: 10, NewRevID: 11, NewSize: 500},
		{ChangeID: 2, Timestamp: 200, Kind: KindLog, Title: "Draft:B", User: "Bob", Comment: "moving",
			LogID: 7, LogKind: LogMove, LogAction: "move", NewTitle: "B"},
	}
	src := &fakeSource{all: want[:1]}
	require.NoError(t, s.UpdateFromSource(context.Background(), src))
	src.all = want
	require.NoError(t, s.UpdateFromSource(context.Background(), src))

	r := NewReader(s)
	var got []Change
	zero := int64(0)
	tok := Token("")
	require.NoError(t, r.Enumerate(context.Background(), EnumerateOptions{ContinueToken: &tok, StartTimestamp: &zero}, func(c Change) bool {
		got = append(got, c)
		return true
	}))

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-tripped changes differ from what was stored (-want +got):\n%s", diff)
	}
}

func TestEnumerateIsStrictlyIncreasingAcrossCalls(t *testing.T) {
	s := newTestStore(t)
	src := &fakeSource{all: []Change{{ChangeID: 1, Timestamp: 100, Title: "Seed", Kind: KindEdit}}}
	require.NoError(t, s.UpdateFromSource(context.Background(), src))
	src.all = []Change{
		{ChangeID: 1, Timestamp: 100, Title: "Seed", Kind: KindEdit},
		{ChangeID: 2, Timestamp: 200, Title: "A", Kind: KindEdit},
		{ChangeID: 3, Timestamp: 300, Title: "B", Kind: KindEdit},
	}
	require.NoError(t, s.UpdateFromSource(context.Background(), src))

	r := NewReader(s)
	tok := Token("")
	zero := int64(0)
	var firstBatch []int64
	require.NoError(t, r.Enumerate(context.Background(), EnumerateOptions{ContinueToken: &tok, StartTimestamp: &zero, Limit: 1}, func(c Change) bool {
		firstBatch = append(firstBatch, c.ChangeID)
		return true
	}))
	var secondBatch []int64
	require.NoError(t, r.Enumerate(context.Background(), EnumerateOptions{ContinueToken: &tok}, func(c Change) bool {
		secondBatch = append(secondBatch, c.ChangeID)
		return true
	}))
	require.Len(t, firstBatch, 1)
	for _, id := range secondBatch {
		assert.Greater(t, id, firstBatch[0])
	}
}
