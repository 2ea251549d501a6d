package draftmove

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orlodrim/wikibots-go/internal/bots/botstest"
	"github.com/orlodrim/wikibots-go/pkg/changelog"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

func TestScanEnqueuesOnlyMovesTouchingDraftNamespace(t *testing.T) {
	changes := &botstest.FakeChangeEnumerator{Changes: []changelog.Change{
		{ChangeID: 1, Kind: changelog.KindLog, LogKind: changelog.LogMove, Title: "Draft:Widget", NewTitle: "Widget", User: "Alice", Timestamp: 1000},
		{ChangeID: 2, Kind: changelog.KindLog, LogKind: changelog.LogMove, Title: "Old name", NewTitle: "New name", User: "Bob", Timestamp: 1001},
		{ChangeID: 3, Kind: changelog.KindLog, LogKind: changelog.LogDelete, Title: "Draft:Gone", Timestamp: 1002},
	}}
	queue := &botstest.FakeJobInserter{}
	s := NewScanner(changes, queue, Config{})

	require.NoError(t, s.Scan(context.Background(), 0))

	require.Len(t, queue.Jobs, 1)
	assert.Equal(t, "1", queue.Jobs[0].Key)
	assert.Equal(t, "Draft:Widget", queue.Jobs[0].Parameters.FieldOr("from", wikivalue.String("")).GetString(""))
	assert.Equal(t, "Widget", queue.Jobs[0].Parameters.FieldOr("to", wikivalue.String("")).GetString(""))
}

func TestScanIsIdempotentAcrossOverlappingWindows(t *testing.T) {
	changes := &botstest.FakeChangeEnumerator{Changes: []changelog.Change{
		{ChangeID: 5, Kind: changelog.KindLog, LogKind: changelog.LogMove, Title: "Draft:Widget", NewTitle: "Widget", Timestamp: 1000},
	}}
	queue := &botstest.FakeJobInserter{}
	s := NewScanner(changes, queue, Config{})

	require.NoError(t, s.Scan(context.Background(), 0))
	require.NoError(t, s.Scan(context.Background(), 900)) // overlapping re-scan

	assert.Len(t, queue.Jobs, 1)
}

func TestHandlerRunAppendsLineToTrackingPage(t *testing.T) {
	client := botstest.NewFakeClient()
	client.SetPage("Project:Published drafts",
		"<!-- BEGIN BOT SECTION --><!-- update #1 -->\n* [[Draft:Earlier]] → [[Earlier]] (moved by Carol, 2025-12-01)\n<!-- END BOT SECTION -->")
	h := &Handler{Mutator: &wiki.Mutator{Client: client}, TrackingPageTitle: "Project:Published drafts"}

	params := wikivalue.NewMap().
		Set("from", wikivalue.String("Draft:Widget")).
		Set("to", wikivalue.String("Widget")).
		Set("user", wikivalue.String("Alice")).
		Set("timestamp", wikivalue.Int64(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC).Unix())).
		Build()
	job := jobqueue.Job{Handler: "draftmove.notify", Key: "1", Parameters: params}

	require.NoError(t, h.Run(context.Background(), job, nil, false))

	content := client.Pages["Project:Published drafts"].Content
	assert.Contains(t, content, "[[Draft:Earlier]] → [[Earlier]]")
	assert.Contains(t, content, "[[Draft:Widget]] → [[Widget]] (moved by Alice, 2026-01-15)")
	assert.Contains(t, content, "update #2")
}

func TestHandlerRunCreatesTrackingPageWhenMissing(t *testing.T) {
	client := botstest.NewFakeClient()
	h := &Handler{Mutator: &wiki.Mutator{Client: client}, TrackingPageTitle: "Project:Published drafts"}

	params := wikivalue.NewMap().
		Set("from", wikivalue.String("Draft:Widget")).
		Set("to", wikivalue.String("Widget")).
		Set("user", wikivalue.String("Alice")).
		Set("timestamp", wikivalue.Int64(0)).
		Build()
	job := jobqueue.Job{Handler: "draftmove.notify", Key: "1", Parameters: params}

	require.NoError(t, h.Run(context.Background(), job, nil, false))

	require.NotNil(t, client.Pages["Project:Published drafts"])
	assert.Contains(t, client.Pages["Project:Published drafts"].Content, "[[Draft:Widget]] → [[Widget]]")
}
