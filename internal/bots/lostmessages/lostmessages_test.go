package lostmessages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orlodrim/wikibots-go/internal/bots/botstest"
	"github.com/orlodrim/wikibots-go/pkg/changelog"
	"github.com/orlodrim/wikibots-go/pkg/clock"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

func paramsFor(title string) wikivalue.Value {
	return wikivalue.NewMap().Set("title", wikivalue.String(title)).Build()
}

func TestScanEnqueuesStaleTalkPageOnly(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	c := clock.Fixed{T: now}
	changes := &botstest.FakeChangeEnumerator{Changes: []changelog.Change{
		{ChangeID: 1, Title: "User talk:Newcomer", Kind: changelog.KindEdit, Timestamp: now.Add(-72 * time.Hour).Unix()},
		{ChangeID: 2, Title: "User talk:Active", Kind: changelog.KindEdit, Timestamp: now.Add(-1 * time.Hour).Unix()},
		{ChangeID: 3, Title: "Project:Noticeboard", Kind: changelog.KindEdit, Timestamp: now.Add(-72 * time.Hour).Unix()},
	}}
	queue := &botstest.FakeJobInserter{}
	s := NewScanner(changes, queue, c, Config{Delay: 48 * time.Hour})

	require.NoError(t, s.Scan(context.Background(), 0))

	require.Len(t, queue.Jobs, 1)
	assert.Equal(t, "lostmessages.notify", queue.Jobs[0].Handler)
	assert.Equal(t, "User talk:Newcomer", queue.Jobs[0].Key)
}

func TestScanIsIdempotentAcrossCalls(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	c := clock.Fixed{T: now}
	changes := &botstest.FakeChangeEnumerator{Changes: []changelog.Change{
		{ChangeID: 1, Title: "User talk:Newcomer", Kind: changelog.KindEdit, Timestamp: now.Add(-72 * time.Hour).Unix()},
	}}
	queue := &botstest.FakeJobInserter{}
	s := NewScanner(changes, queue, c, Config{Delay: 48 * time.Hour})

	require.NoError(t, s.Scan(context.Background(), 0))
	require.NoError(t, s.Scan(context.Background(), 0))

	assert.Len(t, queue.Jobs, 1)
}

func TestHandlerRunPostsReminderIntoBotSection(t *testing.T) {
	client := botstest.NewFakeClient()
	client.SetPage("User talk:Newcomer", "Hello there.")
	mutator := &wiki.Mutator{Client: client}
	h := NewHandler(mutator, Config{ReminderBody: "Please check back soon."})

	params := paramsFor("User talk:Newcomer")
	err := h.Run(context.Background(), jobqueue.Job{Handler: "lostmessages.notify", Key: "User talk:Newcomer", Parameters: params}, nil, false)
	require.NoError(t, err)
	assert.Contains(t, client.Pages["User talk:Newcomer"].Content, "Please check back soon.")
	assert.Contains(t, client.Pages["User talk:Newcomer"].Content, "Hello there.")
}

func TestHandlerRunTreatsNoBotsAsHandled(t *testing.T) {
	client := botstest.NewFakeClient()
	client.SetPage("User talk:Newcomer", "{{nobots}}\nHello there.")
	mutator := &wiki.Mutator{Client: client}
	h := NewHandler(mutator, Config{})

	params := paramsFor("User talk:Newcomer")
	err := h.Run(context.Background(), jobqueue.Job{Handler: "lostmessages.notify", Key: "User talk:Newcomer", Parameters: params}, nil, false)
	require.NoError(t, err)
	assert.NotContains(t, client.Pages["User talk:Newcomer"].Content, h.Config.ReminderBody)
}

func TestHandlerRunDryRunDoesNotWrite(t *testing.T) {
	client := botstest.NewFakeClient()
	client.SetPage("User talk:Newcomer", "Hello there.")
	mutator := &wiki.Mutator{Client: client}
	h := NewHandler(mutator, Config{})

	params := paramsFor("User talk:Newcomer")
	err := h.Run(context.Background(), jobqueue.Job{Handler: "lostmessages.notify", Key: "User talk:Newcomer", Parameters: params}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", client.Pages["User talk:Newcomer"].Content)
}
