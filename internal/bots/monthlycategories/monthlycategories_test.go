package monthlycategories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orlodrim/wikibots-go/internal/bots/botstest"
	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
	"github.com/orlodrim/wikibots-go/pkg/wiki"
	"github.com/orlodrim/wikibots-go/pkg/wikivalue"
)

func testConfig() Config {
	return Config{
		DaysBefore: 2,
		Categories: []CategoryTemplate{
			{TitlePattern: "Category:Cleanup since %(monthname)s %(year)d", TemplateName: "Template:Cleanup preload"},
		},
	}
}

func TestEnqueueIfDueFiresOnlyOnTheExactLeadDay(t *testing.T) {
	queue := &botstest.FakeJobInserter{}
	e := NewEnqueuer(queue, testConfig())

	require.NoError(t, e.EnqueueIfDue(context.Background(), time.Date(2026, 1, 27, 12, 0, 0, 0, time.UTC)))
	assert.Empty(t, queue.Jobs, "5 days before the boundary is not the configured 2-day lead time")

	require.NoError(t, e.EnqueueIfDue(context.Background(), time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC)))
	require.Len(t, queue.Jobs, 1)
	assert.Equal(t, "Category:Cleanup since february 2026", queue.Jobs[0].Key)
}

func TestEnqueueIfDueIsIdempotentOnTheSameDay(t *testing.T) {
	queue := &botstest.FakeJobInserter{}
	e := NewEnqueuer(queue, testConfig())
	due := time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC)

	require.NoError(t, e.EnqueueIfDue(context.Background(), due))
	require.NoError(t, e.EnqueueIfDue(context.Background(), due.Add(2*time.Hour)))

	assert.Len(t, queue.Jobs, 1)
}

func TestHandlerRunCreatesMissingCategory(t *testing.T) {
	client := botstest.NewFakeClient()
	client.SetPage("Template:Cleanup preload", "ignored by this handler")
	h := &Handler{Mutator: &wiki.Mutator{Client: client}}

	params := wikivalue.NewMap().
		Set("title", wikivalue.String("Category:Cleanup since february 2026")).
		Set("template", wikivalue.String("Template:Cleanup preload")).
		Set("month", wikivalue.Int64(2)).
		Set("year", wikivalue.Int64(2026)).
		Build()
	job := jobqueue.Job{Handler: "monthlycat.create", Key: "Category:Cleanup since february 2026", Parameters: params}

	require.NoError(t, h.Run(context.Background(), job, nil, false))
	page := client.Pages["Category:Cleanup since february 2026"]
	require.NotNil(t, page)
	assert.Equal(t, "{{subst:Template:Cleanup preload|month=02|year=2026}}", page.Content)
}

func TestHandlerRunIsNoOpWhenCategoryAlreadyExists(t *testing.T) {
	client := botstest.NewFakeClient()
	client.SetPage("Category:Cleanup since february 2026", "already populated")
	h := &Handler{Mutator: &wiki.Mutator{Client: client}}

	params := wikivalue.NewMap().
		Set("title", wikivalue.String("Category:Cleanup since february 2026")).
		Set("template", wikivalue.String("Template:Cleanup preload")).
		Build()
	job := jobqueue.Job{Handler: "monthlycat.create", Key: "Category:Cleanup since february 2026", Parameters: params}

	require.NoError(t, h.Run(context.Background(), job, nil, false))
	assert.Equal(t, "already populated", client.Pages["Category:Cleanup since february 2026"].Content)
}
