package wiki

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orlodrim/wikibots-go/pkg/clock"
)

func TestDefaultEmergencyStopNoRecentEdit(t *testing.T) {
	ctx := context.Background()
	c := clock.NewStepped(time.Unix(1_000_000, 0).UTC(), time.Second)
	client := newFakeClient()
	client.userName = "TestBot"
	client.pages["User talk:TestBot"] = &Revision{Title: "User talk:TestBot", Exists: true, Timestamp: 500_000}

	test := NewDefaultEmergencyStopTest(client, c, 300)
	triggered, err := test.Test(ctx)
	require.NoError(t, err)
	assert.False(t, triggered)
}

func TestDefaultEmergencyStopAdvancedUserWithMessageTriggers(t *testing.T) {
	ctx := context.Background()
	c := clock.NewStepped(time.Unix(1_000_000, 0).UTC(), time.Second)
	client := newFakeClient()
	client.userName = "TestBot"
	client.users["Alice"] = UserInfo{Name: "Alice", EditCount: 100}
	client.pages["User talk:TestBot"] = &Revision{
		Title: "User talk:TestBot", Exists: true, Timestamp: 1_500_000, User: "Alice", Content: "please stop",
	}

	test := NewDefaultEmergencyStopTest(client, c, 300)
	triggered, err := test.Test(ctx)
	require.NoError(t, err)
	assert.True(t, triggered)
}

func TestDefaultEmergencyStopNoviceEditorDoesNotTrigger(t *testing.T) {
	ctx := context.Background()
	c := clock.NewStepped(time.Unix(1_000_000, 0).UTC(), time.Second)
	client := newFakeClient()
	client.userName = "TestBot"
	client.users["Newbie"] = UserInfo{Name: "Newbie", EditCount: 2}
	client.pages["User talk:TestBot"] = &Revision{
		Title: "User talk:TestBot", Exists: true, Timestamp: 1_500_000, User: "Newbie", Content: "hi",
	}

	test := NewDefaultEmergencyStopTest(client, c, 300)
	triggered, err := test.Test(ctx)
	require.NoError(t, err)
	assert.False(t, triggered, "an editor below the edit-count threshold must not trigger a stop")
}

func TestDefaultEmergencyStopHeaderStubDoesNotTrigger(t *testing.T) {
	ctx := context.Background()
	c := clock.NewStepped(time.Unix(1_000_000, 0).UTC(), time.Second)
	client := newFakeClient()
	client.userName = "TestBot"
	client.users["Alice"] = UserInfo{Name: "Alice", EditCount: 100}
	client.pages["User talk:TestBot"] = &Revision{
		Title: "User talk:TestBot", Exists: true, Timestamp: 1_500_000, User: "Alice", Content: talkPageHeaderStub,
	}

	test := NewDefaultEmergencyStopTest(client, c, 300)
	triggered, err := test.Test(ctx)
	require.NoError(t, err)
	assert.False(t, triggered)
}

func TestDefaultEmergencyStopAdvancesPastIgnoredEdit(t *testing.T) {
	ctx := context.Background()
	c := clock.NewStepped(time.Unix(1_000_000, 0).UTC(), time.Second)
	client := newFakeClient()
	client.userName = "TestBot"
	client.users["Newbie"] = UserInfo{Name: "Newbie", EditCount: 2}
	client.pages["User talk:TestBot"] = &Revision{
		Title: "User talk:TestBot", Exists: true, Timestamp: 1_500_000, User: "Newbie", Content: "hi",
	}

	test := NewDefaultEmergencyStopTest(client, c, 300)
	_, err := test.Test(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), test.since, "ignored edit must advance the initialization timestamp")

	triggered, err := test.Test(ctx)
	require.NoError(t, err)
	assert.False(t, triggered, "the same edit must not retrigger once the timestamp has advanced past it")
}
