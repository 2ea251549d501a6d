package wiki

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client used to drive Mutator scenarios
// without a network dependency.
type fakeClient struct {
	pages    map[string]*Revision
	users    map[string]UserInfo
	nextRev  int64
	userName string
}

func newFakeClient() *fakeClient {
	return &fakeClient{pages: map[string]*Revision{}, users: map[string]UserInfo{}, userName: "TestBot"}
}

func (c *fakeClient) InternalUserName() string { return c.userName }

func (c *fakeClient) ReadPage(ctx context.Context, title string, props RevProp) (Revision, error) {
	page, ok := c.pages[title]
	if !ok {
		return Revision{Title: title, Exists: false}, nil
	}
	return *page, nil
}

func (c *fakeClient) WritePage(ctx context.Context, title, content string, base ConflictBase, summary string, flags EditFlags) error {
	existing, exists := c.pages[title]
	if base.CreateOnly && exists {
		return &PageAlreadyExistsError{Title: title}
	}
	if !base.CreateOnly && !base.Unconditional {
		if !exists {
			return &ConflictError{Title: title}
		}
		if existing.RevID != base.BaseRevID {
			return &ConflictError{Title: title}
		}
	}
	c.nextRev++
	c.pages[title] = &Revision{Title: title, Exists: true, RevID: c.nextRev, Content: content}
	return nil
}

func (c *fakeClient) MovePage(ctx context.Context, oldTitle, newTitle, summary string) error { return nil }
func (c *fakeClient) DeletePage(ctx context.Context, title, reason string) error             { return nil }
func (c *fakeClient) PurgePage(ctx context.Context, title string) error                      { return nil }

func (c *fakeClient) GetUserInfo(ctx context.Context, name string) (UserInfo, error) {
	info, ok := c.users[name]
	if !ok {
		return UserInfo{}, &NotFoundError{Title: "User:" + name}
	}
	return info, nil
}

// simulateExternalEdit advances a page to a new revision behind the
// Mutator's back, as "another edit" would in scenario M1.
func (c *fakeClient) simulateExternalEdit(title, content string) {
	c.nextRev++
	c.pages[title] = &Revision{Title: title, Exists: true, RevID: c.nextRev, Content: content}
}

// TestMutatorScenarioM1ReadThenWriteConflict reproduces spec.md §8
// scenario M1.
func TestMutatorScenarioM1ReadThenWriteConflict(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.pages["T"] = &Revision{Title: "T", Exists: true, RevID: 1, Content: "base"}
	client.nextRev = 1
	m := &Mutator{Client: client}

	_, token, err := m.ReadWithToken(ctx, "T", 0, "")
	require.NoError(t, err)

	client.simulateExternalEdit("T", "base+external")

	err = m.Write(ctx, "T", "x", token, "", 0)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)

	err = m.Edit(ctx, "T", func(content, summary *string) {
		*content += "x"
		*summary = "add x"
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "base+externalx", client.pages["T"].Content)
}

// TestMutatorScenarioM2NoBots reproduces spec.md §8 scenario M2.
func TestMutatorScenarioM2NoBots(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.pages["P"] = &Revision{Title: "P", Exists: true, RevID: 1, Content: "{{bots|optout=foo}}"}
	m := &Mutator{Client: client}

	_, token, err := m.ReadWithToken(ctx, "P", 0, "foo")
	require.NoError(t, err)
	assert.True(t, token.NeedsNoBotsBypass())

	err = m.Write(ctx, "P", "anything", token, "", 0)
	var noBotsErr *NoBotsError
	require.ErrorAs(t, err, &noBotsErr)

	err = m.Write(ctx, "P", "anything", token, "", BypassNoBots)
	require.NoError(t, err)
	assert.Equal(t, "anything", client.pages["P"].Content)
}

func TestMutatorWriteRejectsEmptyContentWithoutAllowBlanking(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.pages["T"] = &Revision{Title: "T", Exists: true, RevID: 1, Content: "x"}
	m := &Mutator{Client: client}
	_, token, err := m.ReadWithToken(ctx, "T", 0, "")
	require.NoError(t, err)

	err = m.Write(ctx, "T", "", token, "", 0)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	require.NoError(t, m.Write(ctx, "T", "", token, "blank", AllowBlanking))
}

func TestMutatorEmergencyStopBlocksWrite(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.pages["T"] = &Revision{Title: "T", Exists: true, RevID: 1}
	m := &Mutator{
		Client:        client,
		EmergencyStop: func(ctx context.Context) (bool, error) { return true, nil },
	}
	_, token, err := m.ReadWithToken(ctx, "T", 0, "")
	require.NoError(t, err)

	err = m.Write(ctx, "T", "x", token, "", 0)
	var stopErr *EmergencyStopError
	require.ErrorAs(t, err, &stopErr)
	assert.Equal(t, "", client.pages["T"].Content, "write must not have happened")
}

func TestMutatorReadContentIfExistsCreationToken(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	m := &Mutator{Client: client}

	content, token, err := m.ReadContentIfExists(ctx, "New")
	require.NoError(t, err)
	assert.Equal(t, "", content)

	require.NoError(t, m.Write(ctx, "New", "hello", token, "create", 0))
	assert.Equal(t, "hello", client.pages["New"].Content)
}

func TestMutatorEditNoOpWhenTransformLeavesContentAndSummaryUnchanged(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.pages["T"] = &Revision{Title: "T", Exists: true, RevID: 1, Content: "same"}
	m := &Mutator{Client: client}

	err := m.Edit(ctx, "T", func(content, summary *string) {}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), client.pages["T"].RevID, "no write should have been issued")
}
