// Package botstest holds small in-memory test doubles shared by the
// internal/bots/* packages, grounded on the fakeClient pattern in
// pkg/wiki/mutator_test.go.
package botstest

import (
	"context"

	"github.com/orlodrim/wikibots-go/pkg/wiki"
)

// FakeClient is an in-memory wiki.Client.
type FakeClient struct {
	Pages    map[string]*wiki.Revision
	Users    map[string]wiki.UserInfo
	NextRev  int64
	UserName string
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{Pages: map[string]*wiki.Revision{}, Users: map[string]wiki.UserInfo{}, UserName: "TestBot"}
}

func (c *FakeClient) InternalUserName() string { return c.UserName }

func (c *FakeClient) ReadPage(ctx context.Context, title string, props wiki.RevProp) (wiki.Revision, error) {
	page, ok := c.Pages[title]
	if !ok {
		return wiki.Revision{Title: title, Exists: false}, nil
	}
	return *page, nil
}

func (c *FakeClient) WritePage(ctx context.Context, title, content string, base wiki.ConflictBase, summary string, flags wiki.EditFlags) error {
	existing, exists := c.Pages[title]
	if base.CreateOnly && exists {
		return &wiki.PageAlreadyExistsError{Title: title}
	}
	if !base.CreateOnly && !base.Unconditional {
		if !exists {
			return &wiki.ConflictError{Title: title}
		}
		if existing.RevID != base.BaseRevID {
			return &wiki.ConflictError{Title: title}
		}
	}
	c.NextRev++
	c.Pages[title] = &wiki.Revision{Title: title, Exists: true, RevID: c.NextRev, Content: content}
	return nil
}

func (c *FakeClient) MovePage(ctx context.Context, oldTitle, newTitle, summary string) error { return nil }
func (c *FakeClient) DeletePage(ctx context.Context, title, reason string) error             { return nil }
func (c *FakeClient) PurgePage(ctx context.Context, title string) error                      { return nil }

func (c *FakeClient) GetUserInfo(ctx context.Context, name string) (wiki.UserInfo, error) {
	info, ok := c.Users[name]
	if !ok {
		return wiki.UserInfo{}, &wiki.NotFoundError{Title: "User:" + name}
	}
	return info, nil
}

// SetPage seeds title with content, as if written outside the Mutator.
func (c *FakeClient) SetPage(title, content string) {
	c.NextRev++
	c.Pages[title] = &wiki.Revision{Title: title, Exists: true, RevID: c.NextRev, Content: content}
}
