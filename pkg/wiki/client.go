package wiki

import "context"

// RevProp selects which fields of a Revision a read should populate.
type RevProp int

const (
	RevPropTimestamp RevProp = 1 << iota
	RevPropUser
	RevPropComment
	RevPropContent
	RevPropRevID
)

func (p RevProp) has(flag RevProp) bool { return p&flag != 0 }

// Revision is one version of a page, or the absence of one (see
// Exists).
type Revision struct {
	Title     string
	Exists    bool
	RevID     int64
	Timestamp int64
	User      string
	Comment   string
	Content   string
}

// UserInfo is the subset of account metadata the emergency-stop
// predicate and exclusion checks need.
type UserInfo struct {
	Name      string
	EditCount int64
	Groups    []string
}

// EditFlags controls Write/Edit behavior, mirroring spec.md §4.4's
// EditPageFlags.
type EditFlags int

const (
	// AllowBlanking permits writing empty content.
	AllowBlanking EditFlags = 1 << iota
	// BypassNoBots permits writing to a page that opts out via
	// {{nobots}}/{{bots|...}}.
	BypassNoBots
	// Minor marks the edit as minor.
	Minor
)

func (f EditFlags) has(flag EditFlags) bool { return f&flag != 0 }

// Client is the external wiki collaborator spec.md §6 describes: the
// capabilities the core requires without re-specifying the remote
// wiki's own API.
type Client interface {
	// ReadPage returns the requested properties of the current revision
	// of title, or a Revision with Exists=false if the page is absent.
	ReadPage(ctx context.Context, title string, props RevProp) (Revision, error)
	// WritePage creates or replaces the content of title. base describes
	// the conflict-detection basis; only base.Unconditional skips
	// conflict detection.
	WritePage(ctx context.Context, title, content string, base ConflictBase, summary string, flags EditFlags) error
	// MovePage renames a page.
	MovePage(ctx context.Context, oldTitle, newTitle, summary string) error
	// DeletePage deletes a page.
	DeletePage(ctx context.Context, title, reason string) error
	// PurgePage purges the page's parser cache.
	PurgePage(ctx context.Context, title string) error
	// GetUserInfo fetches account metadata for name.
	GetUserInfo(ctx context.Context, name string) (UserInfo, error)
	// InternalUserName returns the account name used to log in, used as
	// the bot name for exclusion-template matching.
	InternalUserName() string
}

// ConflictBase describes how WritePage should detect a conflict.
type ConflictBase struct {
	// CreateOnly requires the page to not exist at write time.
	CreateOnly bool
	// BaseRevID, when CreateOnly and Unconditional are both false,
	// requires the page's current revision to equal BaseRevID (zero
	// included).
	BaseRevID int64
	// Unconditional, when true, skips conflict detection entirely
	// (WriteToken.withoutConflictDetection()).
	Unconditional bool
}
