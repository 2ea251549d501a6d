// Package changelog maintains a durable local mirror of a remote
// recent-changes stream and offers readers a restartable, gap-free
// cursor over it.
//
// Grounded on
// _examples/original_source/orlodrimbot/live_replication/recent_changes_sync.{h,cpp}
// and recent_changes_reader.h.
package changelog

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a Change row.
type Kind string

const (
	KindEdit    Kind = "edit"
	KindNewPage Kind = "new-page"
	KindLog     Kind = "log"
)

// LogKind classifies a log-type Change.
type LogKind string

const (
	LogDelete  LogKind = "delete"
	LogUpload  LogKind = "upload"
	LogMove    LogKind = "move"
	LogImport  LogKind = "import"
	LogProtect LogKind = "protect"
)

// Change is one row of the local recent-changes mirror.
type Change struct {
	ChangeID  int64
	Timestamp int64 // UTC seconds
	Kind      Kind
	Title     string
	User      string // may be empty if hidden
	Comment   string // may be empty

	// Edit/new-page fields.
	OldRevID int64
	NewRevID int64
	NewSize  int64

	// Log fields.
	LogID     int64
	LogKind   LogKind
	LogAction string
	NewTitle  string // move target, when LogKind == LogMove
	LogParams string // opaque structured extra (JSON), e.g. suppress-redirect
}

// KindMask selects which Kinds Enumerate should deliver.
type KindMask uint8

const (
	MaskEdit KindMask = 1 << iota
	MaskNewPage
	MaskLog
	MaskAll = MaskEdit | MaskNewPage | MaskLog
)

func (m KindMask) allows(k Kind) bool {
	switch k {
	case KindEdit:
		return m&MaskEdit != 0
	case KindNewPage:
		return m&MaskNewPage != 0
	case KindLog:
		return m&MaskLog != 0
	default:
		return false
	}
}

// PropertyMask selects which optional fields a reader needs populated,
// letting a caller that only wants titles skip fetching comments, user
// names, and so on from the store.
type PropertyMask uint8

const (
	PropUser PropertyMask = 1 << iota
	PropComment
	PropLogDetails
	PropAll = PropUser | PropComment | PropLogDetails
)

// Token is the opaque resume cursor: "rc|<change_id>". The zero Token
// ("") means "uninitialized".
type Token string

// NewToken builds a token naming the highest change already delivered.
func NewToken(changeID int64) Token {
	return Token(fmt.Sprintf("rc|%d", changeID))
}

// ChangeID parses the token, returning (id, true) or (0, false) if the
// token is empty or malformed.
func (t Token) ChangeID() (int64, bool) {
	s := string(t)
	if s == "" {
		return 0, false
	}
	rest, ok := strings.CutPrefix(s, "rc|")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
