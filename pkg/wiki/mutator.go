package wiki

import (
	"context"

	"github.com/orlodrim/wikibots-go/pkg/metrics"
)

// WriteToken is the single-use capability produced by a read and
// consumed by a matching write, per spec.md §4.4.
type WriteToken struct {
	title             string
	base              ConflictBase
	needsNoBotsBypass bool
}

// NeedsNoBotsBypass reports whether the content observed at read time
// carries an exclusion template that requires EditFlags to include
// BypassNoBots for a write to succeed.
func (t WriteToken) NeedsNoBotsBypass() bool { return t.needsNoBotsBypass }

// ForCreation returns a token requiring that the page not exist at
// write time.
func ForCreation(title string) WriteToken {
	return WriteToken{title: title, base: ConflictBase{CreateOnly: true}}
}

// ForEdit returns a token requiring that the page still be at
// priorRevID at write time.
func ForEdit(title string, priorRevID int64, needsNoBotsBypass bool) WriteToken {
	return WriteToken{title: title, base: ConflictBase{BaseRevID: priorRevID}, needsNoBotsBypass: needsNoBotsBypass}
}

// WithoutConflictDetection returns a token that performs an
// unconditional overwrite. Use only where idempotence is otherwise
// guaranteed.
func WithoutConflictDetection(title string) WriteToken {
	return WriteToken{title: title, base: ConflictBase{Unconditional: true}}
}

// EmergencyStopTest is evaluated synchronously before every mutating
// request. Returning true aborts the operation with EmergencyStopError
// without any network call. It may also return a non-nil error, which
// propagates to the caller instead.
type EmergencyStopTest func(ctx context.Context) (bool, error)

// Mutator implements the read-modify-write contract of spec.md §4.4 on
// top of a Client.
type Mutator struct {
	Client Client
	// BotName identifies this bot for exclusion-template matching
	// (normally Client.InternalUserName(), but kept explicit so the
	// "Main@BotAccount" split used by Special:BotPasswords accounts can
	// be handled by the caller).
	BotName string
	// EditRetries bounds edit's conflict-retry loop (default 3).
	EditRetries int
	// EmergencyStop is consulted before every mutating request. A nil
	// value disables the check.
	EmergencyStop EmergencyStopTest
}

func (m *Mutator) editRetries() int {
	if m.EditRetries <= 0 {
		return 3
	}
	return m.EditRetries
}

// Read returns the requested properties of title's current revision,
// or a *NotFoundError if the page is absent.
func (m *Mutator) Read(ctx context.Context, title string, props RevProp) (Revision, error) {
	rev, err := m.Client.ReadPage(ctx, title, props)
	if err != nil {
		return Revision{}, err
	}
	if !rev.Exists {
		return Revision{}, &NotFoundError{Title: title}
	}
	return rev, nil
}

// ReadWithToken is like Read but also returns a WriteToken computed
// from the observed revision, suitable for a later Write or Edit call.
func (m *Mutator) ReadWithToken(ctx context.Context, title string, props RevProp, messageType string) (Revision, WriteToken, error) {
	rev, err := m.Client.ReadPage(ctx, title, props|RevPropContent|RevPropRevID)
	if err != nil {
		return Revision{}, WriteToken{}, err
	}
	if !rev.Exists {
		return Revision{}, WriteToken{}, &NotFoundError{Title: title}
	}
	needsBypass := testBotExclusion(rev.Content, m.botName(), messageType)
	return rev, ForEdit(title, rev.RevID, needsBypass), nil
}

// ReadContentIfExists returns the current content of title, or "" with
// a ForCreation token if the page is absent.
func (m *Mutator) ReadContentIfExists(ctx context.Context, title string) (string, WriteToken, error) {
	rev, err := m.Client.ReadPage(ctx, title, RevPropContent|RevPropRevID)
	if err != nil {
		return "", WriteToken{}, err
	}
	if !rev.Exists {
		return "", ForCreation(title), nil
	}
	needsBypass := testBotExclusion(rev.Content, m.botName(), "")
	return rev.Content, ForEdit(title, rev.RevID, needsBypass), nil
}

func (m *Mutator) botName() string {
	if m.BotName != "" {
		return m.BotName
	}
	return m.Client.InternalUserName()
}

func (m *Mutator) checkEmergencyStop(ctx context.Context) error {
	if m.EmergencyStop == nil {
		return nil
	}
	triggered, err := m.EmergencyStop(ctx)
	if err != nil {
		return err
	}
	if triggered {
		return &EmergencyStopError{}
	}
	return nil
}

// Write implements spec.md §4.4's write contract.
func (m *Mutator) Write(ctx context.Context, title, content string, token WriteToken, summary string, flags EditFlags) error {
	if err := m.checkEmergencyStop(ctx); err != nil {
		metrics.MutationOutcomesTotal.WithLabelValues("emergency_stop").Inc()
		return err
	}
	if content == "" && !flags.has(AllowBlanking) {
		metrics.MutationOutcomesTotal.WithLabelValues("validation_error").Inc()
		return &ValidationError{Reason: "empty content without AllowBlanking"}
	}
	if token.needsNoBotsBypass && !flags.has(BypassNoBots) {
		metrics.MutationOutcomesTotal.WithLabelValues("nobots").Inc()
		return &NoBotsError{Title: title}
	}
	err := m.Client.WritePage(ctx, title, content, token.base, summary, flags)
	outcome := "success"
	if err != nil {
		outcome = outcomeLabel(err)
	}
	metrics.MutationOutcomesTotal.WithLabelValues(outcome).Inc()
	return err
}

func outcomeLabel(err error) string {
	switch err.(type) {
	case *ConflictError:
		return "conflict"
	case *PageAlreadyExistsError:
		return "already_exists"
	case *PermissionError:
		return "permission"
	case *NotFoundError:
		return "not_found"
	default:
		return "transport_error"
	}
}

// TransformFunc mutates content and summary in place. It must be a
// pure function of its input content, since Edit may invoke it
// multiple times across conflict retries.
type TransformFunc func(content *string, summary *string)

// Edit implements spec.md §4.4's transform contract: read, transform,
// write, retrying on conflict with a fresh read.
func (m *Mutator) Edit(ctx context.Context, title string, transform TransformFunc, flags EditFlags) error {
	content, token, err := m.ReadContentIfExists(ctx, title)
	if err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		newContent := content
		var summary string
		transform(&newContent, &summary)
		if summary == "" && newContent == content {
			return nil
		}
		err := m.Write(ctx, title, newContent, token, summary, flags)
		if err == nil {
			return nil
		}
		if !isConflict(err) || attempt >= m.editRetries() {
			return err
		}
		content, token, err = m.ReadContentIfExists(ctx, title)
		if err != nil {
			return err
		}
	}
}

func isConflict(err error) bool {
	_, ok := err.(*ConflictError)
	if ok {
		return true
	}
	_, ok = err.(*PageAlreadyExistsError)
	return ok
}
