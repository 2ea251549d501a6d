// Package wiki implements the PageMutator component of spec.md §4.4: a
// read-modify-write layer over an external wiki collaborator that
// honors exclusion templates, an emergency-stop predicate, and
// server-reported edit conflicts.
//
// Grounded on _examples/original_source/mwclient/wiki.h (the Client
// surface), _examples/original_source/mwclient/bot_exclusion.{h,cpp}
// (exclusion templates) and
// _examples/original_source/orlodrimbot/newsletters/emergency_stop.{h,cpp}
// (the default emergency-stop predicate).
package wiki

import "fmt"

// ConflictError reports that a write was rejected because the page had
// moved since the write token was issued.
type ConflictError struct {
	Title string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("edit conflict on %q", e.Title)
}

// NotFoundError reports that a page or revision does not exist.
type NotFoundError struct {
	Title string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("page not found: %q", e.Title)
}

// PermissionError reports that the wiki rejected the request because
// the account lacks the rights to perform it (protected page, blocked
// account).
type PermissionError struct {
	Title  string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied on %q: %s", e.Title, e.Reason)
}

// NoBotsError reports that a write was rejected because the page opts
// out of automated editing and the caller did not pass BypassNoBots.
type NoBotsError struct {
	Title string
}

func (e *NoBotsError) Error() string {
	return fmt.Sprintf("%q opts out of bot edits via {{nobots}}/{{bots}}", e.Title)
}

// EmergencyStopError reports that the emergency-stop predicate fired
// before a mutating request was issued.
type EmergencyStopError struct{}

func (e *EmergencyStopError) Error() string { return "emergency stop triggered" }

// PageAlreadyExistsError reports that ForCreation was used but the page
// already existed at write time.
type PageAlreadyExistsError struct {
	Title string
}

func (e *PageAlreadyExistsError) Error() string {
	return fmt.Sprintf("page already exists: %q", e.Title)
}

// ValidationError reports a programmer error: invalid handler, empty
// content without AllowBlanking, an impossible write token. Per
// spec.md §7 these are raised synchronously and never written to the
// queue.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Reason }

// TransportError wraps a transient failure from the wiki transport
// (timeouts, 5xx, rate limiting).
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return "wiki transport error: " + e.Cause.Error() }
func (e *TransportError) Unwrap() error { return e.Cause }
