package store

import "errors"

// Error taxonomy shared by the REST controllers and socket handlers. Callers
// match with errors.Is; wrapped messages carry the detail.
var (
	// ErrUnauthorized means the caller has no valid identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller is authenticated but is not a member of
	// the conversation or not the owner of the message.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput covers validation failures, including content that is
	// empty after sanitization.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means the referenced entity is absent. Edit/delete also
	// collapse "wrong sender" into this so ownership is not disclosed.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks store or bus failures that are safe to retry.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrExhausted marks a retry budget spent; terminal, routed to the
	// dead-letter queue.
	ErrExhausted = errors.New("retry budget exhausted")
)
