package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAddressed means operator text does not start with '@' and is
	// not a reply at all.
	ErrNotAddressed = errors.New("relay: not an addressed reply")
	// ErrFormat means operator text starts with '@' but does not have the
	// "@<user id> <body>" shape.
	ErrFormat = errors.New("relay: malformed addressed reply")
)

// TransportError is an outward call that failed. It is reported to the
// affected party and never stops the process.
type TransportError struct {
	Op     string
	ChatID int64
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("relay: %s to chat %d: %v", e.Op, e.ChatID, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PersistenceError is a profile or audit snapshot write that failed. The
// in-memory state was still updated.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("relay: persist %s: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
