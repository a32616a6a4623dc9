package fsstore

import "errors"

// Path and encoding failures.
var (
	ErrInvalidPath       = errors.New("fsstore: invalid path")
	ErrEncodeFailed      = errors.New("fsstore: encode failed")
	ErrDecodeFailed      = errors.New("fsstore: decode failed")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)

// Snapshot lock failures. ErrLockTimeout means another holder kept the lock
// past the wait bound.
var (
	ErrLockTimeout     = errors.New("fsstore: lock timeout")
	ErrLockUnavailable = errors.New("fsstore: lock unavailable")
)
