package lock

import "errors"

// ErrLockTimeout is returned by WithLockContext when the key stays held past the timeout.
var ErrLockTimeout = errors.New("lock acquisition timeout")
