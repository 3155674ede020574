package store

import (
	"errors"
	"strings"
)

// ErrUserNotFound is returned by updates that target an unknown user.
var ErrUserNotFound = errors.New("user not found")

// IsConflictError reports whether err is a SQLITE_BUSY or "database is locked"
// error. Both are transient and worth retrying.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
