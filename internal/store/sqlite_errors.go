package store

import "strings"

// isSQLiteConflictError reports whether err is a SQLITE_BUSY or "database is
// locked" error. Both are concurrency errors that warrant a retry.
func isSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
