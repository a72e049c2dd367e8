package repositories

import "errors"

// Sentinel errors shared by every repository in this package. The GORM
// implementations translate driver-level conditions (gorm.ErrRecordNotFound,
// gorm.ErrDuplicatedKey, zero RowsAffected) into these, so callers match
// with errors.Is and never import gorm themselves.
var (
	// ErrNotFound reports that the requested row does not exist, or that a
	// guarded update/delete matched nothing.
	ErrNotFound = errors.New("record not found")

	// ErrConflict reports a unique-constraint violation, e.g. a duplicate
	// project slug or user email.
	ErrConflict = errors.New("record already exists")
)
