package reportstore

import "errors"

var (
	// ErrStorageConflict is returned when a commit races with another
	// committer on the same run. The caller must retry with a fresh
	// generation; the losing commit is never applied silently.
	ErrStorageConflict = errors.New("storage conflict: run was concurrently committed")

	// ErrSchemaVersionMismatch is returned at open time when the on-disk
	// schema is newer than this binary understands.
	ErrSchemaVersionMismatch = errors.New("schema version mismatch")

	// ErrRunNotFound is returned when a run name is unknown.
	ErrRunNotFound = errors.New("run not found")

	// ErrGenerationClosed is returned when an operation is attempted on a
	// generation handle that was already committed or aborted.
	ErrGenerationClosed = errors.New("generation already closed")
)
