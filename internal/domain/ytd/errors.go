package ytd

import "errors"

var (
	ErrSnapshotIdentity = errors.New("snapshot requires an employee id and year")
	ErrSnapshotMismatch = errors.New("delta belongs to a different employee or year")
	ErrNegativeDelta    = errors.New("year-to-date deltas must not be negative")
	ErrStaleSnapshot    = errors.New("year-to-date snapshot was advanced concurrently")
)
