package analysis

import (
	"errors"
	"fmt"
)

// ErrLockContention means another worker holds the sync lock. The cycle was
// skipped without touching any queue row; it is not a failure.
var ErrLockContention = errors.New("analysis sync already running elsewhere")

// ErrInvalidTransition is returned when a queue row is not in the state a
// transition requires (for example completing a row that was never started).
var ErrInvalidTransition = errors.New("invalid analysis queue transition")

// ErrFarmNotFound is returned when an entry would reference an unknown farm.
var ErrFarmNotFound = errors.New("farm not found")

// PersistenceError wraps a failed write of analysis results for one farm.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
