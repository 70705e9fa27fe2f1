package core

import "errors"

var (
	// ErrStaleResult marks a result from a worker that is unknown, idle, or
	// bound to a different job. Such results are dropped.
	ErrStaleResult = errors.New("stale result")

	// ErrInvariantViolation marks scheduler state that can not be reconciled,
	// such as a bound worker whose job has no tracker.
	ErrInvariantViolation = errors.New("scheduler invariant violated")

	ErrUnknownFamily   = errors.New("unknown job family")
	ErrDuplicateJob    = errors.New("duplicate job id")
	ErrDuplicateWorker = errors.New("duplicate worker id")
)

type Fault int

const (
	FaultRecoverable Fault = iota
	FaultFatal
)

func (f Fault) String() string {
	if f == FaultFatal {
		return "fatal"
	}
	return "recoverable"
}

// Classify maps an engine error to the action the owning master takes.
// Fatal faults abort the family; everything else is logged and dropped.
func Classify(err error) Fault {
	if errors.Is(err, ErrInvariantViolation) {
		return FaultFatal
	}
	return FaultRecoverable
}
