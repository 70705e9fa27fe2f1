package core

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nemanja-m/hivemind/pkg/core"
)

// Tracker owns the decomposition and progress of one job. Trackers are only
// touched by the scheduling engine that created them.
type Tracker interface {
	JobID() core.JobID
	Family() core.Family

	// AssignWork issues the next unit to worker. It returns false when the
	// tracker has nothing to hand out right now.
	AssignWork(worker uuid.UUID) (core.WorkItem, bool)

	// WorkFailed returns the unit held by worker to the tracker. Only charged
	// failures count toward the retry cap. It is a no-op when the worker holds
	// nothing.
	WorkFailed(worker uuid.UUID, charged bool)

	// WorkCompleted clears the unit held by worker and records its outcome.
	WorkCompleted(worker uuid.UUID, outcome core.Outcome)

	IsComplete() bool
	Status() TrackerStatus
	Summary() JobSummary
}

// Policy holds the scheduling knobs shared by every tracker of an engine.
type Policy struct {
	ChunkSize   int64
	RangeMin    int64
	RangeMax    int64
	MaxAttempts int
	StopOnHit   bool
}

func DefaultPolicy() Policy {
	return Policy{
		ChunkSize:   100_000,
		RangeMin:    0,
		RangeMax:    9_999_999,
		MaxAttempts: 5,
	}
}

// NewTracker builds the tracker matching the job's family.
func NewTracker(job core.Job, policy Policy) (Tracker, error) {
	switch job.Family {
	case core.FamilyPassword:
		if job.Password == nil {
			return nil, fmt.Errorf("password job %d has no parameters", job.ID)
		}
		if policy.ChunkSize <= 0 {
			return nil, fmt.Errorf("chunk size must be positive, got %d", policy.ChunkSize)
		}
		return NewRangeTracker(job.ID, *job.Password, policy), nil
	case core.FamilySubstring:
		if job.Pair == nil {
			return nil, fmt.Errorf("pair job %d has no parameters", job.ID)
		}
		item := core.WorkItem{JobID: job.ID, Family: job.Family, Pair: job.Pair}
		return NewAtomicTracker(job.ID, item, policy.MaxAttempts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, job.Family)
}

// exhausted reports whether a unit with the given number of charged failures
// must be abandoned instead of reissued.
func exhausted(charged, maxAttempts int) bool {
	return maxAttempts > 0 && charged >= maxAttempts
}
