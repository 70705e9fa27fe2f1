package core

import (
	"github.com/google/uuid"

	"github.com/nemanja-m/hivemind/pkg/core"
)

type rangeUnit struct {
	chunk   core.RangeChunk
	charged int
}

// RangeTracker splits an inclusive integer domain into chunks of at most
// ChunkSize values. Failed chunks are reissued before fresh ones are carved.
type RangeTracker struct {
	jobID  core.JobID
	params core.PasswordJob
	width  int

	next      int64
	max       int64
	chunkSize int64
	drained   bool

	maxAttempts int
	stopOnHit   bool

	issued map[uuid.UUID]*rangeUnit
	failed *Queue[*rangeUnit]

	dispatched int
	completed  int
	failures   int
	abandoned  int
	hits       int
}

func NewRangeTracker(jobID core.JobID, params core.PasswordJob, policy Policy) *RangeTracker {
	return &RangeTracker{
		jobID:       jobID,
		params:      params,
		width:       core.DigitWidth(policy.RangeMax),
		next:        policy.RangeMin,
		drained:     policy.RangeMin > policy.RangeMax,
		max:         policy.RangeMax,
		chunkSize:   policy.ChunkSize,
		maxAttempts: policy.MaxAttempts,
		stopOnHit:   policy.StopOnHit,
		issued:      make(map[uuid.UUID]*rangeUnit),
		failed:      NewQueue[*rangeUnit](),
	}
}

func (t *RangeTracker) JobID() core.JobID   { return t.jobID }
func (t *RangeTracker) Family() core.Family { return core.FamilyPassword }

func (t *RangeTracker) AssignWork(worker uuid.UUID) (core.WorkItem, bool) {
	if _, busy := t.issued[worker]; busy {
		return core.WorkItem{}, false
	}

	unit, err := t.failed.Pop()
	if err != nil {
		if !t.carving() {
			return core.WorkItem{}, false
		}
		unit = &rangeUnit{chunk: t.carve()}
	}

	t.issued[worker] = unit
	t.dispatched++

	chunk := unit.chunk
	return core.WorkItem{JobID: t.jobID, Family: core.FamilyPassword, Chunk: &chunk}, true
}

func (t *RangeTracker) WorkFailed(worker uuid.UUID, charged bool) {
	unit, ok := t.issued[worker]
	if !ok {
		return
	}
	delete(t.issued, worker)
	t.failures++
	if charged {
		unit.charged++
	}

	switch {
	case exhausted(unit.charged, t.maxAttempts):
		t.abandoned++
	case t.stopOnHit && t.hits > 0:
		// The answer is known; the chunk is no longer worth searching.
	default:
		t.failed.Push(unit)
	}
}

func (t *RangeTracker) WorkCompleted(worker uuid.UUID, outcome core.Outcome) {
	if _, ok := t.issued[worker]; !ok {
		return
	}
	delete(t.issued, worker)
	t.completed++

	if outcome.Password != nil && outcome.Password.Found() {
		t.hits++
		if t.stopOnHit {
			t.failed.Clear()
		}
	}
}

func (t *RangeTracker) IsComplete() bool {
	return len(t.issued) == 0 && t.failed.Len() == 0 && !t.carving()
}

func (t *RangeTracker) Status() TrackerStatus {
	var remaining int64
	if t.carving() {
		remaining = t.max - t.next + 1
	}
	return TrackerStatus{
		JobID:         t.jobID,
		Family:        core.FamilyPassword,
		InFlight:      len(t.issued),
		PendingFailed: t.failed.Len(),
		Completed:     t.completed,
		Failures:      t.failures,
		Abandoned:     t.abandoned,
		Remaining:     remaining,
	}
}

func (t *RangeTracker) Summary() JobSummary {
	return JobSummary{
		JobID:     t.jobID,
		Family:    core.FamilyPassword,
		Issued:    t.dispatched,
		Completed: t.completed,
		Failures:  t.failures,
		Abandoned: t.abandoned,
		Hits:      t.hits,
	}
}

// carving reports whether fresh chunks may still be cut from the domain.
func (t *RangeTracker) carving() bool {
	if t.stopOnHit && t.hits > 0 {
		return false
	}
	return !t.drained
}

func (t *RangeTracker) carve() core.RangeChunk {
	end := t.max
	if t.max-t.next >= t.chunkSize {
		end = t.next + t.chunkSize - 1
	}
	chunk := core.RangeChunk{
		Start:      t.next,
		End:        end,
		UserID:     t.params.UserID,
		Username:   t.params.Username,
		TargetHash: t.params.TargetHash,
		Width:      t.width,
	}
	if end == t.max {
		t.drained = true
	} else {
		t.next = end + 1
	}
	return chunk
}
