package core

import (
	"github.com/google/uuid"

	"github.com/nemanja-m/hivemind/pkg/core"
)

type atomicState int

const (
	atomicPending atomicState = iota
	atomicRunning
	atomicFinished
	atomicAbandoned
)

// AtomicTracker schedules a single indivisible item. A failed attempt sends
// the identical payload again on the next assignment.
type AtomicTracker struct {
	jobID core.JobID
	item  core.WorkItem

	state       atomicState
	worker      uuid.UUID
	attempts    int
	charged     int
	maxAttempts int
	failures    int
	hit         bool
}

func NewAtomicTracker(jobID core.JobID, item core.WorkItem, maxAttempts int) *AtomicTracker {
	return &AtomicTracker{
		jobID:       jobID,
		item:        item,
		maxAttempts: maxAttempts,
	}
}

func (t *AtomicTracker) JobID() core.JobID   { return t.jobID }
func (t *AtomicTracker) Family() core.Family { return t.item.Family }

func (t *AtomicTracker) AssignWork(worker uuid.UUID) (core.WorkItem, bool) {
	if t.state != atomicPending {
		return core.WorkItem{}, false
	}
	t.state = atomicRunning
	t.worker = worker
	t.attempts++
	return t.item, true
}

func (t *AtomicTracker) WorkFailed(worker uuid.UUID, charged bool) {
	if t.state != atomicRunning || t.worker != worker {
		return
	}
	t.worker = uuid.Nil
	t.failures++
	if charged {
		t.charged++
	}
	if exhausted(t.charged, t.maxAttempts) {
		t.state = atomicAbandoned
		return
	}
	t.state = atomicPending
}

func (t *AtomicTracker) WorkCompleted(worker uuid.UUID, outcome core.Outcome) {
	if t.state != atomicRunning || t.worker != worker {
		return
	}
	t.worker = uuid.Nil
	t.state = atomicFinished
	t.hit = outcome.Positive()
}

func (t *AtomicTracker) IsComplete() bool {
	return t.state == atomicFinished || t.state == atomicAbandoned
}

func (t *AtomicTracker) Status() TrackerStatus {
	s := TrackerStatus{
		JobID:    t.jobID,
		Family:   t.item.Family,
		Failures: t.failures,
	}
	switch t.state {
	case atomicPending:
		if t.attempts > 0 {
			s.PendingFailed = 1
		} else {
			s.Remaining = 1
		}
	case atomicRunning:
		s.InFlight = 1
	case atomicFinished:
		s.Completed = 1
	case atomicAbandoned:
		s.Abandoned = 1
	}
	return s
}

func (t *AtomicTracker) Summary() JobSummary {
	s := t.Status()
	summary := JobSummary{
		JobID:     t.jobID,
		Family:    t.item.Family,
		Issued:    t.attempts,
		Completed: s.Completed,
		Failures:  t.failures,
		Abandoned: s.Abandoned,
	}
	if t.hit {
		summary.Hits = 1
	}
	return summary
}
