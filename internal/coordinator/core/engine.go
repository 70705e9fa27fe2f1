package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/pkg/core"
)

// DispatchFunc delivers an assigned item to a worker. It must not block.
type DispatchFunc func(worker core.WorkerHandle, item core.WorkItem)

type workerSlot struct {
	handle core.WorkerHandle
	bound  bool
	jobID  core.JobID
}

// Engine pairs idle workers with trackers that have work. It is not safe for
// concurrent use; the owning master serializes every call.
type Engine struct {
	policy   Policy
	dispatch DispatchFunc
	logger   logging.Logger

	trackers []Tracker
	byJob    map[core.JobID]Tracker
	cursor   int

	workers  []*workerSlot
	byWorker map[uuid.UUID]*workerSlot
}

func NewEngine(policy Policy, dispatch DispatchFunc, logger logging.Logger) *Engine {
	return &Engine{
		policy:   policy,
		dispatch: dispatch,
		logger:   logger,
		byJob:    make(map[core.JobID]Tracker),
		byWorker: make(map[uuid.UUID]*workerSlot),
	}
}

// Submit registers a tracker for job and runs an assignment pass. A job with
// nothing to do completes at once and its summary is returned.
func (e *Engine) Submit(job core.Job) (*JobSummary, error) {
	if _, exists := e.byJob[job.ID]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateJob, job.ID)
	}
	tracker, err := NewTracker(job, e.policy)
	if err != nil {
		return nil, err
	}
	if tracker.IsComplete() {
		summary := tracker.Summary()
		return &summary, nil
	}

	e.trackers = append(e.trackers, tracker)
	e.byJob[job.ID] = tracker
	e.logger.Debug("Tracker created", "job_id", job.ID, "family", job.Family)

	e.assign()
	return nil, nil
}

func (e *Engine) AddWorker(handle core.WorkerHandle) error {
	if _, exists := e.byWorker[handle.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, handle.ID())
	}
	slot := &workerSlot{handle: handle}
	e.workers = append(e.workers, slot)
	e.byWorker[handle.ID()] = slot

	e.assign()
	return nil
}

// RemoveWorker drops a worker. Work it held is returned to its tracker first,
// which may complete the tracker when the unit is abandoned. Only a cause
// wrapping core.ErrWorkFunction counts toward the retry cap. Removing an
// unknown worker is a no-op.
func (e *Engine) RemoveWorker(id uuid.UUID, cause error) (*JobSummary, error) {
	slot, ok := e.byWorker[id]
	if !ok {
		return nil, nil
	}

	delete(e.byWorker, id)
	e.workers = slices.DeleteFunc(e.workers, func(s *workerSlot) bool { return s == slot })

	var summary *JobSummary
	if slot.bound {
		tracker, ok := e.byJob[slot.jobID]
		if !ok {
			return nil, fmt.Errorf("%w: worker %s bound to missing job %d", ErrInvariantViolation, id, slot.jobID)
		}
		tracker.WorkFailed(id, errors.Is(cause, core.ErrWorkFunction))
		e.logger.Info("Work returned by removed worker", "worker_id", id, "job_id", slot.jobID)
		summary = e.evictIfComplete(tracker)
	}

	e.assign()
	return summary, nil
}

// Finished applies a worker's result. Results from workers that are not bound
// to jobID are stale and rejected with ErrStaleResult.
func (e *Engine) Finished(jobID core.JobID, worker uuid.UUID, outcome core.Outcome) (*JobSummary, error) {
	slot, ok := e.byWorker[worker]
	if !ok || !slot.bound || slot.jobID != jobID {
		return nil, fmt.Errorf("%w: worker %s job %d", ErrStaleResult, worker, jobID)
	}
	tracker, ok := e.byJob[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: result for missing job %d from worker %s", ErrInvariantViolation, jobID, worker)
	}

	tracker.WorkCompleted(worker, outcome)
	slot.bound = false
	summary := e.evictIfComplete(tracker)

	e.assign()
	return summary, nil
}

func (e *Engine) CountWorkers() int {
	return len(e.workers)
}

func (e *Engine) HasTasksInProgress() bool {
	return len(e.trackers) > 0
}

// Workers returns the registered handles in registration order.
func (e *Engine) Workers() []core.WorkerHandle {
	handles := make([]core.WorkerHandle, 0, len(e.workers))
	for _, slot := range e.workers {
		handles = append(handles, slot.handle)
	}
	return handles
}

func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Workers:  len(e.workers),
		Trackers: make([]TrackerStatus, 0, len(e.trackers)),
	}
	for _, slot := range e.workers {
		if slot.bound {
			snap.Busy++
		}
	}
	for _, tracker := range e.trackers {
		snap.Trackers = append(snap.Trackers, tracker.Status())
	}
	return snap
}

// assign hands work to idle workers in registration order. Each worker walks
// the trackers once starting at the cursor, which then moves past the tracker
// that served it. A worker that finds no work ends the pass, since every
// later worker would see the same trackers.
func (e *Engine) assign() {
	for _, slot := range e.workers {
		if slot.bound {
			continue
		}
		if !e.assignOne(slot) {
			return
		}
	}
}

func (e *Engine) assignOne(slot *workerSlot) bool {
	n := len(e.trackers)
	for step := range n {
		idx := (e.cursor + step) % n
		tracker := e.trackers[idx]
		item, ok := tracker.AssignWork(slot.handle.ID())
		if !ok {
			continue
		}
		slot.bound = true
		slot.jobID = tracker.JobID()
		e.cursor = (idx + 1) % n
		e.dispatch(slot.handle, item)
		return true
	}
	return false
}

func (e *Engine) evictIfComplete(tracker Tracker) *JobSummary {
	if !tracker.IsComplete() {
		return nil
	}
	idx := slices.Index(e.trackers, tracker)
	e.trackers = slices.Delete(e.trackers, idx, idx+1)
	delete(e.byJob, tracker.JobID())

	if idx < e.cursor {
		e.cursor--
	}
	if e.cursor >= len(e.trackers) {
		e.cursor = 0
	}

	summary := tracker.Summary()
	e.logger.Info("Job completed",
		"job_id", summary.JobID,
		"family", summary.Family,
		"issued", summary.Issued,
		"failures", summary.Failures,
		"abandoned", summary.Abandoned,
		"hits", summary.Hits,
	)
	return &summary
}
