package core

import (
	"time"

	"github.com/nemanja-m/hivemind/pkg/core"
)

type JobStatus string

const (
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusAborted   JobStatus = "ABORTED"
)

// JobRecord is the operator-facing view of a submitted job.
type JobRecord struct {
	ID          core.JobID
	Family      core.Family
	Status      JobStatus
	Description string
	Summary     *JobSummary

	SubmittedAt time.Time
	CompletedAt *time.Time
}

func (j *JobRecord) Duration() time.Duration {
	if j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(j.SubmittedAt)
}

// Complete returns a copy of the record finished with summary at the given
// time.
func (j JobRecord) Complete(summary JobSummary, at time.Time) JobRecord {
	j.Status = JobStatusCompleted
	j.Summary = &summary
	j.CompletedAt = &at
	return j
}

// Abort returns a copy of the record stopped at the given time while work was
// still outstanding. A record that already finished is returned unchanged.
func (j JobRecord) Abort(at time.Time) JobRecord {
	if j.Status != JobStatusRunning {
		return j
	}
	j.Status = JobStatusAborted
	j.CompletedAt = &at
	return j
}

// JobSummary is produced when a tracker completes and is evicted.
type JobSummary struct {
	JobID     core.JobID
	Family    core.Family
	Issued    int
	Completed int
	Failures  int
	Abandoned int
	Hits      int
}

// TrackerStatus describes a live tracker.
type TrackerStatus struct {
	JobID         core.JobID
	Family        core.Family
	InFlight      int
	PendingFailed int
	Completed     int
	Failures      int
	Abandoned     int
	Remaining     int64
}

// Snapshot is a point-in-time view of a scheduling engine.
type Snapshot struct {
	Workers  int
	Busy     int
	Trackers []TrackerStatus
}

type JobFilter struct {
	Family *core.Family
	Status *JobStatus
	Limit  int
	Offset int
}
