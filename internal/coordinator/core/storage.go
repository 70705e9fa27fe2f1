package core

import "github.com/nemanja-m/hivemind/pkg/core"

type JobStore interface {
	SaveJob(job *JobRecord) error
	UpdateJob(job *JobRecord) error
	GetJob(family core.Family, id core.JobID) (*JobRecord, error)
	GetJobs(filter JobFilter) ([]*JobRecord, int, error)
}
