package rest

import (
	"fmt"
	"time"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/internal/coordinator/service"
	"github.com/nemanja-m/hivemind/pkg/core"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

func (req *SubmitPasswordRequest) ToJob() core.Job {
	return core.Job{
		Family: core.FamilyPassword,
		Password: &core.PasswordJob{
			UserID:     req.UserID,
			Username:   req.Username,
			TargetHash: req.TargetHash,
		},
	}
}

func (req *SubmitPairRequest) ToJob() core.Job {
	return core.Job{
		Family: core.FamilySubstring,
		Pair: &core.PairJob{
			A: req.A.toParticipant(),
			B: req.B.toParticipant(),
		},
	}
}

func (p ParticipantInfo) toParticipant() core.Participant {
	return core.Participant{ID: p.ID, Name: p.Name, DNA: p.DNA}
}

func ToSubmitJobResponse(family core.Family, id core.JobID) SubmitJobResponse {
	return SubmitJobResponse{
		JobID:  int64(id),
		Family: string(family),
		Status: string(coord.JobStatusRunning),
		Links: Links{
			Self: fmt.Sprintf("/api/jobs?family=%s", family),
		},
	}
}

func ToJobSummary(job *coord.JobRecord) JobSummary {
	summary := JobSummary{
		JobID:       int64(job.ID),
		Family:      string(job.Family),
		Status:      string(job.Status),
		Description: job.Description,
		SubmittedAt: job.SubmittedAt,
		CompletedAt: job.CompletedAt,
		DurationMs:  job.Duration().Milliseconds(),
	}
	if job.Summary != nil {
		summary.Result = &ResultInfo{
			Issued:    job.Summary.Issued,
			Completed: job.Summary.Completed,
			Failures:  job.Summary.Failures,
			Abandoned: job.Summary.Abandoned,
			Hits:      job.Summary.Hits,
		}
	}
	return summary
}

func ToMasterStatusInfo(status service.MasterStatus) MasterStatusInfo {
	jobs := make([]TrackerInfo, 0, len(status.Engine.Trackers))
	for _, t := range status.Engine.Trackers {
		jobs = append(jobs, TrackerInfo{
			JobID:         int64(t.JobID),
			InFlight:      t.InFlight,
			PendingFailed: t.PendingFailed,
			Completed:     t.Completed,
			Failures:      t.Failures,
			Abandoned:     t.Abandoned,
			Remaining:     t.Remaining,
		})
	}
	return MasterStatusInfo{
		Family:    string(status.Family),
		State:     status.State.String(),
		NextJobID: int64(status.NextJobID),
		Workers:   status.Engine.Workers,
		Busy:      status.Engine.Busy,
		Jobs:      jobs,
		Latency: LatencyInfo{
			Count: status.Latency.Count,
			P50Ms: millis(status.Latency.P50),
			P99Ms: millis(status.Latency.P99),
			MaxMs: millis(status.Latency.Max),
		},
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
