package rest

import (
	"time"
)

type SubmitPasswordRequest struct {
	UserID     int    `json:"user_id"`
	Username   string `json:"username"`
	TargetHash string `json:"target_hash"`
}

type SubmitPairRequest struct {
	A ParticipantInfo `json:"a"`
	B ParticipantInfo `json:"b"`
}

type ParticipantInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	DNA  string `json:"dna"`
}

type SubmitJobResponse struct {
	JobID  int64  `json:"job_id"`
	Family string `json:"family"`
	Status string `json:"status"`
	Links  Links  `json:"links"`
}

type Links struct {
	Self string `json:"self"`
}

type ListJobsResponse struct {
	Jobs       []JobSummary `json:"jobs"`
	Total      int          `json:"total"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
	NextOffset *int         `json:"next_offset,omitempty"`
}

type JobSummary struct {
	JobID       int64       `json:"job_id"`
	Family      string      `json:"family"`
	Status      string      `json:"status"`
	Description string      `json:"description"`
	SubmittedAt time.Time   `json:"submitted_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	DurationMs  int64       `json:"duration_ms,omitempty"`
	Result      *ResultInfo `json:"result,omitempty"`
}

type ResultInfo struct {
	Issued    int `json:"issued"`
	Completed int `json:"completed"`
	Failures  int `json:"failures"`
	Abandoned int `json:"abandoned"`
	Hits      int `json:"hits"`
}

type StatusResponse struct {
	Masters []MasterStatusInfo `json:"masters"`
}

type MasterStatusInfo struct {
	Family    string        `json:"family"`
	State     string        `json:"state"`
	NextJobID int64         `json:"next_job_id"`
	Workers   int           `json:"workers"`
	Busy      int           `json:"busy"`
	Jobs      []TrackerInfo `json:"jobs"`
	Latency   LatencyInfo   `json:"latency"`
}

type TrackerInfo struct {
	JobID         int64 `json:"job_id"`
	InFlight      int   `json:"in_flight"`
	PendingFailed int   `json:"pending_failed"`
	Completed     int   `json:"completed"`
	Failures      int   `json:"failures"`
	Abandoned     int   `json:"abandoned"`
	Remaining     int64 `json:"remaining"`
}

type LatencyInfo struct {
	Count int64   `json:"count"`
	P50Ms float64 `json:"p50_ms"`
	P99Ms float64 `json:"p99_ms"`
	MaxMs float64 `json:"max_ms"`
}

type RegisterWorkerRequest struct {
	Address string `json:"address"`
	Slots   int    `json:"slots"`
}

type RegisterWorkerResponse struct {
	Slots []string `json:"slots"`
}

type CommandResponse struct {
	Command string `json:"command"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
