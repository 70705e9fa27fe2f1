package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/internal/coordinator/service"
	"github.com/nemanja-m/hivemind/internal/shared/config"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/pkg/core"
)

// Cluster is the part of the master process the operator API drives.
type Cluster interface {
	Submit(ctx context.Context, job core.Job) (core.JobID, error)
	Status(ctx context.Context) ([]service.MasterStatus, error)
	RegisterWorker(address string, slots int) ([]string, error)
	Shutdown()
	Kill()
}

type API struct {
	cluster Cluster
	store   coord.JobStore
	logger  logging.Logger
}

func NewAPI(cluster Cluster, store coord.JobStore, logger logging.Logger) *API {
	return &API{
		cluster: cluster,
		store:   store,
		logger:  logger,
	}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/jobs/passwords", a.submitPassword)
	mux.HandleFunc("POST /api/jobs/pairs", a.submitPair)
	mux.HandleFunc("GET /api/jobs", a.listJobs)
	mux.HandleFunc("GET /api/status", a.getStatus)
	mux.HandleFunc("POST /api/workers", a.registerWorker)
	mux.HandleFunc("POST /api/shutdown", a.shutdown)
	mux.HandleFunc("POST /api/kill", a.kill)
}

// submitPassword handles POST /api/jobs/passwords
func (a *API) submitPassword(w http.ResponseWriter, r *http.Request) {
	var req SubmitPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := validatePasswordRequest(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	a.submit(w, r, req.ToJob())
}

// submitPair handles POST /api/jobs/pairs
func (a *API) submitPair(w http.ResponseWriter, r *http.Request) {
	var req SubmitPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := validatePairRequest(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	a.submit(w, r, req.ToJob())
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, job core.Job) {
	id, err := a.cluster.Submit(r.Context(), job)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAccepting), errors.Is(err, service.ErrMasterStopped):
			a.respondError(w, http.StatusConflict, "job rejected", err.Error())
		default:
			a.logger.Error("Failed to submit job", "family", job.Family, "error", err)
			a.respondError(w, http.StatusInternalServerError, "failed to submit job", err.Error())
		}
		return
	}
	a.respondJSON(w, http.StatusAccepted, ToSubmitJobResponse(job.Family, id))
}

// listJobs handles GET /api/jobs with filters and pagination
func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := coord.JobFilter{Limit: DefaultListLimit}
	if family := query.Get("family"); family != "" {
		f := core.Family(family)
		filter.Family = &f
	}
	if status := query.Get("status"); status != "" {
		s := coord.JobStatus(status)
		filter.Status = &s
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			filter.Limit = min(l, MaxListLimit)
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	jobs, total, err := a.store.GetJobs(filter)
	if err != nil {
		a.logger.Error("Failed to list jobs", "error", err)
		a.respondError(w, http.StatusInternalServerError, "failed to list jobs", err.Error())
		return
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, ToJobSummary(job))
	}

	var nextOffset *int
	if end := filter.Offset + len(jobs); end < total {
		nextOffset = &end
	}

	a.respondJSON(w, http.StatusOK, ListJobsResponse{
		Jobs:       summaries,
		Total:      total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		NextOffset: nextOffset,
	})
}

// getStatus handles GET /api/status
func (a *API) getStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := a.cluster.Status(r.Context())
	if err != nil {
		a.respondError(w, http.StatusServiceUnavailable, "status unavailable", err.Error())
		return
	}
	resp := StatusResponse{Masters: make([]MasterStatusInfo, 0, len(statuses))}
	for _, s := range statuses {
		resp.Masters = append(resp.Masters, ToMasterStatusInfo(s))
	}
	a.respondJSON(w, http.StatusOK, resp)
}

// registerWorker handles POST /api/workers
func (a *API) registerWorker(w http.ResponseWriter, r *http.Request) {
	var req RegisterWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Address == "" {
		a.respondError(w, http.StatusBadRequest, "validation failed", "address is required")
		return
	}
	if req.Slots <= 0 {
		a.respondError(w, http.StatusBadRequest, "validation failed", "slots must be greater than 0")
		return
	}

	slots, err := a.cluster.RegisterWorker(req.Address, req.Slots)
	if err != nil {
		if errors.Is(err, service.ErrRegistryClosed) {
			a.respondError(w, http.StatusConflict, "registration closed", err.Error())
			return
		}
		a.respondError(w, http.StatusBadGateway, "failed to register worker", err.Error())
		return
	}
	a.respondJSON(w, http.StatusCreated, RegisterWorkerResponse{Slots: slots})
}

// shutdown handles POST /api/shutdown
func (a *API) shutdown(w http.ResponseWriter, r *http.Request) {
	a.logger.Info("Shutdown requested over HTTP", "remote_addr", r.RemoteAddr)
	a.cluster.Shutdown()
	a.respondJSON(w, http.StatusAccepted, CommandResponse{Command: "shutdown", Status: "draining"})
}

// kill handles POST /api/kill
func (a *API) kill(w http.ResponseWriter, r *http.Request) {
	a.logger.Warn("Kill requested over HTTP", "remote_addr", r.RemoteAddr)
	a.cluster.Kill()
	a.respondJSON(w, http.StatusAccepted, CommandResponse{Command: "kill", Status: "killed"})
}

func validatePasswordRequest(req *SubmitPasswordRequest) error {
	if req.TargetHash == "" {
		return fmt.Errorf("target_hash is required")
	}
	if len(req.TargetHash) != 64 {
		return fmt.Errorf("target_hash must be a hex sha-256 digest")
	}
	return nil
}

func validatePairRequest(req *SubmitPairRequest) error {
	if req.A.ID == req.B.ID {
		return fmt.Errorf("a pair needs two distinct participants")
	}
	if req.A.DNA == "" || req.B.DNA == "" {
		return fmt.Errorf("both participants need a dna sequence")
	}
	return nil
}

func (a *API) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Debug("Failed to write response", "error", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, statusCode int, error string, message string) {
	resp := ErrorResponse{
		Error:   error,
		Message: message,
		Code:    statusCode,
	}
	a.respondJSON(w, statusCode, resp)
}

func NewServer(cfg config.RESTConfig, cluster Cluster, store coord.JobStore, logger logging.Logger) *http.Server {
	api := NewAPI(cluster, store, logger)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	handler := ChainMiddleware(
		mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger),
	)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
