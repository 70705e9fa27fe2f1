package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/pkg/core"
)

var (
	ErrNotAccepting  = errors.New("master is not accepting jobs")
	ErrMasterStopped = errors.New("master stopped")
	ErrWrongFamily   = errors.New("job family does not match master")
)

type MasterState int32

const (
	StateAccepting MasterState = iota
	StateDraining
	StateTerminated
)

func (s MasterState) String() string {
	switch s {
	case StateAccepting:
		return "ACCEPTING"
	case StateDraining:
		return "DRAINING"
	case StateTerminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("MasterState(%d)", int32(s))
}

// MasterStatus is a point-in-time view of one family's master.
type MasterStatus struct {
	Family    core.Family
	State     MasterState
	NextJobID core.JobID
	Engine    coord.Snapshot
	Latency   LatencyStats
}

type MasterOptions struct {
	Family core.Family
	Policy coord.Policy
	Sink   ResultSink
	Store  coord.JobStore
	Reaper Reaper
	Logger logging.Logger
}

type submitMsg struct {
	job   core.Job
	reply chan submitReply
}

type submitReply struct {
	id  core.JobID
	err error
}

type resultMsg struct {
	result core.WorkResult
	at     time.Time
}

type joinedMsg struct {
	handles []core.WorkerHandle
}

type failedMsg struct {
	worker uuid.UUID
	cause  error
}

type shutdownMsg struct{}

type statusMsg struct {
	reply chan MasterStatus
}

// Master owns the scheduling engine of one job family. Every state change
// happens on its run goroutine, fed by a single inbox. Kill travels on its
// own channel so it overtakes any backlog.
type Master struct {
	name   string
	family core.Family

	engine  *coord.Engine
	latency *latencyRecorder
	nextID  core.JobID
	state   atomic.Int32

	inbox    chan any
	kill     chan struct{}
	killOnce sync.Once
	stopped  chan struct{}

	sink   ResultSink
	store  coord.JobStore
	reaper Reaper
	logger logging.Logger
}

func NewMaster(opts MasterOptions) *Master {
	name := "master-" + string(opts.Family)
	m := &Master{
		name:    name,
		family:  opts.Family,
		latency: newLatencyRecorder(),
		inbox:   make(chan any, 1024),
		kill:    make(chan struct{}),
		stopped: make(chan struct{}),
		sink:    opts.Sink,
		store:   opts.Store,
		reaper:  opts.Reaper,
		logger:  opts.Logger.With("master", name),
	}
	m.engine = coord.NewEngine(opts.Policy, m.dispatch, m.logger)
	return m
}

func (m *Master) Name() string        { return m.name }
func (m *Master) Family() core.Family { return m.family }

func (m *Master) State() MasterState {
	return MasterState(m.state.Load())
}

// Done is closed once the master has terminated.
func (m *Master) Done() <-chan struct{} {
	return m.stopped
}

func (m *Master) Start() {
	m.reaper.Watch(m.name)
	m.logger.Info("Master started", "family", m.family)
	go m.run()
}

// Submit hands a job to the master and returns its assigned id. Jobs are
// rejected with ErrNotAccepting once the master is draining.
func (m *Master) Submit(ctx context.Context, job core.Job) (core.JobID, error) {
	reply := make(chan submitReply, 1)
	if err := m.send(ctx, submitMsg{job: job, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case r := <-reply:
		return r.id, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-m.stopped:
		return 0, ErrMasterStopped
	}
}

// Deliver receives a worker's result.
func (m *Master) Deliver(result core.WorkResult) {
	_ = m.send(context.Background(), resultMsg{result: result, at: time.Now()})
}

// Attach registers worker handles with the master. Handles offered to a
// stopped master are stopped.
func (m *Master) Attach(handles ...core.WorkerHandle) error {
	if err := m.send(context.Background(), joinedMsg{handles: handles}); err != nil {
		for _, h := range handles {
			h.Stop()
		}
		return err
	}
	return nil
}

// WorkerFailed reports a worker the failure detector considers dead.
func (m *Master) WorkerFailed(id uuid.UUID, cause error) {
	_ = m.send(context.Background(), failedMsg{worker: id, cause: cause})
}

// Shutdown stops accepting jobs. The master terminates once no job is in
// progress or no worker is left to run one.
func (m *Master) Shutdown() {
	_ = m.send(context.Background(), shutdownMsg{})
}

// Kill terminates the master at once, discarding unflushed results.
func (m *Master) Kill() {
	m.killOnce.Do(func() { close(m.kill) })
}

func (m *Master) Status(ctx context.Context) (MasterStatus, error) {
	reply := make(chan MasterStatus, 1)
	if err := m.send(ctx, statusMsg{reply: reply}); err != nil {
		return MasterStatus{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return MasterStatus{}, ctx.Err()
	case <-m.stopped:
		return MasterStatus{}, ErrMasterStopped
	}
}

func (m *Master) send(ctx context.Context, msg any) error {
	select {
	case <-m.stopped:
		return ErrMasterStopped
	default:
	}
	select {
	case m.inbox <- msg:
		return nil
	case <-m.stopped:
		return ErrMasterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hasFinished reports whether a draining master may terminate.
func (m *Master) hasFinished() bool {
	return m.State() == StateDraining &&
		(!m.engine.HasTasksInProgress() || m.engine.CountWorkers() == 0)
}

func (m *Master) run() {
	defer close(m.stopped)

	for {
		select {
		case <-m.kill:
			m.abort()
			return
		default:
		}

		select {
		case <-m.kill:
			m.abort()
			return
		case msg := <-m.inbox:
			m.handle(msg)
			if m.State() == StateTerminated {
				return
			}
		}
	}
}

func (m *Master) handle(msg any) {
	switch msg := msg.(type) {
	case submitMsg:
		id, err := m.onSubmit(msg.job)
		msg.reply <- submitReply{id: id, err: err}
	case resultMsg:
		m.onResult(msg.result, msg.at)
	case joinedMsg:
		m.onJoined(msg.handles)
	case failedMsg:
		m.onWorkerFailed(msg.worker, msg.cause)
	case shutdownMsg:
		m.onShutdown()
	case statusMsg:
		msg.reply <- m.status()
	default:
		m.logger.Warn("Unknown message", "type", fmt.Sprintf("%T", msg))
	}
}

func (m *Master) onSubmit(job core.Job) (core.JobID, error) {
	if m.State() != StateAccepting {
		m.logger.Warn("Job rejected", "state", m.State(), "family", job.Family)
		return 0, ErrNotAccepting
	}
	if job.Family != m.family {
		return 0, fmt.Errorf("%w: got %q", ErrWrongFamily, job.Family)
	}

	job.ID = m.nextID
	summary, err := m.engine.Submit(job)
	if err != nil {
		m.onFault(err)
		return 0, err
	}
	m.nextID++

	now := time.Now().UTC()
	m.saveJob(&coord.JobRecord{
		ID:          job.ID,
		Family:      job.Family,
		Status:      coord.JobStatusRunning,
		Description: describe(job),
		SubmittedAt: now,
	})
	m.logger.Debug("Job submitted", "job_id", job.ID)

	if summary != nil {
		m.onJobFinished(*summary)
	}
	return job.ID, nil
}

func (m *Master) onResult(result core.WorkResult, at time.Time) {
	summary, err := m.engine.Finished(result.JobID, result.Worker, result.Outcome)
	if err != nil {
		m.onFault(err)
		return
	}
	m.latency.finished(result.Worker, at)

	if result.Outcome.Positive() {
		switch {
		case result.Outcome.Password != nil:
			m.sink.PasswordFound(*result.Outcome.Password)
		case result.Outcome.Match != nil:
			m.sink.MatchFound(*result.Outcome.Match)
		}
	}
	if summary != nil {
		m.onJobFinished(*summary)
	}
	m.terminateIfFinished()
}

func (m *Master) onJoined(handles []core.WorkerHandle) {
	for _, h := range handles {
		if m.State() == StateTerminated {
			h.Stop()
			continue
		}
		if err := m.engine.AddWorker(h); err != nil {
			m.logger.Error("Failed to add worker", "worker_id", h.ID(), "error", err)
			continue
		}
		m.logger.Info("Worker joined", "worker_id", h.ID(), "address", h.Address(), "workers", m.engine.CountWorkers())
		m.watch(h)
	}
}

func (m *Master) onWorkerFailed(id uuid.UUID, cause error) {
	before := m.engine.CountWorkers()
	summary, err := m.engine.RemoveWorker(id, cause)
	if err != nil {
		m.onFault(err)
		return
	}
	m.latency.forget(id)
	if m.engine.CountWorkers() < before {
		m.logger.Warn("Worker left", "worker_id", id, "cause", cause, "workers", m.engine.CountWorkers())
	}
	if summary != nil {
		m.onJobFinished(*summary)
	}
	m.terminateIfFinished()
}

func (m *Master) onShutdown() {
	if m.State() == StateAccepting {
		m.state.Store(int32(StateDraining))
		m.logger.Info("Master draining", "jobs_in_progress", len(m.engine.Snapshot().Trackers))
	}
	m.terminateIfFinished()
}

func (m *Master) onJobFinished(summary coord.JobSummary) {
	m.sink.JobFinished(summary)
	job, err := m.store.GetJob(m.family, summary.JobID)
	if err != nil || job == nil {
		return
	}
	updated := job.Complete(summary, time.Now().UTC())
	m.updateJob(&updated)
}

// onFault applies the fault classification of an engine error: recoverable
// faults are logged and dropped, fatal ones abort the family.
func (m *Master) onFault(err error) {
	if coord.Classify(err) == coord.FaultFatal {
		m.logger.Error("Fatal scheduler fault, aborting family", "error", err)
		m.terminate()
		return
	}
	m.logger.Debug("Ignoring recoverable fault", "error", err)
}

func (m *Master) terminateIfFinished() {
	if m.hasFinished() {
		m.terminate()
	}
}

// terminate flushes the sink, then stops every worker and the master itself.
// Jobs still tracked are recorded as aborted.
func (m *Master) terminate() {
	m.state.Store(int32(StateTerminated))
	m.sink.Flush(m.name)
	m.stopAll()
	m.logger.Info("Master terminated")
}

func (m *Master) abort() {
	m.state.Store(int32(StateTerminated))
	m.sink.Kill()
	m.stopAll()
	m.logger.Warn("Master killed")
}

func (m *Master) stopAll() {
	for _, h := range m.engine.Workers() {
		h.Stop()
	}
	stoppedAt := time.Now().UTC()
	for _, t := range m.engine.Snapshot().Trackers {
		if job, err := m.store.GetJob(m.family, t.JobID); err == nil && job != nil {
			updated := job.Abort(stoppedAt)
			m.updateJob(&updated)
		}
	}
	stats := m.latency.stats()
	m.logger.Info("Item latency",
		"count", stats.Count,
		"p50", stats.P50,
		"p99", stats.P99,
		"max", stats.Max,
	)
	m.reaper.Unwatch(m.name)
}

func (m *Master) status() MasterStatus {
	return MasterStatus{
		Family:    m.family,
		State:     m.State(),
		NextJobID: m.nextID,
		Engine:    m.engine.Snapshot(),
		Latency:   m.latency.stats(),
	}
}

func (m *Master) dispatch(worker core.WorkerHandle, item core.WorkItem) {
	m.latency.dispatched(worker.ID(), time.Now())
	worker.Dispatch(core.Request{Item: item, ReplyTo: m})
}

// watch reports the worker as failed once its handle closes.
func (m *Master) watch(h core.WorkerHandle) {
	go func() {
		select {
		case <-h.Done():
			m.WorkerFailed(h.ID(), h.Err())
		case <-m.stopped:
		}
	}()
}

func (m *Master) saveJob(job *coord.JobRecord) {
	if err := m.store.SaveJob(job); err != nil {
		m.logger.Error("Failed to save job", "job_id", job.ID, "error", err)
	}
}

func (m *Master) updateJob(job *coord.JobRecord) {
	if err := m.store.UpdateJob(job); err != nil {
		m.logger.Error("Failed to update job", "job_id", job.ID, "error", err)
	}
}

func describe(job core.Job) string {
	switch {
	case job.Password != nil:
		return fmt.Sprintf("crack password of %s (id %d)", job.Password.Username, job.Password.UserID)
	case job.Pair != nil:
		return fmt.Sprintf("compare dna of %d and %d", job.Pair.A.ID, job.Pair.B.ID)
	}
	return string(job.Family)
}
