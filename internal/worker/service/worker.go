package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/internal/worker/core"
	hive "github.com/nemanja-m/hivemind/pkg/core"
	"github.com/nemanja-m/hivemind/pkg/local"
)

var ErrWorkerBusy = errors.New("item dispatched to a busy worker")

// LocalWorker executes items on a goroutine of the master process. It holds
// at most one item. When the work function fails the worker stops and Done
// closes; the failure is never reported as a result.
type LocalWorker struct {
	id       uuid.UUID
	executor core.TaskExecutor
	inbox    chan hive.Request
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error

	logger logging.Logger
}

func NewLocalWorker(executor core.TaskExecutor, logger logging.Logger) *LocalWorker {
	id := uuid.New()
	return &LocalWorker{
		id:       id,
		executor: executor,
		inbox:    make(chan hive.Request, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.With("worker_id", id.String()),
	}
}

// Start runs the worker loop on pool.
func (w *LocalWorker) Start(pool *local.Pool) error {
	return pool.Submit(w.run)
}

func (w *LocalWorker) ID() uuid.UUID   { return w.id }
func (w *LocalWorker) Address() string { return "local" }

func (w *LocalWorker) Dispatch(req hive.Request) {
	select {
	case w.inbox <- req:
	default:
		// A bound worker never receives a second item, so the owner has lost
		// track of it. Stopping hands the item back for reissue.
		w.fail(fmt.Errorf("%w: job %d", ErrWorkerBusy, req.Item.JobID))
		w.Stop()
	}
}

func (w *LocalWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

func (w *LocalWorker) Done() <-chan struct{} {
	return w.done
}

func (w *LocalWorker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *LocalWorker) run(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.inbox:
			outcome, err := w.executor.Execute(ctx, req.Item)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.fail(fmt.Errorf("job %d: %w: %w", req.Item.JobID, hive.ErrWorkFunction, err))
				return
			}
			req.ReplyTo.Deliver(hive.WorkResult{
				JobID:   req.Item.JobID,
				Worker:  w.id,
				Outcome: outcome,
			})
		}
	}
}

func (w *LocalWorker) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	w.logger.Error("Worker failed", "error", err)
}

type workerService struct {
	client      core.RegistryClient
	slots       core.SlotBook
	addr        string
	numSlots    int
	joinTimeout time.Duration
	logger      logging.Logger
}

// NewWorkerService returns the run loop of a remote worker process: join the
// master, then wait until every attached slot is released.
func NewWorkerService(
	client core.RegistryClient,
	slots core.SlotBook,
	addr string,
	numSlots int,
	joinTimeout time.Duration,
	logger logging.Logger,
) core.WorkerService {
	return &workerService{
		client:      client,
		slots:       slots,
		addr:        addr,
		numSlots:    numSlots,
		joinTimeout: joinTimeout,
		logger:      logger,
	}
}

func (w *workerService) Run(ctx context.Context) error {
	ids, err := w.join(ctx)
	if err != nil {
		return err
	}
	w.slots.Expect(ids)
	w.logger.Info("Joined master", "address", w.addr, "slots", len(ids))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.slots.Released():
		w.logger.Info("All slots released")
		return nil
	}
}

func (w *workerService) join(ctx context.Context) ([]string, error) {
	const (
		minBackoff = 100 * time.Millisecond
		maxBackoff = 5 * time.Second
	)
	backoff := minBackoff

	for {
		joinCtx, cancel := context.WithTimeout(ctx, w.joinTimeout)
		ids, err := w.client.Join(joinCtx, w.addr, w.numSlots)
		cancel()
		if err == nil {
			return ids, nil
		}
		if errors.Is(err, core.ErrJoinRefused) {
			return nil, err
		}

		w.logger.Error("Failed to join master", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
