package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/pkg/core"
)

var ErrRegistryClosed = errors.New("worker registry is closed")

// WorkerConnector builds remote handles for the slots a worker process serves.
type WorkerConnector interface {
	Connect(address string, slots int) ([]RemoteHandle, error)
}

// WorkerPool is the side of a master that accepts new workers.
type WorkerPool interface {
	Family() core.Family
	Attach(handles ...core.WorkerHandle) error
}

// WorkerRegistry fans a joining worker process out to every master: each
// master receives its own set of handles for the process's slots.
type WorkerRegistry struct {
	connector WorkerConnector
	pools     []WorkerPool
	health    *WorkerHealthChecker

	mu     sync.Mutex
	closed bool

	logger logging.Logger
}

func NewWorkerRegistry(
	connector WorkerConnector,
	pools []WorkerPool,
	health *WorkerHealthChecker,
	logger logging.Logger,
) *WorkerRegistry {
	return &WorkerRegistry{
		connector: connector,
		pools:     pools,
		health:    health,
		logger:    logger,
	}
}

// RegisterWorker attaches slots handles per master for the process at
// address and returns the ids of the attached handles.
func (r *WorkerRegistry) RegisterWorker(address string, slots int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if slots <= 0 {
		return nil, fmt.Errorf("slots must be positive, got %d", slots)
	}

	r.logger.Debug("Registering worker", "address", address, "slots", slots)

	var ids []string
	for _, pool := range r.pools {
		handles, err := r.connector.Connect(address, slots)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to worker %s: %w", address, err)
		}

		attach := make([]core.WorkerHandle, len(handles))
		for i, h := range handles {
			attach[i] = h
		}
		if err := pool.Attach(attach...); err != nil {
			r.logger.Warn("Master refused workers", "family", pool.Family(), "address", address, "error", err)
			continue
		}

		if r.health != nil {
			r.health.Track(address, handles...)
		}
		for _, h := range handles {
			ids = append(ids, h.ID().String())
		}
	}

	if len(ids) == 0 {
		return nil, ErrRegistryClosed
	}
	r.logger.Info("Worker registered", "address", address, "slots", len(ids))
	return ids, nil
}

// Close refuses every later registration.
func (r *WorkerRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
