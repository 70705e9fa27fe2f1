package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/pkg/core"
)

// Prober checks whether a worker endpoint is reachable and serving.
type Prober interface {
	Probe(ctx context.Context, address string) error
}

// RemoteHandle is a worker handle the health checker can force into the
// failed state.
type RemoteHandle interface {
	core.WorkerHandle
	Fail(err error)
}

// WorkerHealthChecker probes every tracked endpoint on a fixed interval and
// fails all handles of an endpoint that does not answer.
type WorkerHealthChecker struct {
	checkInterval time.Duration
	probeTimeout  time.Duration
	prober        Prober

	mu        sync.Mutex
	endpoints map[string][]RemoteHandle

	logger logging.Logger
}

func NewWorkerHealthChecker(
	checkInterval time.Duration,
	probeTimeout time.Duration,
	prober Prober,
	logger logging.Logger,
) *WorkerHealthChecker {
	return &WorkerHealthChecker{
		checkInterval: checkInterval,
		probeTimeout:  probeTimeout,
		prober:        prober,
		endpoints:     make(map[string][]RemoteHandle),
		logger:        logger,
	}
}

func (h *WorkerHealthChecker) Track(address string, handles ...RemoteHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints[address] = append(h.endpoints[address], handles...)
}

func (h *WorkerHealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkEndpoints(ctx)
		}
	}
}

func (h *WorkerHealthChecker) checkEndpoints(ctx context.Context) {
	for address, handles := range h.snapshot() {
		probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
		err := h.prober.Probe(probeCtx, address)
		cancel()
		if err == nil {
			continue
		}

		h.logger.Warn("Removing unreachable worker endpoint", "address", address, "workers", len(handles), "error", err)
		for _, handle := range handles {
			handle.Fail(fmt.Errorf("health check of %s failed: %w", address, err))
		}
		h.untrack(address)
	}
}

// snapshot drops handles that already stopped and returns the endpoints that
// still have live handles.
func (h *WorkerHealthChecker) snapshot() map[string][]RemoteHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	live := make(map[string][]RemoteHandle, len(h.endpoints))
	for address, handles := range h.endpoints {
		alive := handles[:0]
		for _, handle := range handles {
			select {
			case <-handle.Done():
			default:
				alive = append(alive, handle)
			}
		}
		if len(alive) == 0 {
			delete(h.endpoints, address)
			continue
		}
		h.endpoints[address] = alive
		live[address] = append([]RemoteHandle(nil), alive...)
	}
	return live
}

func (h *WorkerHealthChecker) untrack(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, address)
}
