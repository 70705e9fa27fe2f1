package grpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/nemanja-m/hivemind/internal/coordinator/service"
	"github.com/nemanja-m/hivemind/internal/shared/config"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/internal/shared/wire"
	"github.com/nemanja-m/hivemind/pkg/core"
)

const releaseTimeout = 5 * time.Second

var ErrConnectorClosed = errors.New("connector is closed")

// releaseGroup runs slot releases in the background. Once closed it refuses
// new releases, so waiting never races with a late Add.
type releaseGroup struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (g *releaseGroup) Go(fn func()) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		fn()
	}()
	return true
}

func (g *releaseGroup) closeAndWait() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}

// Connector dials worker processes and hands out remote worker handles. All
// handles of one address share a single client connection.
type Connector struct {
	mu       sync.Mutex
	closed   bool
	conns    map[string]*grpc.ClientConn
	dialOpts []grpc.DialOption
	releases releaseGroup
	logger   logging.Logger
}

func NewConnector(cfg config.GRPCConfig, logger logging.Logger, opts ...grpc.DialOption) *Connector {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if cfg.KeepaliveTime > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	return &Connector{
		conns:    make(map[string]*grpc.ClientConn),
		dialOpts: append(dialOpts, opts...),
		logger:   logger,
	}
}

func (c *Connector) Connect(address string, slots int) ([]service.RemoteHandle, error) {
	conn, err := c.conn(address)
	if err != nil {
		return nil, err
	}
	client := wire.NewExecutorClient(conn)

	handles := make([]service.RemoteHandle, slots)
	for i := range handles {
		handles[i] = newRemoteWorker(address, client, &c.releases, c.logger)
	}
	return handles, nil
}

// Probe asks the worker process at address for the serving status of its
// executor service.
func (c *Connector) Probe(ctx context.Context, address string) error {
	conn, err := c.conn(address)
	if err != nil {
		return err
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: wire.ExecutorServiceName,
	})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("worker reports %s", resp.GetStatus())
	}
	return nil
}

// Close refuses new handles, waits for pending slot releases and closes
// every connection. Calling it again is a no-op.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.releases.closeAndWait()

	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for address, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, address)
	}
	return firstErr
}

func (c *Connector) conn(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectorClosed
	}
	if conn, ok := c.conns[address]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(address, c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to worker %s: %w", address, err)
	}
	c.conns[address] = conn
	return conn, nil
}

// RemoteWorker is the master's handle on one slot of a worker process. Every
// dispatched item runs as its own Execute call; a failed call fails the
// handle.
type RemoteWorker struct {
	id      uuid.UUID
	address string
	client  *wire.ExecutorClient

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	err  error
	once sync.Once
	done chan struct{}

	releases *releaseGroup
	logger   logging.Logger
}

func newRemoteWorker(address string, client *wire.ExecutorClient, releases *releaseGroup, logger logging.Logger) *RemoteWorker {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	return &RemoteWorker{
		id:       id,
		address:  address,
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		releases: releases,
		logger:   logger.With("worker_id", id, "address", address),
	}
}

func (w *RemoteWorker) ID() uuid.UUID   { return w.id }
func (w *RemoteWorker) Address() string { return w.address }

func (w *RemoteWorker) Dispatch(req core.Request) {
	go w.execute(req)
}

func (w *RemoteWorker) Stop() {
	w.close(nil)
}

func (w *RemoteWorker) Fail(err error) {
	w.close(err)
}

func (w *RemoteWorker) Done() <-chan struct{} {
	return w.done
}

func (w *RemoteWorker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *RemoteWorker) execute(req core.Request) {
	payload, err := wire.Encode(req.Item)
	if err != nil {
		w.Fail(err)
		return
	}

	resp, err := w.client.Execute(w.ctx, payload)
	if err != nil {
		if w.ctx.Err() != nil {
			return
		}
		if status.Code(err) == codes.Internal {
			err = fmt.Errorf("%w: %w", core.ErrWorkFunction, err)
		}
		w.Fail(fmt.Errorf("execute on %s failed: %w", w.address, err))
		return
	}

	var outcome core.Outcome
	if err := wire.Decode(resp, &outcome); err != nil {
		w.Fail(err)
		return
	}
	req.ReplyTo.Deliver(core.WorkResult{
		JobID:   req.Item.JobID,
		Worker:  w.id,
		Outcome: outcome,
	})
}

// close ends the handle once and tells the worker process the slot is gone.
func (w *RemoteWorker) close(cause error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.err = cause
		w.mu.Unlock()

		w.cancel()
		close(w.done)

		if cause != nil {
			w.logger.Warn("Remote worker failed", "error", cause)
		}

		if !w.releases.Go(w.release) {
			w.logger.Debug("Connector closed, slot not released")
		}
	})
}

func (w *RemoteWorker) release() {
	payload, err := wire.Encode(wire.ReleaseRequest{Slot: w.id.String()})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if _, err := w.client.Release(ctx, payload); err != nil {
		w.logger.Debug("Failed to release slot", "error", err)
	}
}
