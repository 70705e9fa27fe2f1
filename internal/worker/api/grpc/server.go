package grpc

import (
	"context"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/internal/shared/wire"
	"github.com/nemanja-m/hivemind/internal/worker/core"
	hive "github.com/nemanja-m/hivemind/pkg/core"
)

// Server exposes the executor and health services of a worker process.
type Server struct {
	addr       string
	grpcServer *grpc.Server
	health     *health.Server
	slots      *SlotBook
	logger     logging.Logger
}

func NewServer(addr string, executor core.TaskExecutor, logger logging.Logger, opts ...grpc.ServerOption) *Server {
	grpcServer := grpc.NewServer(opts...)
	slots := NewSlotBook()

	wire.RegisterExecutorServer(grpcServer, &executorService{
		executor: executor,
		slots:    slots,
		logger:   logger,
	})

	healthServer := health.NewServer()
	healthServer.SetServingStatus(wire.ExecutorServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	return &Server{
		addr:       addr,
		grpcServer: grpcServer,
		health:     healthServer,
		slots:      slots,
		logger:     logger,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Worker server listening", "address", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

func (s *Server) Slots() *SlotBook {
	return s.slots
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

type executorService struct {
	executor core.TaskExecutor
	slots    *SlotBook
	logger   logging.Logger
}

func (s *executorService) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var item hive.WorkItem
	if err := wire.Decode(in, &item); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Debug("Executing item", "job_id", item.JobID, "family", item.Family)

	outcome, err := s.executor.Execute(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		s.logger.Error("Item execution failed", "job_id", item.JobID, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	out, err := wire.Encode(outcome)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *executorService) Release(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req wire.ReleaseRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Info("Slot released", "slot", req.Slot)
	s.slots.Release(req.Slot)
	return &emptypb.Empty{}, nil
}

// SlotBook records which attached slots have been released. Releases may
// arrive before the join reply lists the slots.
type SlotBook struct {
	mu       sync.Mutex
	expected []string
	known    bool
	released map[string]struct{}
	done     chan struct{}
	once     sync.Once
}

func NewSlotBook() *SlotBook {
	return &SlotBook{
		released: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

func (b *SlotBook) Expect(slots []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expected = append(b.expected, slots...)
	b.known = true
	b.check()
}

func (b *SlotBook) Release(slot string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released[slot] = struct{}{}
	b.check()
}

func (b *SlotBook) Released() <-chan struct{} {
	return b.done
}

func (b *SlotBook) check() {
	if !b.known {
		return
	}
	for _, slot := range b.expected {
		if _, ok := b.released[slot]; !ok {
			return
		}
	}
	b.once.Do(func() { close(b.done) })
}
