package grpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/nemanja-m/hivemind/internal/shared/config"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/internal/shared/wire"
)

// Server accepts worker processes joining the masters.
type Server struct {
	addr       string
	grpcServer *grpc.Server
	logger     logging.Logger
}

func NewServer(
	cfg config.GRPCConfig,
	registrar WorkerRegistrar,
	logger logging.Logger,
	opts ...grpc.ServerOption,
) *Server {
	serverOpts := append([]grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.KeepaliveMinTime,
			PermitWithoutStream: true,
		}),
	}, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	wire.RegisterRegistryServer(grpcServer, NewRegistryService(registrar, logger))

	if cfg.EnableReflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		addr:       cfg.Addr,
		grpcServer: grpcServer,
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
	s.logger.Info("Registry server listening", "address", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
