package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nemanja-m/hivemind/internal/coordinator/service"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/internal/shared/wire"
)

// WorkerRegistrar attaches the slots of a joining worker process.
type WorkerRegistrar interface {
	RegisterWorker(address string, slots int) ([]string, error)
}

type RegistryService struct {
	registrar WorkerRegistrar
	logger    logging.Logger
}

func NewRegistryService(registrar WorkerRegistrar, logger logging.Logger) *RegistryService {
	return &RegistryService{
		registrar: registrar,
		logger:    logger,
	}
}

func (s *RegistryService) Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req wire.JoinRequest
	if err := wire.Decode(in, &req); err != nil {
		s.logger.Error("Invalid join request", "error", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Address == "" {
		return nil, status.Error(codes.InvalidArgument, "address is required")
	}

	s.logger.Debug("Received worker join", "address", req.Address, "slots", req.Slots)

	slots, err := s.registrar.RegisterWorker(req.Address, req.Slots)
	if err != nil {
		if errors.Is(err, service.ErrRegistryClosed) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		s.logger.Error("Failed to register worker", "address", req.Address, "error", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return wire.Encode(wire.JoinReply{Slots: slots})
}
