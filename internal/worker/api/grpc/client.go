package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/nemanja-m/hivemind/internal/shared/config"
	"github.com/nemanja-m/hivemind/internal/shared/wire"
	"github.com/nemanja-m/hivemind/internal/worker/core"
)

type RegistryClient struct {
	conn   *grpc.ClientConn
	client *wire.RegistryClient

	masterAddr string
}

func NewRegistryClient(cfg config.MasterConnConfig, opts ...grpc.DialOption) (*RegistryClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(
			keepalive.ClientParameters{
				Time:                keepaliveOr(cfg.GRPC.KeepaliveTime, 30*time.Second),
				Timeout:             keepaliveOr(cfg.GRPC.KeepaliveTimeout, 5*time.Second),
				PermitWithoutStream: true,
			},
		),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to master: %w", err)
	}

	return &RegistryClient{
		conn:       conn,
		client:     wire.NewRegistryClient(conn),
		masterAddr: cfg.Addr,
	}, nil
}

func (c *RegistryClient) Join(ctx context.Context, addr string, slots int) ([]string, error) {
	req, err := wire.Encode(wire.JoinRequest{Address: addr, Slots: slots})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Join(ctx, req)
	if err != nil {
		if status.Code(err) == codes.FailedPrecondition {
			return nil, fmt.Errorf("%w: %s", core.ErrJoinRefused, status.Convert(err).Message())
		}
		return nil, fmt.Errorf("failed to join master at %s: %w", c.masterAddr, err)
	}

	var reply wire.JoinReply
	if err := wire.Decode(resp, &reply); err != nil {
		return nil, err
	}
	return reply.Slots, nil
}

func (c *RegistryClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func keepaliveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
