package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nemanja-m/hivemind/internal/shared/config"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/internal/shared/wire"
	"github.com/nemanja-m/hivemind/internal/worker/core"
	hive "github.com/nemanja-m/hivemind/pkg/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)         {}
func (nopLogger) Info(string, ...any)          {}
func (nopLogger) Warn(string, ...any)          {}
func (nopLogger) Error(string, ...any)         {}
func (nopLogger) Fatal(string, ...any)         {}
func (l nopLogger) With(...any) logging.Logger { return l }

type funcExecutor func(ctx context.Context, item hive.WorkItem) (hive.Outcome, error)

func (f funcExecutor) Execute(ctx context.Context, item hive.WorkItem) (hive.Outcome, error) {
	return f(ctx, item)
}

func dialBufconn(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func startServer(t *testing.T, exec core.TaskExecutor) (*Server, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer("bufnet", exec, nopLogger{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return srv, dialBufconn(t, lis)
}

func TestServer_ExecuteReturnsOutcome(t *testing.T) {
	_, conn := startServer(t, funcExecutor(func(_ context.Context, item hive.WorkItem) (hive.Outcome, error) {
		return hive.Outcome{Match: &hive.MatchOutcome{AID: item.Pair.A.ID, BID: item.Pair.B.ID, Substring: "GATT"}}, nil
	}))

	in, err := wire.Encode(hive.WorkItem{
		JobID:  2,
		Family: hive.FamilySubstring,
		Pair:   &hive.PairJob{A: hive.Participant{ID: 1}, B: hive.Participant{ID: 5}},
	})
	require.NoError(t, err)

	out, err := wire.NewExecutorClient(conn).Execute(context.Background(), in)
	require.NoError(t, err)

	var outcome hive.Outcome
	require.NoError(t, wire.Decode(out, &outcome))
	require.Equal(t, &hive.MatchOutcome{AID: 1, BID: 5, Substring: "GATT"}, outcome.Match)
}

func TestServer_ExecuteFailureIsInternal(t *testing.T) {
	_, conn := startServer(t, funcExecutor(func(context.Context, hive.WorkItem) (hive.Outcome, error) {
		return hive.Outcome{}, errors.New("work function failed")
	}))

	in, err := wire.Encode(hive.WorkItem{JobID: 1})
	require.NoError(t, err)
	_, err = wire.NewExecutorClient(conn).Execute(context.Background(), in)
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestServer_HealthServing(t *testing.T) {
	_, conn := startServer(t, funcExecutor(nil))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestServer_ReleaseCompletesSlotBook(t *testing.T) {
	srv, conn := startServer(t, funcExecutor(nil))
	client := wire.NewExecutorClient(conn)

	release := func(slot string) {
		in, err := wire.Encode(wire.ReleaseRequest{Slot: slot})
		require.NoError(t, err)
		_, err = client.Release(context.Background(), in)
		require.NoError(t, err)
	}

	// A release may beat the join reply.
	release("a")
	srv.Slots().Expect([]string{"a", "b"})
	select {
	case <-srv.Slots().Released():
		t.Fatal("released before every slot was returned")
	default:
	}

	release("b")
	select {
	case <-srv.Slots().Released():
	case <-time.After(time.Second):
		t.Fatal("slot book did not complete")
	}
}

func TestSlotBook_EmptyExpectationCompletes(t *testing.T) {
	book := NewSlotBook()
	book.Expect(nil)
	<-book.Released()
}

type stubRegistry struct {
	refuse bool
}

func (r *stubRegistry) Join(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if r.refuse {
		return nil, status.Error(codes.FailedPrecondition, "shutting down")
	}
	var req wire.JoinRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, err
	}
	slots := make([]string, req.Slots)
	for i := range slots {
		slots[i] = req.Address + "/" + string(rune('a'+i))
	}
	return wire.Encode(wire.JoinReply{Slots: slots})
}

func startRegistry(t *testing.T, reg wire.RegistryServer) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	wire.RegisterRegistryServer(srv, reg)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func TestRegistryClient_Join(t *testing.T) {
	lis := startRegistry(t, &stubRegistry{})
	client, err := NewRegistryClient(
		config.MasterConnConfig{Addr: "passthrough:///bufnet"},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	slots, err := client.Join(context.Background(), "w1", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"w1/a", "w1/b"}, slots)
}

func TestRegistryClient_JoinRefused(t *testing.T) {
	lis := startRegistry(t, &stubRegistry{refuse: true})
	client, err := NewRegistryClient(
		config.MasterConnConfig{Addr: "passthrough:///bufnet"},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Join(context.Background(), "w1", 1)
	require.ErrorIs(t, err, core.ErrJoinRefused)
}
