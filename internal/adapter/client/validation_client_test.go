package client

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/cart-sync/internal/adapter/handler"
	"github.com/rl1809/cart-sync/internal/adapter/handler/pb"
	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/core/service"
)

// flakyServer fails the first failures calls with code, then delegates.
type flakyServer struct {
	pb.UnimplementedCartValidationServer
	next     pb.CartValidationServer
	failures int32
	code     codes.Code
	calls    atomic.Int32
}

func (s *flakyServer) Validate(ctx context.Context, req *pb.ValidateRequest) (*pb.ValidateResponse, error) {
	if s.calls.Add(1) <= s.failures {
		return nil, status.Error(s.code, "injected")
	}
	return s.next.Validate(ctx, req)
}

type slowServer struct {
	pb.UnimplementedCartValidationServer
	calls atomic.Int32
}

func (s *slowServer) Validate(ctx context.Context, req *pb.ValidateRequest) (*pb.ValidateResponse, error) {
	s.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func startServer(t *testing.T, srv pb.CartValidationServer, timeout time.Duration) *ValidationClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	pb.RegisterCartValidationServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	c, err := Dial("passthrough:///bufnet", timeout, nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func realServer(t *testing.T) pb.CartValidationServer {
	t.Helper()
	svc := service.NewValidationService(service.NewValidator(domain.DefaultLimits(), nil), 10, nil)
	t.Cleanup(svc.Close)
	return handler.NewGRPCHandler(svc)
}

func testCart() domain.Snapshot {
	return domain.NewSnapshot([]domain.CartLine{{
		ID:        "sku-1",
		Name:      "Laptop",
		UnitPrice: decimal.RequireFromString("999.99"),
		ImageRef:  "https://img.example.com/1.png",
		Quantity:  2,
	}})
}

func TestValidate(t *testing.T) {
	c := startServer(t, realServer(t), time.Second)

	verdict, err := c.Validate(context.Background(), "s-1", testCart())

	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	assert.Equal(t, 50, verdict.MaxAllowedItems)
	assert.True(t, verdict.MaxAllowedPrice.Equal(decimal.NewFromInt(1000000)))
	assert.Equal(t, 2, verdict.TotalItems)
	assert.True(t, verdict.TotalPrice.Equal(decimal.RequireFromString("1999.98")))
}

func TestValidate_RetriesOnceWhenUnavailable(t *testing.T) {
	srv := &flakyServer{next: realServer(t), failures: 1, code: codes.Unavailable}
	c := startServer(t, srv, time.Second)

	verdict, err := c.Validate(context.Background(), "s-1", testCart())

	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestValidate_GivesUpAfterRetry(t *testing.T) {
	srv := &flakyServer{next: realServer(t), failures: 5, code: codes.Unavailable}
	c := startServer(t, srv, time.Second)

	_, err := c.Validate(context.Background(), "s-1", testCart())

	assert.True(t, errors.Is(err, ErrValidationUnavailable))
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestValidate_NoRetryOnInvalidArgument(t *testing.T) {
	srv := &flakyServer{next: realServer(t), failures: 5, code: codes.InvalidArgument}
	c := startServer(t, srv, time.Second)

	_, err := c.Validate(context.Background(), "s-1", testCart())

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrValidationUnavailable))
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestValidate_Timeout(t *testing.T) {
	srv := &slowServer{}
	c := startServer(t, srv, 50*time.Millisecond)

	start := time.Now()
	_, err := c.Validate(context.Background(), "s-1", testCart())

	assert.True(t, errors.Is(err, ErrValidationUnavailable))
	assert.Less(t, time.Since(start), time.Second)
	assert.Eventually(t, func() bool { return srv.calls.Load() == 2 }, time.Second, 10*time.Millisecond)
}
