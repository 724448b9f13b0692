package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/cart-sync/internal/adapter/handler/pb"
)

func startGRPC(t *testing.T) pb.CartValidationClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterCartValidationServer(srv, NewGRPCHandler(newTestValidation(t)))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return pb.NewCartValidationClient(conn)
}

func TestGRPCValidate(t *testing.T) {
	client := startGRPC(t)

	resp, err := client.Validate(context.Background(), &pb.ValidateRequest{
		Items: []*pb.CartLine{
			{Id: "sku-1", Name: "Laptop", Price: "999.99", Image: "https://img.example.com/1.png", Quantity: 1},
		},
		SessionId: "s-1",
	})

	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, int32(50), resp.MaxAllowedItems)
	assert.Equal(t, "1000000", resp.MaxAllowedPrice)
}

func TestGRPCValidate_PriceIntegrity(t *testing.T) {
	client := startGRPC(t)

	resp, err := client.Validate(context.Background(), &pb.ValidateRequest{
		Items: []*pb.CartLine{
			{Id: "sku-1", Name: "Laptop", Price: "100", Image: "https://img.example.com/1.png", Quantity: 1},
			{Id: "sku-1", Name: "Laptop", Price: "150", Image: "https://img.example.com/1.png", Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.Errors, "conflicting prices for item sku-1")
}

func TestGRPCValidate_InvalidPrice(t *testing.T) {
	client := startGRPC(t)

	_, err := client.Validate(context.Background(), &pb.ValidateRequest{
		Items: []*pb.CartLine{{Id: "sku-1", Name: "Laptop", Price: "cheap", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCStats(t *testing.T) {
	client := startGRPC(t)
	ctx := context.Background()

	_, err := client.Validate(ctx, &pb.ValidateRequest{
		Items: []*pb.CartLine{{Id: "", Name: "Laptop", Price: "10", Image: "https://img.example.com/1.png", Quantity: 1}},
	})
	require.NoError(t, err)

	stats, err := client.Stats(ctx, &pb.StatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalValidations)
	assert.Zero(t, stats.SuccessRate)
	require.Len(t, stats.CommonErrors, 1)
	assert.Equal(t, "item 1: id is required", stats.CommonErrors[0].Error)
	assert.Equal(t, int32(1), stats.CommonErrors[0].Count)

	last := stats.GetLastValidation()
	require.NotNil(t, last)
	assert.False(t, last.IsValid)
	assert.Equal(t, []string{"item 1: id is required"}, last.Errors)
	assert.Equal(t, "1000000", last.MaxAllowedPrice)
}

func TestGRPCStats_NoValidationsYet(t *testing.T) {
	client := startGRPC(t)

	stats, err := client.Stats(context.Background(), &pb.StatsRequest{})
	require.NoError(t, err)
	assert.Zero(t, stats.TotalValidations)
	assert.Nil(t, stats.GetLastValidation())
}
