package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-sync/internal/adapter/handler/pb"
	"github.com/rl1809/cart-sync/internal/core/domain"
)

const DefaultTimeout = 3 * time.Second

var ErrValidationUnavailable = errors.New("validation service unavailable")

// ValidationClient asks the remote CartValidation service for a verdict. Each
// call is bounded by the configured timeout and retried once on transient
// failures.
type ValidationClient struct {
	conn    *grpc.ClientConn
	rpc     pb.CartValidationClient
	timeout time.Duration
	logger  *zap.Logger
}

func Dial(addr string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*ValidationClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := New(conn, timeout, logger)
	c.conn = conn
	return c, nil
}

func New(cc grpc.ClientConnInterface, timeout time.Duration, logger *zap.Logger) *ValidationClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationClient{
		rpc:     pb.NewCartValidationClient(cc),
		timeout: timeout,
		logger:  logger,
	}
}

func (c *ValidationClient) Validate(ctx context.Context, sessionID string, snapshot domain.Snapshot) (domain.Verdict, error) {
	req := &pb.ValidateRequest{
		Items:     toPBLines(snapshot.Lines()),
		SessionId: sessionID,
	}

	var (
		resp *pb.ValidateResponse
		err  error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err = c.call(ctx, req)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("validation call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		if retryable(err) {
			return domain.Verdict{}, fmt.Errorf("%w: %v", ErrValidationUnavailable, err)
		}
		return domain.Verdict{}, fmt.Errorf("validate cart: %w", err)
	}

	return fromPBVerdict(resp, snapshot), nil
}

func (c *ValidationClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *ValidationClient) call(ctx context.Context, req *pb.ValidateRequest) (*pb.ValidateResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.rpc.Validate(callCtx, req)
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func toPBLines(lines []domain.CartLine) []*pb.CartLine {
	out := make([]*pb.CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, &pb.CartLine{
			Id:       l.ID,
			Name:     l.Name,
			Price:    l.UnitPrice.String(),
			Image:    l.ImageRef,
			Quantity: int32(l.Quantity),
		})
	}
	return out
}

func fromPBVerdict(resp *pb.ValidateResponse, snapshot domain.Snapshot) domain.Verdict {
	maxPrice, err := decimal.NewFromString(resp.MaxAllowedPrice)
	if err != nil {
		maxPrice = decimal.Zero
	}
	return domain.Verdict{
		IsValid:         resp.IsValid,
		Errors:          resp.Errors,
		Warnings:        resp.Warnings,
		Suggestions:     resp.Suggestions,
		MaxAllowedItems: int(resp.MaxAllowedItems),
		MaxAllowedPrice: maxPrice,
		TotalItems:      snapshot.TotalItems(),
		TotalPrice:      snapshot.TotalPrice(),
		CheckedAt:       time.Now(),
	}
}
