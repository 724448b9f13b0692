package handler

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-sync/internal/adapter/handler/pb"
	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/core/service"
)

type GRPCHandler struct {
	pb.UnimplementedCartValidationServer
	validation *service.ValidationService
}

func NewGRPCHandler(validation *service.ValidationService) *GRPCHandler {
	return &GRPCHandler{validation: validation}
}

func (h *GRPCHandler) Validate(ctx context.Context, req *pb.ValidateRequest) (*pb.ValidateResponse, error) {
	lines, err := fromPBLines(req.GetItems())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	verdict := h.validation.Validate(ctx, domain.ValidationRequest{
		Items:     lines,
		SessionID: req.GetSessionId(),
		UserID:    req.GetUserId(),
	})
	return toPBVerdict(verdict), nil
}

func (h *GRPCHandler) Stats(ctx context.Context, req *pb.StatsRequest) (*pb.StatsResponse, error) {
	stats := h.validation.Stats()

	resp := &pb.StatsResponse{
		TotalValidations: int64(stats.TotalValidations),
		SuccessRate:      stats.SuccessRate,
		CommonErrors:     make([]*pb.ErrorCount, 0, len(stats.CommonErrors)),
	}
	for _, ec := range stats.CommonErrors {
		resp.CommonErrors = append(resp.CommonErrors, &pb.ErrorCount{Error: ec.Error, Count: int32(ec.Count)})
	}
	if stats.LastValidation != nil {
		resp.LastValidation = toPBVerdict(*stats.LastValidation)
	}
	return resp, nil
}

func fromPBLines(items []*pb.CartLine) ([]domain.CartLine, error) {
	lines := make([]domain.CartLine, 0, len(items))
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("item %d: missing", i+1)
		}
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, fmt.Errorf("item %d: invalid price %q", i+1, item.Price)
		}
		lines = append(lines, domain.CartLine{
			ID:        item.Id,
			Name:      item.Name,
			UnitPrice: price,
			ImageRef:  item.Image,
			Quantity:  int(item.Quantity),
		})
	}
	return lines, nil
}

func toPBVerdict(v domain.Verdict) *pb.ValidateResponse {
	return &pb.ValidateResponse{
		IsValid:         v.IsValid,
		Errors:          v.Errors,
		Warnings:        v.Warnings,
		Suggestions:     v.Suggestions,
		MaxAllowedItems: int32(v.MaxAllowedItems),
		MaxAllowedPrice: v.MaxAllowedPrice.String(),
	}
}
