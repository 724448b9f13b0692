package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Limits struct {
	MaxItems           int
	MaxTotalItems      int
	MaxTotalPrice      decimal.Decimal
	MaxQuantityPerItem int
	MinPrice           decimal.Decimal
	MaxPricePerItem    decimal.Decimal
	MaxNameLength      int

	BulkQuantityHint int // suggest a bulk order above this total quantity
	SplitOrderHint   int // suggest splitting above this many distinct lines

	MaxPriceSwingPercent decimal.Decimal
	HistorySize          int
}

func DefaultLimits() Limits {
	return Limits{
		MaxItems:             50,
		MaxTotalItems:        1000,
		MaxTotalPrice:        decimal.NewFromInt(1000000),
		MaxQuantityPerItem:   100,
		MinPrice:             decimal.RequireFromString("0.01"),
		MaxPricePerItem:      decimal.NewFromInt(100000),
		MaxNameLength:        200,
		BulkQuantityHint:     50,
		SplitOrderHint:       20,
		MaxPriceSwingPercent: decimal.NewFromInt(50),
		HistorySize:          10,
	}
}

type ValidationRequest struct {
	Items     []CartLine
	SessionID string
	UserID    string
}

type Verdict struct {
	IsValid         bool
	Errors          []string
	Warnings        []string
	Suggestions     []string
	MaxAllowedItems int
	MaxAllowedPrice decimal.Decimal

	TotalItems int
	TotalPrice decimal.Decimal
	CheckedAt  time.Time
}

type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

type ValidationStats struct {
	TotalValidations int
	SuccessRate      float64
	CommonErrors     []ErrorCount
	LastValidation   *Verdict
}

type AuditRecord struct {
	ID        string
	SessionID string
	UserID    string
	Verdict   Verdict
	CreatedAt time.Time
}
