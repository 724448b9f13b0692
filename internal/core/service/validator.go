package service

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/core/domain"
)

const (
	MsgCartEmpty         = "cart is empty"
	MsgValidationFailed  = "cart could not be validated"
	MsgRepeatedFailures  = "repeated validation failures detected"
	msgBulkSuggestion    = "consider a bulk order to lower the cost"
	msgSplitSuggestion   = "consider splitting the order into several parts"
	recentFailureWindow  = 3
	recentFailureTrigger = 2
	commonErrorLimit     = 5
)

// executableMarkers are matched case-insensitively against names and image refs.
var executableMarkers = []string{
	"javascript:",
	"data:",
	"vbscript:",
	"<script",
	"onerror=",
	"onload=",
}

var hundred = decimal.NewFromInt(100)

type findings struct {
	errors      []string
	warnings    []string
	suggestions []string
	security    []string
}

func (f *findings) errorf(format string, args ...any) {
	f.errors = append(f.errors, fmt.Sprintf(format, args...))
}

func (f *findings) securityf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	f.errors = append(f.errors, msg)
	f.security = append(f.security, msg)
}

// Validator runs the cart rule passes and keeps a short verdict history for
// the trend heuristics. It is safe for concurrent use.
type Validator struct {
	limits domain.Limits
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	history   *verdictRing
	total     int
	succeeded int
	last      *domain.Verdict
}

func NewValidator(limits domain.Limits, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		limits:  limits,
		logger:  logger,
		now:     time.Now,
		history: newVerdictRing(limits.HistorySize),
	}
}

func (v *Validator) Limits() domain.Limits {
	return v.limits
}

// Validate never fails: internal faults become a generic invalid verdict.
func (v *Validator) Validate(req domain.ValidationRequest) (verdict domain.Verdict) {
	v.mu.Lock()
	defer v.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("cart validation panicked", zap.Any("panic", r))
			verdict = v.generic()
			v.record(verdict)
		}
	}()

	snap := domain.NewSnapshot(req.Items)
	f := &findings{}

	v.checkStructure(req.Items, f)
	v.checkBusinessRules(snap, f)
	v.checkSecurity(req.Items, f)
	v.detectAnomalies(snap, f)
	v.checkConsistency(req.Items, f)

	verdict = domain.Verdict{
		IsValid:         len(f.errors) == 0,
		Errors:          nonNil(f.errors),
		Warnings:        nonNil(f.warnings),
		Suggestions:     nonNil(f.suggestions),
		MaxAllowedItems: v.limits.MaxItems,
		MaxAllowedPrice: v.limits.MaxTotalPrice,
		TotalItems:      snap.TotalItems(),
		TotalPrice:      snap.TotalPrice(),
		CheckedAt:       v.now(),
	}
	if len(f.security) > 0 {
		v.logger.Warn("cart failed security checks",
			zap.Bool("security", true),
			zap.String("session_id", req.SessionID),
			zap.Strings("errors", f.security))
	}
	v.record(verdict)
	return verdict
}

// ValidateRaw validates a JSON array of cart lines. Input that does not parse
// yields the generic verdict.
func (v *Validator) ValidateRaw(data []byte, sessionID string) domain.Verdict {
	var items []domain.CartLine
	if err := json.Unmarshal(data, &items); err != nil {
		return v.Fail(sessionID, fmt.Errorf("decode cart lines: %w", err))
	}
	return v.Validate(domain.ValidationRequest{Items: items, SessionID: sessionID})
}

// Fail records the generic verdict for a cart that could not be read at all.
func (v *Validator) Fail(sessionID string, cause error) domain.Verdict {
	v.logger.Warn("unreadable cart snapshot", zap.String("session_id", sessionID), zap.Error(cause))
	v.mu.Lock()
	defer v.mu.Unlock()
	verdict := v.generic()
	v.record(verdict)
	return verdict
}

func (v *Validator) Stats() domain.ValidationStats {
	v.mu.Lock()
	defer v.mu.Unlock()

	stats := domain.ValidationStats{
		TotalValidations: v.total,
		CommonErrors:     v.commonErrors(),
	}
	if v.total > 0 {
		stats.SuccessRate = float64(v.succeeded) / float64(v.total)
	}
	if v.last != nil {
		last := *v.last
		stats.LastValidation = &last
	}
	return stats
}

// History returns the retained verdicts, oldest first.
func (v *Validator) History() []domain.Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.history.all()
}

func (v *Validator) checkStructure(items []domain.CartLine, f *findings) {
	if len(items) == 0 {
		f.warnings = append(f.warnings, MsgCartEmpty)
		return
	}

	for i, item := range items {
		n := i + 1
		if strings.TrimSpace(item.ID) == "" {
			f.errorf("item %d: id is required", n)
		}
		if strings.TrimSpace(item.Name) == "" {
			f.errorf("item %d: name is required", n)
		} else if utf8.RuneCountInString(item.Name) > v.limits.MaxNameLength {
			f.errorf("item %d: name exceeds %d characters", n, v.limits.MaxNameLength)
		}
		if item.UnitPrice.LessThan(v.limits.MinPrice) || !item.UnitPrice.IsPositive() {
			f.errorf("item %d: price must be at least %s", n, v.limits.MinPrice)
		} else if item.UnitPrice.GreaterThan(v.limits.MaxPricePerItem) {
			f.errorf("item %d: price exceeds %s", n, v.limits.MaxPricePerItem)
		}
		if !wellFormedRef(item.ImageRef) {
			f.errorf("item %d: image must be an absolute http(s) URL", n)
		}
		if item.Quantity < 1 {
			f.errorf("item %d: quantity must be at least 1", n)
		} else if item.Quantity > v.limits.MaxQuantityPerItem {
			f.errorf("item %d: quantity exceeds %d", n, v.limits.MaxQuantityPerItem)
		}
	}
}

func (v *Validator) checkBusinessRules(snap domain.Snapshot, f *findings) {
	lines := snap.Len()
	totalItems := snap.TotalItems()
	totalPrice := snap.TotalPrice()

	if lines > v.limits.MaxItems {
		f.errorf("too many distinct items: %d/%d", lines, v.limits.MaxItems)
	}
	if totalItems > v.limits.MaxTotalItems {
		f.errorf("total quantity too large: %d/%d", totalItems, v.limits.MaxTotalItems)
	}
	if totalPrice.GreaterThan(v.limits.MaxTotalPrice) {
		f.errorf("total price too high: %s/%s", totalPrice, v.limits.MaxTotalPrice)
	}

	if totalItems > v.limits.BulkQuantityHint {
		f.suggestions = append(f.suggestions, msgBulkSuggestion)
	}
	if lines > v.limits.SplitOrderHint {
		f.suggestions = append(f.suggestions, msgSplitSuggestion)
	}
}

func (v *Validator) checkSecurity(items []domain.CartLine, f *findings) {
	for i, item := range items {
		n := i + 1
		name := strings.ToLower(item.Name)
		ref := strings.ToLower(item.ImageRef)
		for _, marker := range executableMarkers {
			if strings.Contains(name, marker) {
				f.securityf("item %d: suspicious pattern %q in name", n, marker)
			}
			if strings.Contains(ref, marker) {
				f.securityf("item %d: suspicious pattern %q in image", n, marker)
			}
		}
		if !strings.HasPrefix(ref, "http") {
			f.securityf("item %d: image reference must use http", n)
		}
	}
}

// detectAnomalies compares against the previous verdict's computed total.
func (v *Validator) detectAnomalies(snap domain.Snapshot, f *findings) {
	if prev, ok := v.history.newest(); ok && prev.TotalPrice.IsPositive() {
		change := snap.TotalPrice().Sub(prev.TotalPrice).Abs().Div(prev.TotalPrice).Mul(hundred)
		if change.GreaterThan(v.limits.MaxPriceSwingPercent) {
			f.warnings = append(f.warnings, fmt.Sprintf("cart total changed by %s%% since the last validation", change.StringFixed(1)))
		}
	}

	failures := 0
	for _, past := range v.history.last(recentFailureWindow) {
		if len(past.Errors) > 0 {
			failures++
		}
	}
	if failures >= recentFailureTrigger {
		f.warnings = append(f.warnings, MsgRepeatedFailures)
	}
}

func (v *Validator) checkConsistency(items []domain.CartLine, f *findings) {
	prices := make(map[string]decimal.Decimal, len(items))
	reported := make(map[string]bool)
	for _, item := range items {
		prev, seen := prices[item.ID]
		if seen && !prev.Equal(item.UnitPrice) && !reported[item.ID] {
			f.securityf("conflicting prices for item %s", item.ID)
			reported[item.ID] = true
		}
		if !seen {
			prices[item.ID] = item.UnitPrice
		}
	}
}

func (v *Validator) generic() domain.Verdict {
	return domain.Verdict{
		IsValid:         false,
		Errors:          []string{MsgValidationFailed},
		Warnings:        []string{},
		Suggestions:     []string{},
		MaxAllowedItems: v.limits.MaxItems,
		MaxAllowedPrice: v.limits.MaxTotalPrice,
		TotalPrice:      decimal.Zero,
		CheckedAt:       v.now(),
	}
}

// record must be called with mu held.
func (v *Validator) record(verdict domain.Verdict) {
	v.history.push(verdict)
	v.total++
	if verdict.IsValid {
		v.succeeded++
	}
	last := verdict
	v.last = &last
}

func (v *Validator) commonErrors() []domain.ErrorCount {
	counts := make(map[string]int)
	for _, past := range v.history.all() {
		for _, e := range past.Errors {
			counts[e]++
		}
	}

	out := make([]domain.ErrorCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, domain.ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	if len(out) > commonErrorLimit {
		out = out[:commonErrorLimit]
	}
	return out
}

func wellFormedRef(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
