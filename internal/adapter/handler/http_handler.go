package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/core/service"
	"github.com/rl1809/cart-sync/internal/port"
)

const (
	DefaultCartCookie = "cart-storage"
	defaultAuditLimit = 20
	maxAuditLimit     = 100
	maxBodyBytes      = 1 << 20
)

type HTTPHandler struct {
	validation *service.ValidationService
	audit      port.AuditRepository
	cookieName string
	logger     *zap.Logger
}

// ValidateHTTPRequest falls back to the cart cookie when items is absent or null.
type ValidateHTTPRequest struct {
	Items     []domain.CartLine `json:"items"`
	SessionID string            `json:"sessionId"`
	UserID    string            `json:"userId"`
}

type VerdictHTTPResponse struct {
	IsValid         bool      `json:"isValid"`
	Errors          []string  `json:"errors"`
	Warnings        []string  `json:"warnings"`
	Suggestions     []string  `json:"suggestions"`
	MaxAllowedItems int       `json:"maxAllowedItems"`
	MaxAllowedPrice float64   `json:"maxAllowedPrice"`
	TotalItems      int       `json:"totalItems"`
	TotalPrice      float64   `json:"totalPrice"`
	CheckedAt       time.Time `json:"checkedAt"`
}

type StatsHTTPResponse struct {
	TotalValidations int                  `json:"totalValidations"`
	SuccessRate      float64              `json:"successRate"`
	CommonErrors     []domain.ErrorCount  `json:"commonErrors"`
	LastValidation   *VerdictHTTPResponse `json:"lastValidation"`
}

type StatsOverviewHTTPResponse struct {
	Stats             StatsHTTPResponse   `json:"stats"`
	CurrentValidation VerdictHTTPResponse `json:"currentValidation"`
	Timestamp         time.Time           `json:"timestamp"`
}

type AuditHTTPRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	VerdictHTTPResponse
	CreatedAt time.Time `json:"createdAt"`
}

type ErrorHTTPResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func NewHTTPHandler(validation *service.ValidationService, audit port.AuditRepository, cookieName string, logger *zap.Logger) *HTTPHandler {
	if cookieName == "" {
		cookieName = DefaultCartCookie
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		validation: validation,
		audit:      audit,
		cookieName: cookieName,
		logger:     logger,
	}
}

// Routes returns the HTTP API wrapped in panic recovery.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/cart/validate", h.ValidateCart)
	mux.HandleFunc("/api/cart/validations", h.RecentValidations)
	return h.recoverer(mux)
}

func (h *HTTPHandler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.validateCart(w, r)
	case http.MethodGet:
		h.validationStats(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) validateCart(w http.ResponseWriter, r *http.Request) {
	var req ValidateHTTPRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{
			Error:   "invalid cart",
			Details: err.Error(),
		})
		return
	}

	var verdict domain.Verdict
	if req.Items != nil {
		verdict = h.validation.Validate(r.Context(), domain.ValidationRequest{
			Items:     req.Items,
			SessionID: req.SessionID,
			UserID:    req.UserID,
		})
	} else {
		verdict = h.validateCookieCart(r, req.SessionID, req.UserID)
	}

	writeJSON(w, http.StatusOK, toVerdictResponse(verdict))
}

func (h *HTTPHandler) validationStats(w http.ResponseWriter, r *http.Request) {
	current := h.validateCookieCart(r, r.URL.Query().Get("sessionId"), "")
	stats := h.validation.Stats()

	resp := StatsOverviewHTTPResponse{
		Stats: StatsHTTPResponse{
			TotalValidations: stats.TotalValidations,
			SuccessRate:      stats.SuccessRate,
			CommonErrors:     stats.CommonErrors,
		},
		CurrentValidation: toVerdictResponse(current),
		Timestamp:         time.Now().UTC(),
	}
	if stats.LastValidation != nil {
		last := toVerdictResponse(*stats.LastValidation)
		resp.Stats.LastValidation = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) RecentValidations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorHTTPResponse{Error: "audit log unavailable"})
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "missing sessionId"})
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid limit", Details: err.Error()})
		return
	}

	records, err := h.audit.RecentVerdicts(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to load validations", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
		return
	}

	out := make([]AuditHTTPRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, AuditHTTPRecord{
			ID:                  rec.ID,
			SessionID:           rec.SessionID,
			UserID:              rec.UserID,
			VerdictHTTPResponse: toVerdictResponse(rec.Verdict),
			CreatedAt:           rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"validations": out})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateCookieCart validates the cart persisted in the request cookie. A
// missing cookie is an empty cart; an unreadable one gets the generic verdict.
func (h *HTTPHandler) validateCookieCart(r *http.Request, sessionID, userID string) domain.Verdict {
	lines, err := h.cookieCart(r)
	if err != nil {
		return h.validation.Fail(r.Context(), sessionID, err)
	}
	return h.validation.Validate(r.Context(), domain.ValidationRequest{
		Items:     lines,
		SessionID: sessionID,
		UserID:    userID,
	})
}

func (h *HTTPHandler) cookieCart(r *http.Request) ([]domain.CartLine, error) {
	c, err := r.Cookie(h.cookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return []domain.CartLine{}, nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil, fmt.Errorf("unescape %s cookie: %w", h.cookieName, err)
	}
	snap, err := domain.DecodePersisted([]byte(raw))
	if err != nil {
		return nil, err
	}
	return snap.Lines(), nil
}

func (h *HTTPHandler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("http handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultAuditLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("limit must be positive, got %d", n)
	}
	return min(n, maxAuditLimit), nil
}

func toVerdictResponse(v domain.Verdict) VerdictHTTPResponse {
	return VerdictHTTPResponse{
		IsValid:         v.IsValid,
		Errors:          v.Errors,
		Warnings:        v.Warnings,
		Suggestions:     v.Suggestions,
		MaxAllowedItems: v.MaxAllowedItems,
		MaxAllowedPrice: v.MaxAllowedPrice.InexactFloat64(),
		TotalItems:      v.TotalItems,
		TotalPrice:      v.TotalPrice.InexactFloat64(),
		CheckedAt:       v.CheckedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
