package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/core/service"
)

type mockAuditRepo struct {
	records []domain.AuditRecord
	err     error
	limit   int
}

func (m *mockAuditRepo) SaveVerdict(ctx context.Context, rec domain.AuditRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *mockAuditRepo) RecentVerdicts(ctx context.Context, sessionID string, limit int) ([]domain.AuditRecord, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.AuditRecord
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestValidation(t *testing.T) *service.ValidationService {
	t.Helper()
	svc := service.NewValidationService(service.NewValidator(domain.DefaultLimits(), nil), 100, nil)
	t.Cleanup(svc.Close)
	return svc
}

func cartCookie(t *testing.T, lines ...domain.CartLine) *http.Cookie {
	t.Helper()
	data, err := domain.EncodePersisted(domain.NewSnapshot(lines))
	require.NoError(t, err)
	return &http.Cookie{Name: DefaultCartCookie, Value: url.QueryEscape(string(data))}
}

func laptopLine() domain.CartLine {
	return domain.CartLine{
		ID:        "sku-1",
		Name:      "Laptop",
		UnitPrice: decimal.RequireFromString("999.99"),
		ImageRef:  "https://img.example.com/1.png",
		Quantity:  2,
	}
}

func decodeVerdict(t *testing.T, rec *httptest.ResponseRecorder) VerdictHTTPResponse {
	t.Helper()
	var resp VerdictHTTPResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestValidateCart_Body(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)
	body := `{"items":[{"id":"sku-1","name":"Laptop","price":999.99,"image":"https://img.example.com/1.png","quantity":1}],"sessionId":"s-1"}`

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cart/validate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeVerdict(t, rec)
	assert.True(t, resp.IsValid)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, 50, resp.MaxAllowedItems)
	assert.Equal(t, 1000000.0, resp.MaxAllowedPrice)
	assert.InDelta(t, 999.99, resp.TotalPrice, 1e-9)
}

func TestValidateCart_RawJSONShape(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cart/validate", strings.NewReader(`{"items":[]}`)))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, true, raw["isValid"])
	assert.Equal(t, []any{}, raw["errors"])
	assert.Equal(t, []any{service.MsgCartEmpty}, raw["warnings"])
	assert.Equal(t, []any{}, raw["suggestions"])
	assert.Equal(t, float64(50), raw["maxAllowedItems"])
	assert.Equal(t, float64(1000000), raw["maxAllowedPrice"])
}

func TestValidateCart_CookieFallback(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/validate", strings.NewReader(`{"sessionId":"s-1"}`))
	req.AddCookie(cartCookie(t, laptopLine()))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeVerdict(t, rec)
	assert.True(t, resp.IsValid)
	assert.Equal(t, 2, resp.TotalItems)
}

func TestValidateCart_CorruptCookie(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/validate", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: DefaultCartCookie, Value: url.QueryEscape("{broken")})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeVerdict(t, rec)
	assert.False(t, resp.IsValid)
	assert.Equal(t, []string{service.MsgValidationFailed}, resp.Errors)
}

func TestValidateCart_BadBody(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	for _, body := range []string{`{"items":`, `{"items":[{"price":"cheap"}]}`} {
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cart/validate", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		var resp ErrorHTTPResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "invalid cart", resp.Error)
		assert.NotEmpty(t, resp.Details)
	}
}

func TestValidateCart_MethodNotAllowed(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cart/validate", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestValidationStats(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	bad := `{"items":[{"id":"","name":"Laptop","price":10,"image":"https://img.example.com/1.png","quantity":1}]}`
	h.Routes().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/cart/validate", strings.NewReader(bad)))

	req := httptest.NewRequest(http.MethodGet, "/api/cart/validate", nil)
	req.AddCookie(cartCookie(t, laptopLine()))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatsOverviewHTTPResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Stats.TotalValidations)
	assert.InDelta(t, 0.5, resp.Stats.SuccessRate, 1e-9)
	require.Len(t, resp.Stats.CommonErrors, 1)
	assert.Equal(t, "item 1: id is required", resp.Stats.CommonErrors[0].Error)
	require.NotNil(t, resp.Stats.LastValidation)
	assert.True(t, resp.Stats.LastValidation.IsValid)
	assert.True(t, resp.CurrentValidation.IsValid)
	assert.Equal(t, 2, resp.CurrentValidation.TotalItems)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Minute)
}

func TestRecentValidations(t *testing.T) {
	audit := &mockAuditRepo{records: []domain.AuditRecord{
		{ID: "a-1", SessionID: "s-1", Verdict: domain.Verdict{IsValid: true, Errors: []string{}, TotalPrice: decimal.NewFromInt(10)}, CreatedAt: time.Now()},
		{ID: "a-2", SessionID: "s-2", Verdict: domain.Verdict{IsValid: false, Errors: []string{"boom"}}, CreatedAt: time.Now()},
	}}
	h := NewHTTPHandler(newTestValidation(t), audit, "", nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart/validations?sessionId=s-1&limit=500", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxAuditLimit, audit.limit)
	var resp struct {
		Validations []AuditHTTPRecord `json:"validations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Validations, 1)
	assert.Equal(t, "a-1", resp.Validations[0].ID)
	assert.True(t, resp.Validations[0].IsValid)
	assert.Equal(t, 10.0, resp.Validations[0].TotalPrice)
}

func TestRecentValidations_Errors(t *testing.T) {
	tests := []struct {
		name  string
		audit *mockAuditRepo
		query string
		want  int
	}{
		{"missing session", &mockAuditRepo{}, "", http.StatusBadRequest},
		{"bad limit", &mockAuditRepo{}, "?sessionId=s-1&limit=abc", http.StatusBadRequest},
		{"zero limit", &mockAuditRepo{}, "?sessionId=s-1&limit=0", http.StatusBadRequest},
		{"store failure", &mockAuditRepo{err: errors.New("db down")}, "?sessionId=s-1", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHTTPHandler(newTestValidation(t), tt.audit, "", nil)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart/validations"+tt.query, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRecentValidations_NoAuditLog(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart/validations?sessionId=s-1", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRecoverer(t *testing.T) {
	h := NewHTTPHandler(newTestValidation(t), nil, "", nil)
	panicky := h.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	panicky.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
