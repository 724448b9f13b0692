package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/core/domain"
)

var ErrAuditQueueFull = errors.New("audit queue full")

// ValidationService fronts the Validator for the transport handlers and
// hands every verdict to the audit workers without blocking the caller.
type ValidationService struct {
	validator  *Validator
	auditQueue chan domain.AuditRecord
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewValidationService(validator *Validator, queueSize int, logger *zap.Logger) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{
		validator:  validator,
		auditQueue: make(chan domain.AuditRecord, queueSize),
		logger:     logger,
	}
}

func (s *ValidationService) Validate(ctx context.Context, req domain.ValidationRequest) domain.Verdict {
	verdict := s.validator.Validate(req)
	s.enqueue(ctx, req.SessionID, req.UserID, verdict)
	return verdict
}

// ValidateRaw validates a JSON array of lines; see Validator.ValidateRaw.
func (s *ValidationService) ValidateRaw(ctx context.Context, sessionID string, data []byte) domain.Verdict {
	verdict := s.validator.ValidateRaw(data, sessionID)
	s.enqueue(ctx, sessionID, "", verdict)
	return verdict
}

// Fail records and audits the generic verdict for an unreadable cart.
func (s *ValidationService) Fail(ctx context.Context, sessionID string, cause error) domain.Verdict {
	verdict := s.validator.Fail(sessionID, cause)
	s.enqueue(ctx, sessionID, "", verdict)
	return verdict
}

func (s *ValidationService) Stats() domain.ValidationStats {
	return s.validator.Stats()
}

func (s *ValidationService) Limits() domain.Limits {
	return s.validator.Limits()
}

func (s *ValidationService) GetAuditQueue() <-chan domain.AuditRecord {
	return s.auditQueue
}

func (s *ValidationService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.auditQueue)
}

func (s *ValidationService) enqueue(ctx context.Context, sessionID, userID string, verdict domain.Verdict) {
	if ctx.Err() != nil {
		return
	}

	record := domain.AuditRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Verdict:   verdict,
		CreatedAt: time.Now(),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.auditQueue <- record:
	default:
		s.logger.Warn("dropping audit record", zap.String("session_id", sessionID), zap.Error(ErrAuditQueueFull))
	}
}
