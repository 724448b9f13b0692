package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rl1809/cart-sync/internal/core/domain"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS cart_validations (
	id          CHAR(36)      NOT NULL PRIMARY KEY,
	session_id  VARCHAR(64)   NOT NULL,
	user_id     VARCHAR(64)   NOT NULL,
	is_valid    BOOLEAN       NOT NULL,
	errors      JSON          NOT NULL,
	warnings    JSON          NOT NULL,
	suggestions JSON          NOT NULL,
	total_items INT           NOT NULL,
	total_price DECIMAL(14,2) NOT NULL,
	created_at  DATETIME(3)   NOT NULL,
	INDEX idx_cart_validations_session (session_id, created_at)
)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("create cart_validations: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SaveVerdict(ctx context.Context, record domain.AuditRecord) error {
	errs, err := json.Marshal(record.Verdict.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	warnings, err := json.Marshal(record.Verdict.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	suggestions, err := json.Marshal(record.Verdict.Suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO cart_validations
			(id, session_id, user_id, is_valid, errors, warnings, suggestions, total_items, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.UserID, record.Verdict.IsValid,
		string(errs), string(warnings), string(suggestions),
		record.Verdict.TotalItems, record.Verdict.TotalPrice, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RecentVerdicts(ctx context.Context, sessionID string, limit int) ([]domain.AuditRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, is_valid, errors, warnings, suggestions, total_items, total_price, created_at
		FROM cart_validations
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var (
			rec                         domain.AuditRecord
			errs, warnings, suggestions []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.UserID, &rec.Verdict.IsValid,
			&errs, &warnings, &suggestions,
			&rec.Verdict.TotalItems, &rec.Verdict.TotalPrice, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		if err := decodeMessages(errs, &rec.Verdict.Errors); err != nil {
			return nil, err
		}
		if err := decodeMessages(warnings, &rec.Verdict.Warnings); err != nil {
			return nil, err
		}
		if err := decodeMessages(suggestions, &rec.Verdict.Suggestions); err != nil {
			return nil, err
		}
		rec.Verdict.CheckedAt = rec.CreatedAt
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return out, nil
}

func decodeMessages(raw []byte, dst *[]string) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode verdict messages: %w", err)
	}
	return nil
}
