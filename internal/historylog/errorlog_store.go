package historylog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"htngsync/internal/model"
)

// ErrorLogStore persists error log rows, observed by alerting
// collaborators outside the core. Writes are synchronous and direct — unlike
// the message log, error rows are low-volume (one per classified failure,
// not one per record) and operators expect them queryable immediately.
type ErrorLogStore struct {
	db     *sql.DB
	engine string
}

// NewErrorLogStore wraps an already-open *sql.DB (typically shared with
// internal/syncstate.SQLStore's connection) for error-log writes.
func NewErrorLogStore(db *sql.DB, engine string) *ErrorLogStore {
	return &ErrorLogStore{db: db, engine: engine}
}

func (s *ErrorLogStore) placeholder(n int) string {
	if s.engine == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Insert writes one error_log row and returns its id.
func (s *ErrorLogStore) Insert(ctx context.Context, e model.ErrorLogEntry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if s.engine == "postgres" {
		query := `
			INSERT INTO error_log
				(message_id, error_kind, error_code, severity, message, stack, source_context,
				 can_retry, recommended_retry_delay_seconds, manual_intervention, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING id`
		var id int64
		err := s.db.QueryRowContext(ctx, query, e.MessageID, e.ErrorKind, e.ErrorCode, e.Severity,
			e.Message, e.Stack, e.SourceContext, e.CanRetry, e.RecommendedRetryDelaySeconds,
			e.ManualIntervention, e.CreatedAt).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("historylog: insert error log: %w", err)
		}
		return id, nil
	}

	query := `
		INSERT INTO error_log
			(message_id, error_kind, error_code, severity, message, stack, source_context,
			 can_retry, recommended_retry_delay_seconds, manual_intervention, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	res, err := s.db.ExecContext(ctx, query, e.MessageID, e.ErrorKind, e.ErrorCode, e.Severity,
		e.Message, e.Stack, e.SourceContext, e.CanRetry, e.RecommendedRetryDelaySeconds,
		e.ManualIntervention, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("historylog: insert error log: %w", err)
	}
	return res.LastInsertId()
}

// SyncErrorLogger adapts an *ErrorLogStore to the narrow ErrorLogger seam
// internal/inbound uses to record authentication failures that never
// reach a message log entry. Write failures are
// logged, not returned — the inbound response to the caller must not depend
// on error-log persistence succeeding.
type SyncErrorLogger struct {
	Store *ErrorLogStore
}

// LogError writes e, logging instead of returning any failure.
func (l SyncErrorLogger) LogError(ctx context.Context, e model.ErrorLogEntry) {
	if _, err := l.Store.Insert(ctx, e); err != nil {
		log.Printf("historylog: failed to write error log row: %v", err)
	}
}

// Resolve stamps an error_log row as resolved by an operator.
func (s *ErrorLogStore) Resolve(ctx context.Context, id int64, resolvedBy string, resolvedAt time.Time) error {
	ph := s.placeholder
	query := fmt.Sprintf(`UPDATE error_log SET resolved_at = %s, resolved_by = %s WHERE id = %s`,
		ph(1), ph(2), ph(3))
	_, err := s.db.ExecContext(ctx, query, resolvedAt, resolvedBy, id)
	if err != nil {
		return fmt.Errorf("historylog: resolve error log: %w", err)
	}
	return nil
}
