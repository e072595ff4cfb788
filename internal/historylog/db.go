package historylog

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a PostgreSQL connection and provides the batch-insert operations
// for the three audit-trail tables.
type DB struct {
	db *sql.DB
}

// OpenDB opens a connection to PostgreSQL and verifies it with a ping,
// retrying with a quadratic back-off so the daemon survives a database that
// is still starting.
func OpenDB(dsn string) (*DB, error) {
	const maxRetries = 5
	var (
		db  *sql.DB
		err error
	)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			log.Printf("historylog: connected to PostgreSQL (attempt %d)", attempt)
			return &DB{db: db}, nil
		}
		wait := time.Duration(attempt*attempt) * time.Second
		log.Printf("historylog: postgres not ready (attempt %d/%d): %v — retrying in %s",
			attempt, maxRetries, err, wait)
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("historylog: could not connect to PostgreSQL after %d attempts: %w", maxRetries, err)
}

// Close closes the underlying connection pool.
func (c *DB) Close() {
	if c.db != nil {
		_ = c.db.Close()
	}
}

// BatchInsertMessageLog persists a slice of MessageLogEvent as rows in
// message_log via a single multi-row INSERT.
func (c *DB) BatchInsertMessageLog(events []MessageLogEvent) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 14
	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*cols)

	for i, e := range events {
		base := i * cols
		ph := make([]string, cols)
		for col := 0; col < cols; col++ {
			ph[col] = fmt.Sprintf("$%d", base+col+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var completedAt interface{}
		if !e.CompletedAt.IsZero() {
			completedAt = e.CompletedAt
		}

		args = append(args,
			e.MessageID, e.ParentID, e.Direction, e.Kind, e.PropertyID, e.HotelCode,
			e.RequestBody, e.ResponseBody, e.Status, e.ErrorKind, e.ErrorMessage,
			e.RetryCount, e.StartedAt, completedAt,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO message_log
			(message_id, parent_id, direction, kind, property_id, hotel_code,
			 request_body, response_body, status, error_kind, error_message,
			 retry_count, started_at, completed_at)
		VALUES %s
		ON CONFLICT (message_id) DO UPDATE SET
			status = EXCLUDED.status, response_body = EXCLUDED.response_body,
			error_kind = EXCLUDED.error_kind, error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count, completed_at = EXCLUDED.completed_at`,
		strings.Join(placeholders, ","))

	if _, err := c.db.Exec(query, args...); err != nil {
		return fmt.Errorf("historylog: batch insert message_log: %w", err)
	}
	return nil
}

// BatchInsertMessageHistory persists a slice of MessageHistoryEvent as rows
// in message_history via a single multi-row INSERT.
func (c *DB) BatchInsertMessageHistory(events []MessageHistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 10
	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*cols)

	for i, e := range events {
		base := i * cols
		ph := make([]string, cols)
		for col := 0; col < cols; col++ {
			ph[col] = fmt.Sprintf("$%d", base+col+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var processedAt interface{}
		if !e.ProcessedAt.IsZero() {
			processedAt = e.ProcessedAt
		}

		args = append(args,
			e.Direction, e.Kind, e.PropertyID, e.HotelCode, e.RawXML, e.OriginalSize,
			e.Fingerprint, e.ProcessingStatus, e.ReceivedAt, processedAt,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO message_history
			(direction, kind, property_id, hotel_code, raw_xml, original_size,
			 fingerprint, processing_status, received_at, processed_at)
		VALUES %s`,
		strings.Join(placeholders, ","))

	if _, err := c.db.Exec(query, args...); err != nil {
		return fmt.Errorf("historylog: batch insert message_history: %w", err)
	}
	return nil
}

// BatchInsertErrorLog persists a slice of ErrorLogEvent as rows in error_log
// via a single multi-row INSERT.
func (c *DB) BatchInsertErrorLog(events []ErrorLogEvent) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 10
	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*cols)

	for i, e := range events {
		base := i * cols
		ph := make([]string, cols)
		for col := 0; col < cols; col++ {
			ph[col] = fmt.Sprintf("$%d", base+col+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		args = append(args,
			e.MessageID, e.ErrorKind, e.ErrorCode, e.Severity, e.Message, e.Stack,
			e.SourceContext, e.CanRetry, e.RecommendedDelayS, e.ManualIntervention,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO error_log
			(message_id, error_kind, error_code, severity, message, stack,
			 source_context, can_retry, recommended_retry_delay_seconds, manual_intervention)
		VALUES %s`,
		strings.Join(placeholders, ","))

	if _, err := c.db.Exec(query, args...); err != nil {
		return fmt.Errorf("historylog: batch insert error_log: %w", err)
	}
	return nil
}
