package syncstate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"htngsync/internal/model"
)

// Store persists sync-status rows, keyed by (property, kind, entity_type,
// entity_id). Mutations to a single row MUST be serialized
//; Store enforces this with a per-key mutex rather than
// relying solely on the backing database's row lock, so the in-process
// caller sees the same serialization guarantee regardless of isolation level.
type Store interface {
	Get(ctx context.Context, propertyID int64, kind model.Kind, entityType, entityID string) (*model.SyncStatus, error)
	Upsert(ctx context.Context, row *model.SyncStatus) error
	// WithLock runs fn holding the per-row lease for the given key, loading
	// the current row (or a fresh pending row if none exists) and persisting
	// whatever fn leaves it as.
	WithLock(ctx context.Context, propertyID int64, kind model.Kind, entityType, entityID string, fn func(row *model.SyncStatus) error) error
	// ListDue returns every row in-progress or retry-eligible with
	// next_retry_at <= now, the recovery query the outbound scheduler runs on
	// startup so "next_retry_at MUST be honoured across restarts" holds without a separate durable job table.
	ListDue(ctx context.Context, now time.Time) ([]*model.SyncStatus, error)
}

// SQLStore is a Postgres- or MySQL-backed Store; the two engines differ only
// in bind placeholders and upsert syntax.
type SQLStore struct {
	db     *sql.DB
	engine string // "postgres" | "mysql"

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLStore opens a connection for engine ("postgres" or "mysql") using dsn.
func NewSQLStore(engine, dsn string) (*SQLStore, error) {
	var driver string
	switch engine {
	case "postgres":
		driver = "postgres"
	case "mysql":
		driver = "mysql"
	default:
		return nil, fmt.Errorf("syncstate: unsupported engine %q", engine)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("syncstate: open %s: %w", engine, err)
	}
	return &SQLStore{db: db, engine: engine, locks: map[string]*sync.Mutex{}}, nil
}

// placeholder returns the nth bind placeholder for the store's engine.
func (s *SQLStore) placeholder(n int) string {
	if s.engine == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) rowLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Get loads one sync-status row, or nil if none exists yet.
func (s *SQLStore) Get(ctx context.Context, propertyID int64, kind model.Kind, entityType, entityID string) (*model.SyncStatus, error) {
	ph := func(n int) string { return s.placeholder(n) }
	query := fmt.Sprintf(`
		SELECT property_id, kind, entity_type, entity_id, state, last_attempt, last_success,
		       retry_count, retry_cap, next_retry_at, last_error, records_processed,
		       records_total, success_rate, auto_retry, change_log
		FROM sync_status
		WHERE property_id = %s AND kind = %s AND entity_type = %s AND entity_id = %s`,
		ph(1), ph(2), ph(3), ph(4))

	row := s.db.QueryRowContext(ctx, query, propertyID, string(kind), entityType, entityID)
	var r model.SyncStatus
	var changeLog string
	var lastAttempt, lastSuccess, nextRetryAt sql.NullTime
	err := row.Scan(&r.PropertyID, &r.Kind, &r.EntityType, &r.EntityID, &r.State,
		&lastAttempt, &lastSuccess, &r.RetryCount, &r.RetryCap, &nextRetryAt,
		&r.LastError, &r.RecordsProcessed, &r.RecordsTotal, &r.SuccessRate, &r.AutoRetry, &changeLog)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncstate: get: %w", err)
	}
	r.LastAttempt = lastAttempt.Time
	r.LastSuccess = lastSuccess.Time
	r.NextRetryAt = nextRetryAt.Time
	if changeLog != "" {
		r.ChangeLog = strings.Split(changeLog, "\n")
	}
	return &r, nil
}

// Upsert inserts or updates a sync-status row by its unique entity tuple.
func (s *SQLStore) Upsert(ctx context.Context, r *model.SyncStatus) error {
	changeLog := strings.Join(r.ChangeLog, "\n")

	var query string
	switch s.engine {
	case "postgres":
		query = `
			INSERT INTO sync_status (property_id, kind, entity_type, entity_id, state, last_attempt,
				last_success, retry_count, retry_cap, next_retry_at, last_error, records_processed,
				records_total, success_rate, auto_retry, change_log)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (property_id, kind, entity_type, entity_id) DO UPDATE SET
				state = EXCLUDED.state, last_attempt = EXCLUDED.last_attempt,
				last_success = EXCLUDED.last_success, retry_count = EXCLUDED.retry_count,
				retry_cap = EXCLUDED.retry_cap, next_retry_at = EXCLUDED.next_retry_at,
				last_error = EXCLUDED.last_error, records_processed = EXCLUDED.records_processed,
				records_total = EXCLUDED.records_total, success_rate = EXCLUDED.success_rate,
				auto_retry = EXCLUDED.auto_retry, change_log = EXCLUDED.change_log`
	case "mysql":
		query = `
			INSERT INTO sync_status (property_id, kind, entity_type, entity_id, state, last_attempt,
				last_success, retry_count, retry_cap, next_retry_at, last_error, records_processed,
				records_total, success_rate, auto_retry, change_log)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON DUPLICATE KEY UPDATE
				state = VALUES(state), last_attempt = VALUES(last_attempt),
				last_success = VALUES(last_success), retry_count = VALUES(retry_count),
				retry_cap = VALUES(retry_cap), next_retry_at = VALUES(next_retry_at),
				last_error = VALUES(last_error), records_processed = VALUES(records_processed),
				records_total = VALUES(records_total), success_rate = VALUES(success_rate),
				auto_retry = VALUES(auto_retry), change_log = VALUES(change_log)`
	}

	_, err := s.db.ExecContext(ctx, query,
		r.PropertyID, string(r.Kind), r.EntityType, r.EntityID, string(r.State),
		nullTime(r.LastAttempt), nullTime(r.LastSuccess), r.RetryCount, r.RetryCap,
		nullTime(r.NextRetryAt), r.LastError, r.RecordsProcessed, r.RecordsTotal,
		r.SuccessRate, r.AutoRetry, changeLog)
	if err != nil {
		return fmt.Errorf("syncstate: upsert: %w", err)
	}
	return nil
}

// WithLock serializes mutations to the row identified by the entity tuple.
func (s *SQLStore) WithLock(ctx context.Context, propertyID int64, kind model.Kind, entityType, entityID string, fn func(row *model.SyncStatus) error) error {
	key := Key(propertyID, kind, entityType, entityID)
	lock := s.rowLock(key)
	lock.Lock()
	defer lock.Unlock()

	row, err := s.Get(ctx, propertyID, kind, entityType, entityID)
	if err != nil {
		return err
	}
	if row == nil {
		row = &model.SyncStatus{
			PropertyID: propertyID,
			Kind:       kind,
			EntityType: entityType,
			EntityID:   entityID,
			State:      model.SyncStatePending,
			RetryCap:   3,
			AutoRetry:  true,
		}
	}
	if err := fn(row); err != nil {
		return err
	}
	return s.Upsert(ctx, row)
}

// ListDue scans for rows that are either mid-retry with an elapsed
// next_retry_at or stuck in_progress/failed with auto_retry set, so recovery
// after a restart picks up exactly the work the pre-crash scheduler owed.
func (s *SQLStore) ListDue(ctx context.Context, now time.Time) ([]*model.SyncStatus, error) {
	ph := func(n int) string { return s.placeholder(n) }
	query := fmt.Sprintf(`
		SELECT property_id, kind, entity_type, entity_id, state, last_attempt, last_success,
		       retry_count, retry_cap, next_retry_at, last_error, records_processed,
		       records_total, success_rate, auto_retry, change_log
		FROM sync_status
		WHERE auto_retry = true
		  AND state IN ('pending', 'running', 'failed', 'error')
		  AND (next_retry_at IS NULL OR next_retry_at <= %s)`, ph(1))

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("syncstate: list due: %w", err)
	}
	defer rows.Close()

	var due []*model.SyncStatus
	for rows.Next() {
		var r model.SyncStatus
		var changeLog string
		var lastAttempt, lastSuccess, nextRetryAt sql.NullTime
		if err := rows.Scan(&r.PropertyID, &r.Kind, &r.EntityType, &r.EntityID, &r.State,
			&lastAttempt, &lastSuccess, &r.RetryCount, &r.RetryCap, &nextRetryAt,
			&r.LastError, &r.RecordsProcessed, &r.RecordsTotal, &r.SuccessRate, &r.AutoRetry, &changeLog); err != nil {
			return nil, fmt.Errorf("syncstate: list due scan: %w", err)
		}
		r.LastAttempt = lastAttempt.Time
		r.LastSuccess = lastSuccess.Time
		r.NextRetryAt = nextRetryAt.Time
		if changeLog != "" {
			r.ChangeLog = strings.Split(changeLog, "\n")
		}
		due = append(due, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("syncstate: list due rows: %w", err)
	}
	return due, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
