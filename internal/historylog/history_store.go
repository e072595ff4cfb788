package historylog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"htngsync/internal/model"
)

// HistoryStore is the synchronous, direct-access message-history contract
// the inbound dispatcher needs for dedup.
// Unlike the message log (see subscriber.go), this cannot be an
// eventually-consistent NATS-batched write: the dedup check must observe
// the row written by the first of two concurrent replays before the second
// one decides whether to enqueue.
type HistoryStore interface {
	FindByFingerprint(ctx context.Context, hotelCode string, kind model.Kind, fingerprint string) (*model.MessageHistory, error)
	Insert(ctx context.Context, h *model.MessageHistory) (int64, error)
	MarkProcessed(ctx context.Context, id int64, ackResponse string, processedAt time.Time) error
}

// SQLHistoryStore is a Postgres- or MySQL-backed HistoryStore, following the
// same engine-switch idiom as internal/syncstate.SQLStore.
type SQLHistoryStore struct {
	db     *sql.DB
	engine string
}

// NewSQLHistoryStore opens a connection for engine ("postgres" or "mysql").
func NewSQLHistoryStore(engine, dsn string) (*SQLHistoryStore, error) {
	var driver string
	switch engine {
	case "postgres":
		driver = "postgres"
	case "mysql":
		driver = "mysql"
	default:
		return nil, fmt.Errorf("historylog: unsupported engine %q", engine)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("historylog: open %s: %w", engine, err)
	}
	return &SQLHistoryStore{db: db, engine: engine}, nil
}

func (s *SQLHistoryStore) placeholder(n int) string {
	if s.engine == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// FindByFingerprint looks up the most recent history row for (hotelCode,
// kind, fingerprint), or nil if none exists.
func (s *SQLHistoryStore) FindByFingerprint(ctx context.Context, hotelCode string, kind model.Kind, fingerprint string) (*model.MessageHistory, error) {
	ph := s.placeholder
	query := fmt.Sprintf(`
		SELECT id, direction, kind, property_id, hotel_code, raw_xml, fingerprint,
		       processing_status, received_at, processed_at, ack_response
		FROM message_history
		WHERE hotel_code = %s AND kind = %s AND fingerprint = %s
		ORDER BY received_at DESC LIMIT 1`, ph(1), ph(2), ph(3))

	row := s.db.QueryRowContext(ctx, query, hotelCode, string(kind), fingerprint)
	var h model.MessageHistory
	var receivedAt, processedAt sql.NullTime
	var ack sql.NullString
	err := row.Scan(&h.ID, &h.Direction, &h.Kind, &h.PropertyID, &h.HotelCode, &h.RawXML,
		&h.Fingerprint, &h.ProcessingStatus, &receivedAt, &processedAt, &ack)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("historylog: find by fingerprint: %w", err)
	}
	h.ReceivedAt = receivedAt.Time
	h.ProcessedAt = processedAt.Time
	h.AckResponse = ack.String
	return &h, nil
}

// Insert creates a new history row, returning its id.
func (s *SQLHistoryStore) Insert(ctx context.Context, h *model.MessageHistory) (int64, error) {
	raw, _ := model.TruncateBody(h.RawXML)

	if s.engine == "postgres" {
		query := `
			INSERT INTO message_history
				(direction, kind, property_id, hotel_code, raw_xml, fingerprint, processing_status, received_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`
		var id int64
		err := s.db.QueryRowContext(ctx, query, string(h.Direction), string(h.Kind), h.PropertyID,
			h.HotelCode, raw, h.Fingerprint, string(h.ProcessingStatus), h.ReceivedAt).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("historylog: insert: %w", err)
		}
		return id, nil
	}

	query := `
		INSERT INTO message_history
			(direction, kind, property_id, hotel_code, raw_xml, fingerprint, processing_status, received_at)
		VALUES (?,?,?,?,?,?,?,?)`
	res, err := s.db.ExecContext(ctx, query, string(h.Direction), string(h.Kind), h.PropertyID,
		h.HotelCode, raw, h.Fingerprint, string(h.ProcessingStatus), h.ReceivedAt)
	if err != nil {
		return 0, fmt.Errorf("historylog: insert: %w", err)
	}
	return res.LastInsertId()
}

// MarkProcessed transitions a history row to processed, storing the
// acknowledgment envelope byte-for-byte so a future replay can echo the
// exact same response.
func (s *SQLHistoryStore) MarkProcessed(ctx context.Context, id int64, ackResponse string, processedAt time.Time) error {
	ph := s.placeholder
	query := fmt.Sprintf(`
		UPDATE message_history SET processing_status = %s, ack_response = %s, processed_at = %s
		WHERE id = %s`, ph(1), ph(2), ph(3), ph(4))
	_, err := s.db.ExecContext(ctx, query, string(model.ProcessingStatusProcessed), ackResponse, processedAt, id)
	if err != nil {
		return fmt.Errorf("historylog: mark processed: %w", err)
	}
	return nil
}
