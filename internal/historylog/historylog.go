// Package historylog persists the append-mostly audit trail: message log
// entries (one per dispatch attempt), message history rows (one per envelope
// sent or received, keyed by content fingerprint for inbound dedup), and
// error log entries.
//
// On the write path the outbound scheduler and inbound dispatcher publish
// rows onto NATS subjects (internal/eventbus) rather than writing SQL
// directly; historylogd's batching subscriber accumulates and flushes them
// to Postgres. This keeps the hot dispatch/inbound paths free of a
// synchronous database round trip.
package historylog

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"htngsync/internal/model"
)

// Publishing subjects for these events live on internal/eventbus
// (MessageLogSubject, MessageHistorySubject, ErrorLogSubject) so callers
// that only need to publish don't have to import this package too.

// Fingerprint computes the SHA-256 content fingerprint of an envelope body,
// the key inbound deduplication matches on. Canonicalization is
// whitespace-trim only: byte-identical-after-trim is the dedup key. See
// DESIGN.md for the tradeoff.
func Fingerprint(body []byte) string {
	trimmed := trimSpace(body)
	sum := sha256.Sum256(trimmed)
	return hex.EncodeToString(sum[:])
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// MessageLogEvent is the wire payload published on MessageLogSubject,
// carrying a model.MessageLogEntry plus the timestamp fields JSON needs
// explicit formatting for.
type MessageLogEvent struct {
	MessageID    string                 `json:"message_id"`
	ParentID     string                 `json:"parent_id,omitempty"`
	Direction    string                 `json:"direction"`
	Kind         string                 `json:"kind"`
	PropertyID   int64                  `json:"property_id"`
	HotelCode    string                 `json:"hotel_code"`
	RequestBody  string                 `json:"request_body,omitempty"`
	ResponseBody string                 `json:"response_body,omitempty"`
	Status       string                 `json:"status"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	RetryCount   int                    `json:"retry_count"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  time.Time              `json:"completed_at,omitempty"`
	DurationMS   int64                  `json:"duration_ms"`
	JobID        string                 `json:"job_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// FromMessageLogEntry adapts a model.MessageLogEntry into its wire event,
// truncating request/response bodies to the storage bound.
func FromMessageLogEntry(e model.MessageLogEntry) MessageLogEvent {
	reqBody, _ := model.TruncateBody(e.RequestBody)
	respBody, _ := model.TruncateBody(e.ResponseBody)
	return MessageLogEvent{
		MessageID:    e.MessageID,
		ParentID:     e.ParentID,
		Direction:    string(e.Direction),
		Kind:         string(e.Kind),
		PropertyID:   e.PropertyID,
		HotelCode:    e.HotelCode,
		RequestBody:  reqBody,
		ResponseBody: respBody,
		Status:       string(e.Status),
		ErrorKind:    e.ErrorKind,
		ErrorMessage: e.ErrorMessage,
		RetryCount:   e.RetryCount,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
		DurationMS:   e.DurationMS,
		JobID:        e.JobID,
		Metadata:     e.Metadata,
	}
}

// MessageHistoryEvent is the wire payload published on MessageHistorySubject.
type MessageHistoryEvent struct {
	Direction        string                 `json:"direction"`
	Kind             string                 `json:"kind"`
	PropertyID       int64                  `json:"property_id"`
	HotelCode        string                 `json:"hotel_code"`
	RawXML           string                 `json:"raw_xml"`
	OriginalSize     int                    `json:"original_size"`
	Fingerprint      string                 `json:"fingerprint"`
	KeyFields        map[string]interface{} `json:"key_fields,omitempty"`
	ProcessingStatus string                 `json:"processing_status"`
	ReceivedAt       time.Time              `json:"received_at,omitempty"`
	ProcessedAt      time.Time              `json:"processed_at,omitempty"`
	AckResponse      string                 `json:"ack_response,omitempty"`
}

// FromMessageHistory adapts a model.MessageHistory, capping RawXML at
// model.MaxLogBodyBytes.
func FromMessageHistory(h model.MessageHistory) MessageHistoryEvent {
	raw, originalSize := model.TruncateBody(h.RawXML)
	return MessageHistoryEvent{
		Direction:        string(h.Direction),
		Kind:             string(h.Kind),
		PropertyID:       h.PropertyID,
		HotelCode:        h.HotelCode,
		RawXML:           raw,
		OriginalSize:     originalSize,
		Fingerprint:      h.Fingerprint,
		KeyFields:        h.KeyFields,
		ProcessingStatus: string(h.ProcessingStatus),
		ReceivedAt:       h.ReceivedAt,
		ProcessedAt:      h.ProcessedAt,
		AckResponse:       h.AckResponse,
	}
}

// ErrorLogEvent is the wire payload published on ErrorLogSubject.
type ErrorLogEvent struct {
	MessageID          string `json:"message_id"`
	ErrorKind          string `json:"error_kind"`
	ErrorCode          string `json:"error_code"`
	Severity           string `json:"severity"`
	Message            string `json:"message"`
	Stack              string `json:"stack,omitempty"`
	SourceContext      string `json:"source_context,omitempty"`
	CanRetry           bool   `json:"can_retry"`
	RecommendedDelayS  int    `json:"recommended_retry_delay_seconds"`
	ManualIntervention bool   `json:"manual_intervention"`
}
