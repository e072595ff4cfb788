// Package scheduler holds the outbound dispatch machinery: the four logical
// queues and their profiles, the per-(property, kind) dispatch lease,
// batching helpers, per-property circuit breaking, the periodic full-sync
// trigger, and the durable AMQP queue backend.
package scheduler

import (
	"strconv"
	"time"

	"htngsync/internal/htngxml"
	"htngsync/internal/model"
)

// QueueName is the closed set of logical queues.
type QueueName string

const (
	QueueHigh         QueueName = "high"
	QueueOutbound     QueueName = "outbound"
	QueueInboundWork  QueueName = "inbound-work"
	QueueLow          QueueName = "low"
)

// QueueProfile is the fixed concurrency/retry/timeout profile per queue.
type QueueProfile struct {
	Concurrency int
	MaxRetries  int
	JobTimeout  time.Duration
}

// DefaultProfiles is the fixed queue table. Operators may override
// concurrency via config.Config.QueueConcurrency; retries and timeout are
// not operator-tunable.
var DefaultProfiles = map[QueueName]QueueProfile{
	QueueHigh:        {Concurrency: 5, MaxRetries: 3, JobTimeout: 60 * time.Second},
	QueueOutbound:    {Concurrency: 10, MaxRetries: 3, JobTimeout: 120 * time.Second},
	QueueInboundWork: {Concurrency: 8, MaxRetries: 3, JobTimeout: 90 * time.Second},
	QueueLow:         {Concurrency: 3, MaxRetries: 2, JobTimeout: 300 * time.Second},
}

// Job is one unit of outbound dispatch work. Mode distinguishes a delta push
// (only changes since last_success) from a full sync (every applicable
// record); it reuses htngxml.SyncMode rather than introducing a second
// vocabulary for the same concept.
type Job struct {
	ID          string
	Queue       QueueName
	PropertyID  int64
	Kind        model.Kind
	EntityType  string
	EntityID    string
	Mode        htngxml.SyncMode
	Payload     []byte // pre-built, pre-validated HTNG XML body ready for the envelope
	RootElement string
	RecordCount int // records aggregated into Payload; drives the sync-status totals
	EnqueuedAt  time.Time
	NextRetryAt time.Time
	Attempt     int
}

// LeaseKey identifies the (property, kind) stream that must never be
// dispatched concurrently.
func LeaseKey(propertyID int64, kind model.Kind) string {
	return string(kind) + "@" + strconv.FormatInt(propertyID, 10)
}
