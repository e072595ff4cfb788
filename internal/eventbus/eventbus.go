// Package eventbus publishes and subscribes to the core's domain events over
// NATS: SyncStatusChanged, mapping lifecycle events, and the audit-trail
// subjects historylogd persists.
package eventbus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SyncStatusChangedSubject is the NATS subject every sync-status mutation is
// published on. Observers (config mirror, cache invalidator, alerting) are
// ordinary subscribers, never lifecycle hooks embedded in the sync-state
// store itself.
const SyncStatusChangedSubject = "htng.sync_status.changed"

// SyncStatusChanged is the event payload emitted on every sync-status row
// mutation.
type SyncStatusChanged struct {
	PropertyID     int64                  `json:"property_id"`
	Kind           string                 `json:"kind"`
	EntityType     string                 `json:"entity_type"`
	EntityID       string                 `json:"entity_id"`
	PreviousState  string                 `json:"previous_state"`
	State          string                 `json:"state"`
	ChangeType     string                 `json:"change_type"`
	SuccessRate    float64                `json:"success_rate,omitempty"`
	LastError      string                 `json:"last_error,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// Bus wraps a NATS connection for publishing domain events. Connection
// failure at construction time degrades to a disabled bus rather than
// failing the caller; the core must not depend on broadcast success.
type Bus struct {
	conn    *nats.Conn
	enabled bool
}

// Connect dials natsURL. If natsURL is empty or the dial fails, a disabled
// Bus is returned whose Publish calls are no-ops; a dial failure is logged,
// never returned.
func Connect(natsURL string) *Bus {
	if natsURL == "" {
		return &Bus{enabled: false}
	}
	nc, err := nats.Connect(natsURL,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("eventbus: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("eventbus: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		log.Printf("eventbus: warning: failed to connect to NATS at %s: %v. Event publishing disabled.", natsURL, err)
		return &Bus{enabled: false}
	}
	log.Printf("eventbus: connected to NATS at %s", natsURL)
	return &Bus{conn: nc, enabled: true}
}

// Close releases the underlying NATS connection, if any.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// PublishSyncStatusChanged emits ev on SyncStatusChangedSubject. Marshal or
// publish failures are logged, never returned — the core must not depend on
// broadcast success.
func (b *Bus) PublishSyncStatusChanged(ev SyncStatusChanged) {
	if !b.enabled {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("eventbus: failed to marshal SyncStatusChanged: %v", err)
		return
	}
	if err := b.conn.Publish(SyncStatusChangedSubject, data); err != nil {
		log.Printf("eventbus: failed to publish SyncStatusChanged: %v", err)
	}
}

// MessageLogSubject carries completed message-log entries to historylogd for
// durable, batched persistence.
const MessageLogSubject = "htng.message_log"

// MessageHistorySubject and ErrorLogSubject carry message-history and
// error-log rows to the same durable persistence path as MessageLogSubject.
const (
	MessageHistorySubject = "htng.message_history"
	ErrorLogSubject       = "htng.error_log"
)

// PublishRaw publishes an arbitrary JSON-serializable payload on subject.
// Used by the outbound scheduler and inbound dispatcher to ship message log
// / message history rows to historylogd without a direct DB dependency.
func (b *Bus) PublishRaw(subject string, payload interface{}) {
	if !b.enabled {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("eventbus: failed to marshal payload for %s: %v", subject, err)
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		log.Printf("eventbus: failed to publish to %s: %v", subject, err)
	}
}

// Subscribe registers handler on subject, returning the underlying
// subscription so the caller can Drain it on shutdown. Returns (nil, nil) on
// a disabled bus — callers that need invalidation to actually happen should
// check for a nil subscription and log accordingly.
func (b *Bus) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if !b.enabled {
		return nil, nil
	}
	return b.conn.Subscribe(subject, handler)
}
