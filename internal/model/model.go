// Package model holds the shared data-model types of the sync core: message
// kinds, directions, the message log / message history / sync status /
// error log row shapes, and property mapping/configuration. These are the
// DTOs every other package (htngxml, syncstate, scheduler, inbound,
// historylog, mapping) is built around.
package model

import "time"

// Kind is the closed set of message kinds.
type Kind string

const (
	KindInventory      Kind = "inventory"
	KindRates          Kind = "rates"
	KindReservation    Kind = "reservation"
	KindRestrictions   Kind = "restrictions"
	KindGroupBlock     Kind = "group_block"
	KindMappingCreated Kind = "mapping_created"
	KindMappingUpdated Kind = "mapping_updated"
	KindMappingDeleted Kind = "mapping_deleted"
)

// Direction is outbound (PMS -> channel) or inbound (channel -> PMS).
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// MessageStatus is the dispatch-attempt status of a message log entry.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusRunning   MessageStatus = "running"
	MessageStatusCompleted MessageStatus = "completed"
	MessageStatusFailed    MessageStatus = "failed"
)

// MessageLogEntry is one row per dispatch attempt.
type MessageLogEntry struct {
	MessageID    string
	ParentID     string
	Direction    Direction
	Kind         Kind
	PropertyID   int64
	HotelCode    string
	RequestBody  string
	ResponseBody string
	Status       MessageStatus
	ErrorKind    string
	ErrorMessage string
	RetryCount   int
	StartedAt    time.Time
	CompletedAt  time.Time
	DurationMS   int64
	JobID        string
	Metadata     map[string]interface{}
}

// MaxLogBodyBytes bounds message log request/response body storage.
const MaxLogBodyBytes = 65000

// TruncateBody caps body to MaxLogBodyBytes, returning the possibly-truncated
// string and the original byte length so truncation is observable.
func TruncateBody(body string) (truncated string, originalSize int) {
	originalSize = len(body)
	if originalSize <= MaxLogBodyBytes {
		return body, originalSize
	}
	return body[:MaxLogBodyBytes], originalSize
}

// ProcessingStatus is the lifecycle of an inbound message history row.
type ProcessingStatus string

const (
	ProcessingStatusPending   ProcessingStatus = "pending"
	ProcessingStatusProcessed ProcessingStatus = "processed"
	ProcessingStatusFailed    ProcessingStatus = "failed"
)

// MessageHistory is one row per envelope sent or received.
type MessageHistory struct {
	ID               int64
	Direction        Direction
	Kind             Kind
	PropertyID       int64
	HotelCode        string
	RawXML           string
	OriginalSize     int
	Fingerprint      string // SHA-256 hex
	KeyFields        map[string]interface{}
	ProcessingStatus ProcessingStatus
	ReceivedAt       time.Time
	ProcessedAt      time.Time
	AckResponse      string // the acknowledgment envelope sent back, for idempotent replay
}

// SyncState is the sync-status state machine's closed set of states.
type SyncState string

const (
	SyncStatePending  SyncState = "pending"
	SyncStateRunning  SyncState = "running"
	SyncStateCompleted SyncState = "completed"
	SyncStateFailed   SyncState = "failed"
	SyncStateInactive SyncState = "inactive"
	SyncStateError    SyncState = "error"
)

// SyncStatus is one row keyed by (property, kind, entity type, entity id).
type SyncStatus struct {
	PropertyID      int64
	Kind            Kind
	EntityType      string
	EntityID        string
	State           SyncState
	LastAttempt     time.Time
	LastSuccess     time.Time
	RetryCount      int
	RetryCap        int
	NextRetryAt     time.Time
	LastError       string
	RecordsProcessed int64
	RecordsTotal    int64
	SuccessRate     float64
	AutoRetry       bool
	ChangeLog       []string
}

// ErrorLogEntry is one row per failure.
type ErrorLogEntry struct {
	ID                  int64
	MessageID           string
	ErrorKind           string
	ErrorCode           string
	Severity            string
	Message             string
	Stack               string
	SourceContext       string
	CanRetry            bool
	RecommendedRetryDelaySeconds int
	ManualIntervention  bool
	ResolvedAt          time.Time
	ResolvedBy          string
	CreatedAt           time.Time
}

// FeatureFlags enumerates the per-property toggle set.
type FeatureFlags struct {
	Inventory    bool
	Rates        bool
	Restrictions bool
	Reservations bool
	GroupBlocks  bool
}

// SyncSettings is the per-property sync tuning.
type SyncSettings struct {
	BatchSize     int
	RetryAttempts int
	IntervalSeconds int
}

// PropertyMapping is an active association between an internal property id
// and an external hotel code. At most one active mapping may
// exist per internal property and per external hotel code — enforced by the
// mapping store, not this type.
type PropertyMapping struct {
	ID               int64
	InternalPropertyID int64
	ExternalHotelCode string
	Active           bool
	RoomTypeMap      map[string]string
	RatePlanMap      map[string]string
	Excludes         []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PropertyConfig is derived from the active mapping; it is
// rebuilt whenever the mapping changes.
type PropertyConfig struct {
	PropertyID    int64
	Username      string
	Password      string
	WSSEHotelCode string
	EndpointOverride string
	Features      FeatureFlags
	Sync          SyncSettings
}
