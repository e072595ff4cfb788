// Package syncstate implements the per (property, kind, entity_type,
// entity_id) durable sync-status state machine and the SyncStatusChanged
// event it emits on every mutation.
package syncstate

import (
	"fmt"
	"math"
	"time"

	"htngsync/internal/eventbus"
	"htngsync/internal/htngerr"
	"htngsync/internal/model"
)

// ChangeType is carried on every SyncStatusChanged event so subscribers can
// tell a retry from a fresh run without diffing snapshots themselves.
type ChangeType string

const (
	ChangeStarted        ChangeType = "started"
	ChangeCompleted      ChangeType = "completed"
	ChangeFailedRetrying ChangeType = "failed_retrying"
	ChangeFailedTerminal ChangeType = "failed_terminal"
	ChangeReset          ChangeType = "reset"
	ChangeActivated      ChangeType = "activated"
	ChangeDeactivated    ChangeType = "deactivated"
)

// MaxBackoff caps exponential retry backoff.
const MaxBackoff = 30 * time.Minute

// Machine drives transitions for a single sync-status row. It does not own
// persistence; Store (store.go) does. Now is overridable for deterministic tests.
type Machine struct {
	Now func() time.Time
	Bus *eventbus.Bus
}

// NewMachine builds a Machine. bus may be nil (events are then silently dropped).
func NewMachine(bus *eventbus.Bus) *Machine {
	return &Machine{Now: time.Now, Bus: bus}
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Start transitions pending|failed -> running.
func (m *Machine) Start(row *model.SyncStatus) {
	prev := *row
	row.State = model.SyncStateRunning
	row.LastAttempt = m.now()
	row.LastError = ""
	m.emit(row, &prev, ChangeStarted)
}

// Complete transitions running -> completed, recomputing the success rate.
func (m *Machine) Complete(row *model.SyncStatus, recordsProcessed, recordsTotal int64) {
	prev := *row
	row.State = model.SyncStateCompleted
	row.LastSuccess = m.now()
	row.RetryCount = 0
	row.NextRetryAt = time.Time{}
	row.RecordsProcessed = recordsProcessed
	row.RecordsTotal = recordsTotal
	row.SuccessRate = SuccessRate(recordsProcessed, recordsTotal)
	m.emit(row, &prev, ChangeCompleted)
}

// SuccessRate is round(processed/total*100, 2), or 0 when total is 0.
func SuccessRate(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(processed) / float64(total) * 100
	return math.Round(rate*100) / 100
}

// Fail transitions running -> failed (retry scheduled) or running -> error
// (terminal): a retry is scheduled only when the kind is retryable,
// retry_count is under retry_cap, and the auto-retry flag is set.
func (m *Machine) Fail(row *model.SyncStatus, errKind htngerr.Kind, errMessage string) {
	prev := *row
	row.LastError = errMessage
	row.RetryCount++

	if errKind.Retryable() && row.RetryCount < row.RetryCap && row.AutoRetry {
		row.State = model.SyncStateFailed
		row.NextRetryAt = m.now().Add(Backoff(errKind, row.RetryCount))
		m.emit(row, &prev, ChangeFailedRetrying)
		return
	}
	row.State = model.SyncStateError
	row.NextRetryAt = time.Time{}
	m.emit(row, &prev, ChangeFailedTerminal)
}

// Backoff computes the exponential retry delay for attempt (1-indexed),
// capped at MaxBackoff.
func Backoff(kind htngerr.Kind, attempt int) time.Duration {
	base := kind.DefaultDelay()
	if base <= 0 {
		base = 60 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > MaxBackoff {
		delay = MaxBackoff
	}
	return delay
}

// ResetOnChange transitions completed -> pending on a new domain change.
func (m *Machine) ResetOnChange(row *model.SyncStatus) {
	prev := *row
	row.State = model.SyncStatePending
	m.emit(row, &prev, ChangeReset)
}

// Activate makes existing status rows for a property eligible again on
// mapping activation.
func (m *Machine) Activate(row *model.SyncStatus) {
	prev := *row
	row.AutoRetry = true
	m.emit(row, &prev, ChangeActivated)
}

// Deactivate suppresses auto-retry on mapping deactivation.
func (m *Machine) Deactivate(row *model.SyncStatus) {
	prev := *row
	row.AutoRetry = false
	m.emit(row, &prev, ChangeDeactivated)
}

// ForceResend forces a status row back to pending on a mapping's hotel-code
// change, so the next sync resends everything under the new code.
func (m *Machine) ForceResend(row *model.SyncStatus) {
	prev := *row
	row.State = model.SyncStatePending
	row.NextRetryAt = time.Time{}
	m.emit(row, &prev, ChangeReset)
}

func (m *Machine) emit(row, prev *model.SyncStatus, change ChangeType) {
	if m.Bus == nil {
		return
	}
	m.Bus.PublishSyncStatusChanged(eventbus.SyncStatusChanged{
		PropertyID:   row.PropertyID,
		Kind:         string(row.Kind),
		EntityType:   row.EntityType,
		EntityID:     row.EntityID,
		State:        string(row.State),
		PreviousState: string(prev.State),
		ChangeType:   string(change),
		SuccessRate:  row.SuccessRate,
		LastError:    row.LastError,
		OccurredAt:   m.now(),
	})
}

// Key uniquely identifies a sync-status row.
func Key(propertyID int64, kind model.Kind, entityType, entityID string) string {
	return fmt.Sprintf("%d/%s/%s/%s", propertyID, kind, entityType, entityID)
}
