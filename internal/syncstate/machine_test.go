package syncstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htngsync/internal/htngerr"
	"htngsync/internal/model"
)

func freshRow() *model.SyncStatus {
	return &model.SyncStatus{
		PropertyID: 1,
		Kind:       model.KindInventory,
		EntityType: "room_type",
		EntityID:   "101",
		State:      model.SyncStatePending,
		RetryCap:   3,
		AutoRetry:  true,
	}
}

func fixedMachine() *Machine {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Machine{Now: func() time.Time { return now }}
}

func TestStartTransitionsPendingToRunning(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.LastError = "previous failure"
	m.Start(row)
	assert.Equal(t, model.SyncStateRunning, row.State)
	assert.Empty(t, row.LastError, "previous error should be cleared")
	assert.False(t, row.LastAttempt.IsZero(), "LastAttempt should be set")
}

func TestCompleteSetsSuccessRateAndResetsRetry(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.State = model.SyncStateRunning
	row.RetryCount = 2
	m.Complete(row, 9, 10)
	assert.Equal(t, model.SyncStateCompleted, row.State)
	assert.Zero(t, row.RetryCount)
	assert.True(t, row.NextRetryAt.IsZero(), "NextRetryAt should be cleared on completion")
	assert.Equal(t, 90.0, row.SuccessRate)
}

func TestSuccessRateZeroTotalIsZero(t *testing.T) {
	assert.Zero(t, SuccessRate(5, 0))
}

func TestSuccessRateRoundsToTwoDecimals(t *testing.T) {
	assert.Equal(t, 33.33, SuccessRate(1, 3))
}

func TestFailRetriesWhenUnderCapAndRetryable(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.State = model.SyncStateRunning
	row.RetryCount = 0
	row.RetryCap = 3
	m.Fail(row, htngerr.KindConnection, "connect refused")
	assert.Equal(t, model.SyncStateFailed, row.State, "retry should be scheduled")
	assert.Equal(t, 1, row.RetryCount)
	assert.False(t, row.NextRetryAt.IsZero(), "NextRetryAt should be set when retrying")
	assert.Equal(t, "connect refused", row.LastError)
}

func TestFailGoesTerminalWhenRetryCapReached(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.State = model.SyncStateRunning
	row.RetryCount = 2
	row.RetryCap = 3
	m.Fail(row, htngerr.KindConnection, "connect refused")
	assert.Equal(t, 3, row.RetryCount)
	assert.Equal(t, model.SyncStateError, row.State, "retry_count reaching retry_cap is terminal")
	assert.True(t, row.NextRetryAt.IsZero(), "NextRetryAt should be cleared on terminal failure")
}

func TestFailGoesTerminalWhenKindNotRetryable(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.State = model.SyncStateRunning
	m.Fail(row, htngerr.KindValidation, "missing required field")
	assert.Equal(t, model.SyncStateError, row.State)
}

func TestFailGoesTerminalWhenAutoRetryDisabled(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.State = model.SyncStateRunning
	row.AutoRetry = false
	m.Fail(row, htngerr.KindConnection, "connect refused")
	assert.Equal(t, model.SyncStateError, row.State)
}

func TestBackoffDoublesPerAttemptCappedAt30Min(t *testing.T) {
	d1 := Backoff(htngerr.KindConnection, 1)
	assert.Equal(t, d1*2, Backoff(htngerr.KindConnection, 2))
	assert.Equal(t, d1*4, Backoff(htngerr.KindConnection, 3))
	assert.Equal(t, MaxBackoff, Backoff(htngerr.KindConnection, 20))
}

func TestResetOnChangeTransitionsCompletedToPending(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.State = model.SyncStateCompleted
	m.ResetOnChange(row)
	assert.Equal(t, model.SyncStatePending, row.State)
}

func TestActivateAndDeactivateToggleAutoRetry(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.AutoRetry = false
	m.Activate(row)
	require.True(t, row.AutoRetry)
	m.Deactivate(row)
	require.False(t, row.AutoRetry)
}

func TestForceResendClearsRetryScheduleAndReturnsToPending(t *testing.T) {
	m := fixedMachine()
	row := freshRow()
	row.State = model.SyncStateFailed
	row.NextRetryAt = m.now().Add(time.Hour)
	m.ForceResend(row)
	assert.Equal(t, model.SyncStatePending, row.State)
	assert.True(t, row.NextRetryAt.IsZero(), "NextRetryAt should be cleared on force resend")
}

func TestKeyFormatsEntityTuple(t *testing.T) {
	assert.Equal(t, "7/rates/rate_plan/BAR", Key(7, model.KindRates, "rate_plan", "BAR"))
}
