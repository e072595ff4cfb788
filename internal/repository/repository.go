// Package repository declares the narrow contract the messaging core uses to
// read and write the PMS domain. The core never owns PMS
// schema; it consumes this interface, implemented elsewhere.
package repository

import (
	"context"
	"time"

	"htngsync/internal/htngxml"
)

// ChangedInventoryRecord is one entry in the stream returned by
// IterateChangedInventory, carrying enough to build an htngxml.InventoryRecord.
type ChangedInventoryRecord struct {
	RoomTypeCode string
	Record       htngxml.InventoryRecord
	Mode         htngxml.InventoryMode
}

// ChangedRateRecord is one entry in the stream returned by IterateChangedRates.
type ChangedRateRecord struct {
	Plan htngxml.RatePlan
}

// ChangedRestrictionRecord is one entry in the stream returned by
// IterateChangedRestrictions.
type ChangedRestrictionRecord struct {
	Record htngxml.RestrictionRecord
}

// ReservationOperation is the closed set of effects an inbound reservation
// may have on the PMS.
type ReservationOperation string

const (
	ReservationOpCreate ReservationOperation = "create"
	ReservationOpModify ReservationOperation = "modify"
	ReservationOpCancel ReservationOperation = "cancel"
)

// ReservationApplyResult is the outcome of applying an inbound reservation.
type ReservationApplyResult struct {
	Applied       bool
	PMSReference  string
}

// PMS is the repository contract consumed by the validation pipeline
// (existence checks), the outbound producers (change streams for
// delta/full-sync), and the inbound workers (applying reservations).
// Implementations are fallible; the core maps failures to its own error
// taxonomy (usually business_logic or unknown).
type PMS interface {
	PropertyExists(ctx context.Context, internalPropertyID int64) (bool, error)
	RoomTypeExistsForProperty(ctx context.Context, internalPropertyID int64, code string) (bool, error)
	RatePlanExistsForProperty(ctx context.Context, internalPropertyID int64, code string) (bool, error)

	ApplyInboundReservation(ctx context.Context, op ReservationOperation, dto htngxml.ReservationDTO) (ReservationApplyResult, error)

	IterateChangedInventory(ctx context.Context, propertyID int64, since time.Time) (<-chan ChangedInventoryRecord, <-chan error)
	IterateChangedRates(ctx context.Context, propertyID int64, since time.Time) (<-chan ChangedRateRecord, <-chan error)
	IterateChangedRestrictions(ctx context.Context, propertyID int64, since time.Time) (<-chan ChangedRestrictionRecord, <-chan error)
}
