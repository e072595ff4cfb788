package validation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htngsync/internal/htngxml"
	"htngsync/internal/repository"
)

type fakePMS struct {
	properties map[int64]bool
	roomTypes  map[string]bool
	ratePlans  map[string]bool
}

func newFakePMS() *fakePMS {
	return &fakePMS{
		properties: map[int64]bool{1: true},
		roomTypes:  map[string]bool{"1/KING": true},
		ratePlans:  map[string]bool{"1/BAR": true},
	}
}

func (f *fakePMS) PropertyExists(ctx context.Context, id int64) (bool, error) {
	return f.properties[id], nil
}

func (f *fakePMS) RoomTypeExistsForProperty(ctx context.Context, id int64, code string) (bool, error) {
	return f.roomTypes[roomTypeKey(id, code)], nil
}

func (f *fakePMS) RatePlanExistsForProperty(ctx context.Context, id int64, code string) (bool, error) {
	return f.ratePlans[roomTypeKey(id, code)], nil
}

func (f *fakePMS) ApplyInboundReservation(ctx context.Context, op repository.ReservationOperation, dto htngxml.ReservationDTO) (repository.ReservationApplyResult, error) {
	return repository.ReservationApplyResult{Applied: true}, nil
}

func (f *fakePMS) IterateChangedInventory(ctx context.Context, propertyID int64, since time.Time) (<-chan repository.ChangedInventoryRecord, <-chan error) {
	out := make(chan repository.ChangedInventoryRecord)
	errs := make(chan error)
	close(out)
	close(errs)
	return out, errs
}

func (f *fakePMS) IterateChangedRates(ctx context.Context, propertyID int64, since time.Time) (<-chan repository.ChangedRateRecord, <-chan error) {
	out := make(chan repository.ChangedRateRecord)
	errs := make(chan error)
	close(out)
	close(errs)
	return out, errs
}

func (f *fakePMS) IterateChangedRestrictions(ctx context.Context, propertyID int64, since time.Time) (<-chan repository.ChangedRestrictionRecord, <-chan error) {
	out := make(chan repository.ChangedRestrictionRecord)
	errs := make(chan error)
	close(out)
	close(errs)
	return out, errs
}

func TestValidateInventoryRejectsUnknownRoomType(t *testing.T) {
	rs := NewRuleSet(newFakePMS(), 0, 0)
	dto := htngxml.InventoryDTO{
		Records: []htngxml.InventoryRecord{{RoomTypeCode: "QUEEN"}},
	}
	err := rs.ValidateInventory(context.Background(), 1, dto)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEEN")
}

func TestValidateInventoryRejectsUnknownProperty(t *testing.T) {
	rs := NewRuleSet(newFakePMS(), 0, 0)
	dto := htngxml.InventoryDTO{Records: []htngxml.InventoryRecord{{RoomTypeCode: "KING"}}}
	err := rs.ValidateInventory(context.Background(), 99, dto)
	require.Error(t, err)
}

func TestValidateRatesAcceptsKnownPlan(t *testing.T) {
	rs := NewRuleSet(newFakePMS(), 0, 0)
	dto := htngxml.RatesDTO{Plans: []htngxml.RatePlan{{Code: "BAR", RoomTypeCode: "KING"}}}
	require.NoError(t, rs.ValidateRates(context.Background(), 1, dto))
}

func TestValidateRatesRejectsUnknownPlan(t *testing.T) {
	rs := NewRuleSet(newFakePMS(), 0, 0)
	dto := htngxml.RatesDTO{Plans: []htngxml.RatePlan{{Code: "NOPE"}}}
	err := rs.ValidateRates(context.Background(), 1, dto)
	require.Error(t, err)
}

func TestRuleCapBoundsCollectedViolations(t *testing.T) {
	rs := NewRuleSet(newFakePMS(), 1, 0)
	dto := htngxml.InventoryDTO{
		Records: []htngxml.InventoryRecord{
			{RoomTypeCode: "A"},
			{RoomTypeCode: "B"},
			{RoomTypeCode: "C"},
		},
	}
	err := rs.ValidateInventory(context.Background(), 1, dto)
	require.Error(t, err)
	assert.Len(t, strings.Split(err.Error(), "\n"), 1, "cap=1 should collect exactly one violation")
}

func TestRoomTypeLookupIsCached(t *testing.T) {
	pms := newFakePMS()
	rs := NewRuleSet(pms, 0, time.Hour)
	dto := htngxml.InventoryDTO{Records: []htngxml.InventoryRecord{{RoomTypeCode: "KING"}}}
	require.NoError(t, rs.ValidateInventory(context.Background(), 1, dto))
	pms.roomTypes["1/KING"] = false // mutate backing store; cached result should still apply
	require.NoError(t, rs.ValidateInventory(context.Background(), 1, dto))
}
