package outbound

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"htngsync/internal/htngxml"
	"htngsync/internal/repository"
)

type fakeInventoryPMS struct {
	records []repository.ChangedInventoryRecord
}

func (f *fakeInventoryPMS) PropertyExists(context.Context, int64) (bool, error) { return true, nil }
func (f *fakeInventoryPMS) RoomTypeExistsForProperty(context.Context, int64, string) (bool, error) {
	return true, nil
}
func (f *fakeInventoryPMS) RatePlanExistsForProperty(context.Context, int64, string) (bool, error) {
	return true, nil
}
func (f *fakeInventoryPMS) ApplyInboundReservation(context.Context, repository.ReservationOperation, htngxml.ReservationDTO) (repository.ReservationApplyResult, error) {
	return repository.ReservationApplyResult{}, nil
}

func (f *fakeInventoryPMS) IterateChangedInventory(context.Context, int64, time.Time) (<-chan repository.ChangedInventoryRecord, <-chan error) {
	ch := make(chan repository.ChangedInventoryRecord, len(f.records))
	errs := make(chan error, 1)
	for _, r := range f.records {
		ch <- r
	}
	close(ch)
	errs <- nil
	close(errs)
	return ch, errs
}

func (f *fakeInventoryPMS) IterateChangedRates(context.Context, int64, time.Time) (<-chan repository.ChangedRateRecord, <-chan error) {
	ch := make(chan repository.ChangedRateRecord)
	errs := make(chan error, 1)
	close(ch)
	errs <- nil
	close(errs)
	return ch, errs
}

func (f *fakeInventoryPMS) IterateChangedRestrictions(context.Context, int64, time.Time) (<-chan repository.ChangedRestrictionRecord, <-chan error) {
	ch := make(chan repository.ChangedRestrictionRecord)
	errs := make(chan error, 1)
	close(ch)
	errs <- nil
	close(errs)
	return ch, errs
}

func TestProducer_ProduceInventory_EnqueuesOneJobPerBatch(t *testing.T) {
	pms := &fakeInventoryPMS{records: []repository.ChangedInventoryRecord{
		{RoomTypeCode: "KING", Mode: htngxml.InventoryNotCalculated, Record: htngxml.InventoryRecord{RoomTypeCode: "KING", Counts: []htngxml.InventoryCount{{CountType: htngxml.CountTypeAvailable, Count: 5}}}},
		{RoomTypeCode: "KING", Mode: htngxml.InventoryNotCalculated, Record: htngxml.InventoryRecord{RoomTypeCode: "KING", Counts: []htngxml.InventoryCount{{CountType: htngxml.CountTypeAvailable, Count: 5}}}},
	}}

	ch := &fakeChannel{body: successResponseXML("placeholder")}
	d, _ := newTestDispatcher(ch)
	d.Start(context.Background())
	defer d.Stop()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := &Producer{PMS: pms, Dispatcher: d, Now: func() time.Time { return now }}

	require.NoError(t, p.ProduceInventory(context.Background(), 1, "HTL1", time.Time{}, htngxml.SyncDelta, 0))
}
