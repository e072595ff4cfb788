package inboundwork

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"htngsync/internal/eventbus"
	"htngsync/internal/htngxml"
	"htngsync/internal/inbound"
	"htngsync/internal/model"
	"htngsync/internal/repository"
)

type fakePMS struct {
	applied []repository.ReservationOperation
}

func (f *fakePMS) PropertyExists(context.Context, int64) (bool, error) { return true, nil }
func (f *fakePMS) RoomTypeExistsForProperty(context.Context, int64, string) (bool, error) {
	return true, nil
}
func (f *fakePMS) RatePlanExistsForProperty(context.Context, int64, string) (bool, error) {
	return true, nil
}

func (f *fakePMS) ApplyInboundReservation(_ context.Context, op repository.ReservationOperation, _ htngxml.ReservationDTO) (repository.ReservationApplyResult, error) {
	f.applied = append(f.applied, op)
	return repository.ReservationApplyResult{Applied: true, PMSReference: "PMS-1"}, nil
}

func (f *fakePMS) IterateChangedInventory(context.Context, int64, time.Time) (<-chan repository.ChangedInventoryRecord, <-chan error) {
	ch := make(chan repository.ChangedInventoryRecord)
	errs := make(chan error)
	close(ch)
	close(errs)
	return ch, errs
}

func (f *fakePMS) IterateChangedRates(context.Context, int64, time.Time) (<-chan repository.ChangedRateRecord, <-chan error) {
	ch := make(chan repository.ChangedRateRecord)
	errs := make(chan error)
	close(ch)
	close(errs)
	return ch, errs
}

func (f *fakePMS) IterateChangedRestrictions(context.Context, int64, time.Time) (<-chan repository.ChangedRestrictionRecord, <-chan error) {
	ch := make(chan repository.ChangedRestrictionRecord)
	errs := make(chan error)
	close(ch)
	close(errs)
	return ch, errs
}

func reservationBody(resStatus string) []byte {
	return []byte(`<OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05">
  <HotelReservations>
    <HotelReservation ResStatus="` + resStatus + `">
      <UniqueID ID="RES-1"/>
      <RoomStays>
        <RoomStay>
          <RoomTypes><RoomType RoomTypeCode="KING"/></RoomTypes>
          <TimeSpan Start="2025-06-01" End="2025-06-03"/>
        </RoomStay>
      </RoomStays>
      <ResGuests>
        <ResGuest><Customer><PersonName><GivenName>Jane</GivenName><Surname>Doe</Surname></PersonName></Customer></ResGuest>
      </ResGuests>
      <POS><Source RequestorID="001234"/></POS>
    </HotelReservation>
  </HotelReservations>
</OTA_HotelResNotifRQ>`)
}

func TestProcessor_ReservationCancel_AppliesToPMS(t *testing.T) {
	pms := &fakePMS{}
	bus := eventbus.Connect("")
	p := NewProcessor(pms, bus, 4)
	p.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	p.process(context.Background(), inbound.Job{
		Kind:       model.KindReservation,
		Operation:  inbound.OpCancel,
		PropertyID: 1,
		HotelCode:  "HTL1",
		MessageID:  "IN_20250601_120000_aaaaaa",
		BodyXML:    reservationBody("Cancel"),
	})

	require.Len(t, pms.applied, 1)
	require.Equal(t, repository.ReservationOpCancel, pms.applied[0])
}

func TestProcessor_EnqueueThenDrain(t *testing.T) {
	pms := &fakePMS{}
	bus := eventbus.Connect("")
	p := NewProcessor(pms, bus, 4)
	p.Start(context.Background(), 1)
	defer p.Stop()

	err := p.EnqueueInbound(context.Background(), inbound.Job{
		Kind:       model.KindReservation,
		Operation:  inbound.OpNew,
		PropertyID: 1,
		HotelCode:  "HTL1",
		MessageID:  "IN_20250601_120000_bbbbbb",
		BodyXML:    reservationBody("Commit"),
	})
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for len(pms.applied) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for worker to drain job")
		case <-time.After(time.Millisecond):
		}
	}
}
