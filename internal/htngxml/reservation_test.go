package htngxml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReservationDTO() ReservationDTO {
	return ReservationDTO{
		HotelCode:     "12345",
		ReservationID: "RES-001",
		Status:        ReservationConfirmed,
		Guests:        []GuestName{{First: "Jane", Last: "Doe"}},
		RoomStays: []RoomStay{
			{
				RoomTypeCode: "KING",
				Start:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				End:          time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC),
				Nights:       3,
			},
		},
		SpecialRequests: []string{"High floor"},
	}
}

func TestReservationRoundTrip(t *testing.T) {
	out, err := BuildReservation(validReservationDTO(), fixedHdr())
	require.NoError(t, err)
	assert.Contains(t, string(out), "OTA_HotelResNotifRQ")

	parsed, err := ParseReservation(out)
	require.NoError(t, err)
	assert.Equal(t, "RES-001", parsed.ReservationID)
	require.Len(t, parsed.Guests, 1)
	assert.Equal(t, "Jane", parsed.Guests[0].First)
	assert.Equal(t, "Doe", parsed.Guests[0].Last)
	require.Len(t, parsed.RoomStays, 1)
	assert.Equal(t, "KING", parsed.RoomStays[0].RoomTypeCode)
	require.Len(t, parsed.SpecialRequests, 1)
	assert.Equal(t, "High floor", parsed.SpecialRequests[0])
}

func TestReservationRequiresGuestNames(t *testing.T) {
	dto := validReservationDTO()
	dto.Guests = []GuestName{{First: "", Last: "Doe"}}
	_, err := BuildReservation(dto, fixedHdr())
	require.Error(t, err, "a guest without a first name must fail")
}

func TestReservationRequiresAtLeastOneRoomStay(t *testing.T) {
	dto := validReservationDTO()
	dto.RoomStays = nil
	_, err := BuildReservation(dto, fixedHdr())
	require.Error(t, err)
}

func TestReservationRejectsExcessiveNights(t *testing.T) {
	dto := validReservationDTO()
	dto.RoomStays[0].Nights = 400
	_, err := BuildReservation(dto, fixedHdr())
	require.Error(t, err, "nights exceeding 365 must fail")
}

func TestReservationRejectsTooManySpecialRequests(t *testing.T) {
	dto := validReservationDTO()
	for i := 0; i < maxSpecialRequests; i++ {
		dto.SpecialRequests = append(dto.SpecialRequests, "extra")
	}
	_, err := BuildReservation(dto, fixedHdr())
	require.Error(t, err, "exceeding the special-request cap must fail")
}
