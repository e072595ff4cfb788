package htngxml

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGroupBlockDTO() GroupBlockDTO {
	return GroupBlockDTO{
		HotelCode:    "12345",
		BlockCode:    "SUMMIT25",
		BlockName:    "Annual Summit",
		RoomCount:    40,
		PickupStatus: PickupStatusPartial,
		CutoffDays:   14,
		Start:        time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestGroupBlockRoundTrip(t *testing.T) {
	out, err := BuildGroupBlock(validGroupBlockDTO(), fixedHdr())
	require.NoError(t, err)
	assert.Contains(t, string(out), "OTA_HotelInvBlockNotifRQ")

	parsed, err := ParseGroupBlock(out)
	require.NoError(t, err)
	assert.Equal(t, "SUMMIT25", parsed.BlockCode)
	assert.Equal(t, 40, parsed.RoomCount)
	assert.Equal(t, PickupStatusPartial, parsed.PickupStatus)
}

func TestGroupBlockRejectsOversizedCode(t *testing.T) {
	dto := validGroupBlockDTO()
	dto.BlockCode = strings.Repeat("X", 21)
	_, err := BuildGroupBlock(dto, fixedHdr())
	require.Error(t, err, "block code exceeding 20 characters must fail")
}

func TestGroupBlockRejectsRoomCountOutOfRange(t *testing.T) {
	dto := validGroupBlockDTO()
	dto.RoomCount = 0
	_, err := BuildGroupBlock(dto, fixedHdr())
	require.Error(t, err)
}

func TestGroupBlockRejectsUnknownPickupStatus(t *testing.T) {
	dto := validGroupBlockDTO()
	dto.PickupStatus = PickupStatus(9)
	_, err := BuildGroupBlock(dto, fixedHdr())
	require.Error(t, err)
}

func TestGroupBlockRejectsExcessiveCutoffDays(t *testing.T) {
	dto := validGroupBlockDTO()
	dto.CutoffDays = 400
	_, err := BuildGroupBlock(dto, fixedHdr())
	require.Error(t, err, "cutoff days exceeding 365 must fail")
}
