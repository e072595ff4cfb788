package htngxml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedHdr() HeaderContext {
	return HeaderContext{
		HotelCode: "12345",
		Now:       func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestInventoryNotCalculatedRoundTrip(t *testing.T) {
	dto := InventoryDTO{
		HotelCode: "12345",
		Mode:      InventoryNotCalculated,
		Records: []InventoryRecord{
			{
				RoomTypeCode: "KING",
				Start:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				End:          time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
				Counts:       []InventoryCount{{CountType: CountTypeAvailable, Count: 12}},
			},
		},
	}
	out, err := BuildInventory(dto, fixedHdr())
	require.NoError(t, err)
	assert.Contains(t, string(out), "OTA_HotelInvCountNotifRQ")

	parsed, err := ParseInventory(out)
	require.NoError(t, err)
	assert.Equal(t, dto.HotelCode, parsed.HotelCode)
	require.Len(t, parsed.Records, 1)
	assert.Equal(t, "KING", parsed.Records[0].RoomTypeCode)
	assert.Equal(t, InventoryNotCalculated, parsed.Mode)
}

func TestInventoryCalculatedRoundTrip(t *testing.T) {
	dto := InventoryDTO{
		HotelCode: "12345",
		Mode:      InventoryCalculated,
		Records: []InventoryRecord{
			{
				RoomTypeCode: "",
				Start:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				End:          time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
				Counts: []InventoryCount{
					{CountType: CountTypePhysical, Count: 50},
					{CountType: CountTypeDefiniteSold, Count: 30},
					{CountType: CountTypeTentativeSold, Count: 5},
				},
			},
		},
	}
	out, err := BuildInventory(dto, fixedHdr())
	require.NoError(t, err)
	parsed, err := ParseInventory(out)
	require.NoError(t, err)
	assert.Equal(t, InventoryCalculated, parsed.Mode)
	require.Len(t, parsed.Records, 1)
	assert.Len(t, parsed.Records[0].Counts, 3)
}

func TestInventoryNotCalculatedRejectsOtherCountTypes(t *testing.T) {
	dto := InventoryDTO{
		HotelCode: "12345",
		Mode:      InventoryNotCalculated,
		Records: []InventoryRecord{
			{
				Start:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				End:    time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
				Counts: []InventoryCount{{CountType: CountTypeAvailable, Count: 5}, {CountType: CountTypePhysical, Count: 10}},
			},
		},
	}
	_, err := BuildInventory(dto, fixedHdr())
	require.Error(t, err, "not-calculated inventory must not mix CountType=2 with other types")
}

func TestInventoryCalculatedRequiresBothSoldCountTypes(t *testing.T) {
	dto := InventoryDTO{
		HotelCode: "12345",
		Mode:      InventoryCalculated,
		Records: []InventoryRecord{
			{
				Start:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				End:    time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
				Counts: []InventoryCount{{CountType: CountTypeDefiniteSold, Count: 10}},
			},
		},
	}
	_, err := BuildInventory(dto, fixedHdr())
	require.Error(t, err, "calculated record missing CountType=5 must fail")
	assert.Contains(t, err.Error(), "CountType=4 and CountType=5")
}

func TestInventoryDateRangeRejectsExcessiveSpan(t *testing.T) {
	dto := InventoryDTO{
		HotelCode: "12345",
		Mode:      InventoryNotCalculated,
		Records: []InventoryRecord{
			{
				Start:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				End:    time.Date(2027, 7, 1, 0, 0, 0, 0, time.UTC),
				Counts: []InventoryCount{{CountType: CountTypeAvailable, Count: 5}},
			},
		},
	}
	_, err := BuildInventory(dto, fixedHdr())
	require.Error(t, err, "a date range spanning more than 365 days must fail")
}
