package htngxml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRatesDTO() RatesDTO {
	return RatesDTO{
		HotelCode: "12345",
		Mode:      RatesUpdate,
		Sync:      SyncDelta,
		Plans: []RatePlan{
			{
				Code:         "BAR",
				RoomTypeCode: "KING",
				Records: []RateRecord{
					{
						Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
						End:   time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
						Amounts: []RateAmount{
							{GuestCount: 1, Amount: 100.00},
							{GuestCount: 2, Amount: 120.50},
						},
					},
				},
			},
		},
	}
}

func TestRatesRoundTrip(t *testing.T) {
	out, err := BuildRates(validRatesDTO(), fixedHdr())
	require.NoError(t, err)
	assert.Contains(t, string(out), "OTA_HotelRateAmountNotifRQ")

	parsed, err := ParseRates(out)
	require.NoError(t, err)
	assert.Equal(t, "12345", parsed.HotelCode)
	require.Len(t, parsed.Plans, 1)
	assert.Equal(t, "BAR", parsed.Plans[0].Code)
	require.Len(t, parsed.Plans[0].Records, 1)
	assert.Len(t, parsed.Plans[0].Records[0].Amounts, 2)
}

func TestRatesRequiresFirstAndSecondGuestAmounts(t *testing.T) {
	dto := validRatesDTO()
	dto.Plans[0].Records[0].Amounts = []RateAmount{{GuestCount: 1, Amount: 100.00}}
	_, err := BuildRates(dto, fixedHdr())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2nd guest amount is required")
}

func TestRatesRejectsAmountOutOfRange(t *testing.T) {
	dto := validRatesDTO()
	dto.Plans[0].Records[0].Amounts = []RateAmount{
		{GuestCount: 1, Amount: 0},
		{GuestCount: 2, Amount: 100000.00},
	}
	_, err := BuildRates(dto, fixedHdr())
	require.Error(t, err, "amounts outside (0.00, 99999.99] must fail")
}

func TestRatesRejectsInvalidPlanCode(t *testing.T) {
	dto := validRatesDTO()
	dto.Plans[0].Code = "bad plan code with spaces!"
	_, err := BuildRates(dto, fixedHdr())
	require.Error(t, err)
}

func TestRatesRejectsTooManyPlans(t *testing.T) {
	dto := validRatesDTO()
	base := dto.Plans[0]
	for i := 0; i < maxRatePlansPerEnvelope; i++ {
		p := base
		p.Code = "PLAN"
		dto.Plans = append(dto.Plans, p)
	}
	_, err := BuildRates(dto, fixedHdr())
	require.Error(t, err, "exceeding the per-envelope plan cap must fail")
}
