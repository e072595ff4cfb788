package htngxml

import (
	"encoding/xml"
	"fmt"
	"math"
	"regexp"
	"time"

	"htngsync/internal/envelope"
	"htngsync/internal/htngerr"
)

// RatesMode distinguishes the rate-plan level operation carried by the envelope.
type RatesMode string

const (
	RatesCreate         RatesMode = "create"
	RatesUpdate         RatesMode = "update"
	RatesInactivate     RatesMode = "inactivate"
	RatesRemoveRoomType RatesMode = "remove_room_types"
)

// SyncMode distinguishes a full replace from an incremental change set.
type SyncMode string

const (
	SyncDelta    SyncMode = "delta"
	SyncFullSync SyncMode = "full_sync"
)

var ratePlanCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)

const (
	maxRatePlansPerEnvelope = 50
	maxRateRecordsPerPlan   = 365
	minRateAmount           = 0.00
	maxRateAmount           = 99999.99
)

// MaxRatePlansPerEnvelope is exported so the outbound scheduler can
// chunk a change set into envelope-sized batches before calling BuildRates.
const MaxRatePlansPerEnvelope = maxRatePlansPerEnvelope

// RateAmount is the per-guest-count price within a rate record.
type RateAmount struct {
	GuestCount int
	Amount     float64 // two decimal places
}

// RateRecord is one date-range price statement within a rate plan.
type RateRecord struct {
	Start, End time.Time
	Amounts    []RateAmount
}

// RatePlan groups the date-range records belonging to one rate plan code,
// optionally scoped to a single room type.
type RatePlan struct {
	Code         string
	RoomTypeCode string
	Records      []RateRecord
}

// RatesDTO is the canonical domain representation for rate updates.
type RatesDTO struct {
	HotelCode string
	Mode      RatesMode
	Sync      SyncMode
	Plans     []RatePlan
}

type rateAmountWire struct {
	NumberOfGuests int     `xml:"NumberOfGuests,attr"`
	AmountAfterTax float64 `xml:"AmountAfterTax,attr"`
}

type rateRecordWire struct {
	Start       string          `xml:"Start,attr"`
	End         string          `xml:"End,attr"`
	BaseByGuest []rateAmountWire `xml:"BaseByGuestAmts>BaseByGuestAmt"`
}

type rateStatusAppControlWire struct {
	RatePlanCode string `xml:"RatePlanCode,attr"`
	RoomTypeCode string `xml:"InvTypeCode,attr,omitempty"`
}

type ratePlanWire struct {
	XMLName                  xml.Name                  `xml:"RateAmountMessage"`
	StatusApplicationControl rateStatusAppControlWire   `xml:"StatusApplicationControl"`
	Rates                    []rateRecordWire           `xml:"Rates>Rate"`
}

type rateAmountMessagesWire struct {
	HotelCode string         `xml:"HotelCode,attr"`
	Messages  []ratePlanWire `xml:"RateAmountMessage"`
}

type rateNotifRQ struct {
	XMLName   xml.Name               `xml:"OTA_HotelRateAmountNotifRQ"`
	XMLNS     string                 `xml:"xmlns,attr"`
	Messages  rateAmountMessagesWire `xml:"RateAmountMessages"`
}

// BuildRates validates dto against the rate rules (amount bounds,
// guest-count requirements, plan code format, and per-envelope caps) and
// serializes it to an OTA_HotelRateAmountNotifRQ body.
func BuildRates(dto RatesDTO, hdr HeaderContext) ([]byte, error) {
	v := &validationErrors{}
	now := hdr.now()

	if len(dto.Plans) == 0 {
		v.add("rates: at least one rate plan is required")
	}
	if len(dto.Plans) > maxRatePlansPerEnvelope {
		v.add("rates: %d rate plans exceeds maximum of %d per envelope", len(dto.Plans), maxRatePlansPerEnvelope)
	}

	wire := rateNotifRQ{XMLNS: envelope.NamespaceOTA, Messages: rateAmountMessagesWire{HotelCode: hdr.HotelCode}}

	for pi, plan := range dto.Plans {
		planLabel := fmt.Sprintf("rate plan %d (%s)", pi, plan.Code)
		if !ratePlanCodePattern.MatchString(plan.Code) {
			v.add("%s: rate plan code must match %s", planLabel, ratePlanCodePattern.String())
		}
		if len(plan.Records) > maxRateRecordsPerPlan {
			v.add("%s: %d records exceeds maximum of %d per plan", planLabel, len(plan.Records), maxRateRecordsPerPlan)
		}

		pw := ratePlanWire{StatusApplicationControl: rateStatusAppControlWire{RatePlanCode: plan.Code, RoomTypeCode: plan.RoomTypeCode}}
		for ri, rec := range plan.Records {
			recLabel := fmt.Sprintf("%s record %d", planLabel, ri)
			checkDateRange(v, recLabel, rec.Start, rec.End, now)
			validateRateAmounts(v, recLabel, rec.Amounts)

			rw := rateRecordWire{Start: rec.Start.Format(DateLayout), End: rec.End.Format(DateLayout)}
			for _, a := range rec.Amounts {
				rw.BaseByGuest = append(rw.BaseByGuest, rateAmountWire{NumberOfGuests: a.GuestCount, AmountAfterTax: a.Amount})
			}
			pw.Rates = append(pw.Rates, rw)
		}
		wire.Messages.Messages = append(wire.Messages.Messages, pw)
	}

	if err := v.err("VAL_RATES"); err != nil {
		return nil, err
	}

	out, err := xml.Marshal(&wire)
	if err != nil {
		return nil, htngerr.New(htngerr.KindSOAPXML, "XML_BUILD_ERROR", "failed to marshal rates XML: "+err.Error(), err)
	}
	return out, nil
}

// validateRateAmounts enforces the rate amount rules: amounts must
// fall in (0.00, 99999.99], carry exactly two decimal places, and the 1st and
// 2nd guest amounts are mandatory while 3rd/4th are optional.
func validateRateAmounts(v *validationErrors, label string, amounts []RateAmount) {
	byGuest := map[int]float64{}
	for _, a := range amounts {
		byGuest[a.GuestCount] = a.Amount
		if a.Amount <= minRateAmount || a.Amount > maxRateAmount {
			v.add("%s: amount %.2f for guest count %d out of range (0.00, %.2f]", label, a.Amount, a.GuestCount, maxRateAmount)
		}
		cents := a.Amount * 100
		if math.Abs(cents-math.Round(cents)) > 1e-6 {
			v.add("%s: amount %.4f for guest count %d must have exactly two decimal places", label, a.Amount, a.GuestCount)
		}
	}
	if _, ok := byGuest[1]; !ok {
		v.add("%s: 1st guest amount is required", label)
	}
	if _, ok := byGuest[2]; !ok {
		v.add("%s: 2nd guest amount is required", label)
	}
}

// ParseRates parses an OTA_HotelRateAmountNotifRQ body into a RatesDTO.
func ParseRates(body []byte) (RatesDTO, error) {
	var wire rateNotifRQ
	if err := xml.Unmarshal(body, &wire); err != nil {
		return RatesDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "failed to parse rates XML: "+err.Error(), err)
	}

	dto := RatesDTO{HotelCode: wire.Messages.HotelCode}
	for _, pw := range wire.Messages.Messages {
		plan := RatePlan{Code: pw.StatusApplicationControl.RatePlanCode, RoomTypeCode: pw.StatusApplicationControl.RoomTypeCode}
		for _, rw := range pw.Rates {
			start, err := time.Parse(DateLayout, rw.Start)
			if err != nil {
				return RatesDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid start date: "+err.Error(), err)
			}
			end, err := time.Parse(DateLayout, rw.End)
			if err != nil {
				return RatesDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid end date: "+err.Error(), err)
			}
			rec := RateRecord{Start: start, End: end}
			for _, a := range rw.BaseByGuest {
				rec.Amounts = append(rec.Amounts, RateAmount{GuestCount: a.NumberOfGuests, Amount: a.AmountAfterTax})
			}
			plan.Records = append(plan.Records, rec)
		}
		dto.Plans = append(dto.Plans, plan)
	}
	return dto, nil
}
