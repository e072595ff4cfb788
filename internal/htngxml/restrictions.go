package htngxml

import (
	"encoding/xml"
	"fmt"
	"time"

	"htngsync/internal/envelope"
	"htngsync/internal/htngerr"
)

// RestrictionType is the closed set of length-of-stay and stop-sell
// restriction categories carried by OTA_HotelAvailNotifRQ.
type RestrictionType string

const (
	RestrictionOpen   RestrictionType = "Open"
	RestrictionCTA    RestrictionType = "CTA" // closed to arrival
	RestrictionCTD    RestrictionType = "CTD" // closed to departure
	RestrictionMaster RestrictionType = "Master"
	RestrictionMinLOS RestrictionType = "MinLOS"
	RestrictionMaxLOS RestrictionType = "MaxLOS"
)

var validRestrictionTypes = map[RestrictionType]bool{
	RestrictionOpen:   true,
	RestrictionCTA:    true,
	RestrictionCTD:    true,
	RestrictionMaster: true,
	RestrictionMinLOS: true,
	RestrictionMaxLOS: true,
}

// RestrictionRecord is one date-range restriction statement, scoped to a room
// type and optionally a specific rate plan.
type RestrictionRecord struct {
	RoomTypeCode string
	RatePlanCode string
	Start, End   time.Time
	Type         RestrictionType
	LOS          int // meaningful only for MinLOS/MaxLOS
}

// RestrictionsDTO is the canonical domain representation of a restrictions
// (availability/length-of-stay) update.
type RestrictionsDTO struct {
	HotelCode string
	Records   []RestrictionRecord
}

type lengthOfStayWire struct {
	Time int `xml:"Time,attr"`
}

type restrictionWire struct {
	Start             string            `xml:"Start,attr"`
	End               string            `xml:"End,attr"`
	RoomTypeCode      string            `xml:"InvTypeCode,attr,omitempty"`
	RatePlanCode      string            `xml:"RatePlanCode,attr,omitempty"`
	RestrictionStatus string            `xml:"RestrictionStatus,attr"`
	LengthsOfStay     *lengthOfStayWire `xml:"LengthsOfStay>LengthOfStay,omitempty"`
}

type availStatusMessagesWire struct {
	HotelCode string            `xml:"HotelCode,attr"`
	Messages  []restrictionWire `xml:"AvailStatusMessage"`
}

type availNotifRQ struct {
	XMLName  xml.Name                `xml:"OTA_HotelAvailNotifRQ"`
	XMLNS    string                  `xml:"xmlns,attr"`
	Messages availStatusMessagesWire `xml:"AvailStatusMessages"`
}

// BuildRestrictions validates dto against the restriction rules
// (closed type set, LOS bounds, shared date-range bound) and serializes it to
// an OTA_HotelAvailNotifRQ body.
func BuildRestrictions(dto RestrictionsDTO, hdr HeaderContext) ([]byte, error) {
	v := &validationErrors{}
	now := hdr.now()

	if len(dto.Records) == 0 {
		v.add("restrictions: at least one record is required")
	}

	wire := availNotifRQ{XMLNS: envelope.NamespaceOTA, Messages: availStatusMessagesWire{HotelCode: hdr.HotelCode}}

	for i, rec := range dto.Records {
		label := fmt.Sprintf("restriction record %d", i)
		checkDateRange(v, label, rec.Start, rec.End, now)
		if !validRestrictionTypes[rec.Type] {
			v.add("%s: unknown restriction type %q", label, rec.Type)
		}
		if rec.Type == RestrictionMinLOS || rec.Type == RestrictionMaxLOS {
			if rec.LOS < 1 || rec.LOS > 30 {
				v.add("%s: length of stay %d out of range [1,30]", label, rec.LOS)
			}
		}

		rw := restrictionWire{
			Start:             rec.Start.Format(DateLayout),
			End:               rec.End.Format(DateLayout),
			RoomTypeCode:      rec.RoomTypeCode,
			RatePlanCode:      rec.RatePlanCode,
			RestrictionStatus: string(rec.Type),
		}
		if rec.Type == RestrictionMinLOS || rec.Type == RestrictionMaxLOS {
			rw.LengthsOfStay = &lengthOfStayWire{Time: rec.LOS}
		}
		wire.Messages.Messages = append(wire.Messages.Messages, rw)
	}

	if err := v.err("VAL_RESTRICTIONS"); err != nil {
		return nil, err
	}

	out, err := xml.Marshal(&wire)
	if err != nil {
		return nil, htngerr.New(htngerr.KindSOAPXML, "XML_BUILD_ERROR", "failed to marshal restrictions XML: "+err.Error(), err)
	}
	return out, nil
}

// ParseRestrictions parses an OTA_HotelAvailNotifRQ body into a RestrictionsDTO.
func ParseRestrictions(body []byte) (RestrictionsDTO, error) {
	var wire availNotifRQ
	if err := xml.Unmarshal(body, &wire); err != nil {
		return RestrictionsDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "failed to parse restrictions XML: "+err.Error(), err)
	}

	dto := RestrictionsDTO{HotelCode: wire.Messages.HotelCode}
	for _, rw := range wire.Messages.Messages {
		start, err := time.Parse(DateLayout, rw.Start)
		if err != nil {
			return RestrictionsDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid start date: "+err.Error(), err)
		}
		end, err := time.Parse(DateLayout, rw.End)
		if err != nil {
			return RestrictionsDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid end date: "+err.Error(), err)
		}
		rec := RestrictionRecord{
			RoomTypeCode: rw.RoomTypeCode,
			RatePlanCode: rw.RatePlanCode,
			Start:        start,
			End:          end,
			Type:         RestrictionType(rw.RestrictionStatus),
		}
		if rw.LengthsOfStay != nil {
			rec.LOS = rw.LengthsOfStay.Time
		}
		dto.Records = append(dto.Records, rec)
	}
	return dto, nil
}
