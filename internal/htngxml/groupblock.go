package htngxml

import (
	"encoding/xml"
	"time"

	"htngsync/internal/envelope"
	"htngsync/internal/htngerr"
)

// PickupStatus mirrors the OTA group block pickup tracking vocabulary.
type PickupStatus int

const (
	PickupStatusOpen      PickupStatus = 1
	PickupStatusPartial   PickupStatus = 2
	PickupStatusFullyPicked PickupStatus = 3
)

// GroupBlockDTO is the canonical domain representation of a group/block
// allotment.
type GroupBlockDTO struct {
	HotelCode    string
	BlockCode    string
	BlockName    string
	RoomCount    int
	PickupStatus PickupStatus
	CutoffDays   int
	Start, End   time.Time
}

type groupBlockDateRangeWire struct {
	Start string `xml:"Start,attr"`
	End   string `xml:"End,attr"`
}

type invBlockWire struct {
	HotelCode    string                  `xml:"HotelCode,attr"`
	BlockCode    string                  `xml:"InvBlockCode,attr"`
	RoomCount    int                     `xml:"RoomCount,attr"`
	PickupStatus int                     `xml:"PickupStatus,attr"`
	CutoffDays   int                     `xml:"CutoffDays,attr"`
	BlockName    string                  `xml:"InvBlockName"`
	DateRange    groupBlockDateRangeWire `xml:"DateRange"`
}

type groupBlockWire struct {
	XMLName  xml.Name     `xml:"OTA_HotelInvBlockNotifRQ"`
	XMLNS    string       `xml:"xmlns,attr"`
	InvBlock invBlockWire `xml:"InvBlock"`
}

// BuildGroupBlock validates dto against the group block rules
// (code/name length caps, room count, pickup status, and cutoff bounds) and
// serializes it to an OTA_HotelInvBlockNotifRQ body.
func BuildGroupBlock(dto GroupBlockDTO, hdr HeaderContext) ([]byte, error) {
	v := &validationErrors{}

	if len(dto.BlockCode) == 0 || len(dto.BlockCode) > 20 {
		v.add("group block: block code length %d out of range [1,20]", len(dto.BlockCode))
	}
	if len(dto.BlockName) > 100 {
		v.add("group block: block name length %d exceeds maximum of 100", len(dto.BlockName))
	}
	if dto.RoomCount < 1 || dto.RoomCount > 1000 {
		v.add("group block: room count %d out of range [1,1000]", dto.RoomCount)
	}
	switch dto.PickupStatus {
	case PickupStatusOpen, PickupStatusPartial, PickupStatusFullyPicked:
	default:
		v.add("group block: unknown pickup status %d", dto.PickupStatus)
	}
	if dto.CutoffDays < 0 || dto.CutoffDays > 365 {
		v.add("group block: cutoff days %d out of range [0,365]", dto.CutoffDays)
	}
	if dto.End.Before(dto.Start) {
		v.add("group block: end date %s is before start date %s", dto.End.Format(DateLayout), dto.Start.Format(DateLayout))
	}

	if err := v.err("VAL_GROUP_BLOCK"); err != nil {
		return nil, err
	}

	wire := groupBlockWire{
		XMLNS: envelope.NamespaceOTA,
		InvBlock: invBlockWire{
			HotelCode:    hdr.HotelCode,
			BlockCode:    dto.BlockCode,
			BlockName:    dto.BlockName,
			RoomCount:    dto.RoomCount,
			PickupStatus: int(dto.PickupStatus),
			CutoffDays:   dto.CutoffDays,
			DateRange: groupBlockDateRangeWire{
				Start: dto.Start.Format(DateLayout),
				End:   dto.End.Format(DateLayout),
			},
		},
	}

	out, err := xml.Marshal(&wire)
	if err != nil {
		return nil, htngerr.New(htngerr.KindSOAPXML, "XML_BUILD_ERROR", "failed to marshal group block XML: "+err.Error(), err)
	}
	return out, nil
}

// ParseGroupBlock parses an OTA_HotelInvBlockNotifRQ body into a GroupBlockDTO.
func ParseGroupBlock(body []byte) (GroupBlockDTO, error) {
	var wire groupBlockWire
	if err := xml.Unmarshal(body, &wire); err != nil {
		return GroupBlockDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "failed to parse group block XML: "+err.Error(), err)
	}

	start, err := time.Parse(DateLayout, wire.InvBlock.DateRange.Start)
	if err != nil {
		return GroupBlockDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid start date: "+err.Error(), err)
	}
	end, err := time.Parse(DateLayout, wire.InvBlock.DateRange.End)
	if err != nil {
		return GroupBlockDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid end date: "+err.Error(), err)
	}

	return GroupBlockDTO{
		HotelCode:    wire.InvBlock.HotelCode,
		BlockCode:    wire.InvBlock.BlockCode,
		BlockName:    wire.InvBlock.BlockName,
		RoomCount:    wire.InvBlock.RoomCount,
		PickupStatus: PickupStatus(wire.InvBlock.PickupStatus),
		CutoffDays:   wire.InvBlock.CutoffDays,
		Start:        start,
		End:          end,
	}, nil
}
