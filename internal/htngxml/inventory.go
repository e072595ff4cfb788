package htngxml

import (
	"encoding/xml"
	"fmt"
	"time"

	"htngsync/internal/envelope"
	"htngsync/internal/htngerr"
)

// InventoryMode distinguishes the channel's two inventory accounting modes.
type InventoryMode string

const (
	InventoryNotCalculated InventoryMode = "not_calculated"
	InventoryCalculated    InventoryMode = "calculated"
)

// Count-type values from the HTNG/OTA inventory count vocabulary.
const (
	CountTypeAvailable      = 2
	CountTypePhysical       = 1
	CountTypeOutOfOrder     = 6
	CountTypeOversell       = 99
	CountTypeDefiniteSold   = 4
	CountTypeTentativeSold  = 5
)

// InventoryCount is one CountType/Count pair within an inventory record.
type InventoryCount struct {
	CountType int
	Count     int
}

// InventoryRecord is one date-range, room-type-or-property-level inventory
// statement.
type InventoryRecord struct {
	RoomTypeCode string // empty for property-level records
	Start, End   time.Time
	Counts       []InventoryCount
}

// InventoryDTO is the canonical domain representation built/parsed by this file.
type InventoryDTO struct {
	HotelCode string
	Mode      InventoryMode
	Records   []InventoryRecord
}

// --- wire shapes -----------------------------------------------------------

type invCountWire struct {
	CountType int `xml:"CountType,attr"`
	Count     int `xml:"Count,attr"`
}

type invStatusAppRuleWire struct {
	Start        string `xml:"Start,attr"`
	End          string `xml:"End,attr"`
	InvTypeCode  string `xml:"InvTypeCode,attr,omitempty"`
}

type invWire struct {
	StatusApplicationControl invStatusAppRuleWire `xml:"StatusApplicationControl"`
	InvCounts                []invCountWire       `xml:"InvCounts>InvCount"`
}

type invCountsWire struct {
	XMLName xml.Name  `xml:"Inventories"`
	HotelCode string  `xml:"HotelCode,attr"`
	Inventory []invWire `xml:"Inventory"`
}

type invCountNotifRQ struct {
	XMLName   xml.Name      `xml:"OTA_HotelInvCountNotifRQ"`
	XMLNS     string        `xml:"xmlns,attr"`
	Inventories invCountsWire `xml:"Inventories"`
}

// BuildInventory validates dto against the count-type rules and
// date-range bounds, then serializes it to an OTA_HotelInvCountNotifRQ body.
func BuildInventory(dto InventoryDTO, hdr HeaderContext) ([]byte, error) {
	v := &validationErrors{}
	now := hdr.now()

	if len(dto.Records) == 0 {
		v.add("inventory: at least one record is required")
	}

	wire := invCountNotifRQ{
		XMLNS: envelope.NamespaceOTA,
		Inventories: invCountsWire{
			HotelCode: hdr.HotelCode,
		},
	}

	for i, rec := range dto.Records {
		label := fmt.Sprintf("inventory record %d", i)
		checkDateRange(v, label, rec.Start, rec.End, now)
		validateInventoryCounts(v, label, dto.Mode, rec.Counts)
		for _, c := range rec.Counts {
			if c.Count < 0 || c.Count > 9999 {
				v.add("%s: count %d out of range [0,9999]", label, c.Count)
			}
		}

		iw := invWire{
			StatusApplicationControl: invStatusAppRuleWire{
				Start:       rec.Start.Format(DateLayout),
				End:         rec.End.Format(DateLayout),
				InvTypeCode: rec.RoomTypeCode,
			},
		}
		for _, c := range rec.Counts {
			iw.InvCounts = append(iw.InvCounts, invCountWire{CountType: c.CountType, Count: c.Count})
		}
		wire.Inventories.Inventory = append(wire.Inventories.Inventory, iw)
	}

	if err := v.err("VAL_INVENTORY"); err != nil {
		return nil, err
	}

	out, err := xml.Marshal(&wire)
	if err != nil {
		return nil, htngerr.New(htngerr.KindSOAPXML, "XML_BUILD_ERROR", "failed to marshal inventory XML: "+err.Error(), err)
	}
	return out, nil
}

// validateInventoryCounts enforces the not-calculated/calculated count-type
// rules.
func validateInventoryCounts(v *validationErrors, label string, mode InventoryMode, counts []InventoryCount) {
	seen := map[int]bool{}
	for _, c := range counts {
		seen[c.CountType] = true
	}

	switch mode {
	case InventoryNotCalculated:
		if !seen[CountTypeAvailable] {
			v.add("%s: not-calculated inventory requires CountType=2", label)
		}
		for ct := range seen {
			if ct != CountTypeAvailable {
				v.add("%s: not-calculated inventory forbids CountType=%d alongside CountType=2", label, ct)
			}
		}
	case InventoryCalculated:
		if seen[CountTypeAvailable] {
			v.add("%s: calculated inventory forbids CountType=2", label)
		}
		if !seen[CountTypeDefiniteSold] || !seen[CountTypeTentativeSold] {
			v.add("%s: calculated inventory requires both CountType=4 and CountType=5", label)
		}
	default:
		v.add("%s: unknown inventory mode %q", label, mode)
	}
}

// ParseInventory parses an OTA_HotelInvCountNotifRQ body into an InventoryDTO.
// Mode is inferred from the count types: calculated when any record carries
// both CountType 4 and 5, otherwise not-calculated.
func ParseInventory(body []byte) (InventoryDTO, error) {
	var wire invCountNotifRQ
	if err := xml.Unmarshal(body, &wire); err != nil {
		return InventoryDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "failed to parse inventory XML: "+err.Error(), err)
	}

	dto := InventoryDTO{HotelCode: wire.Inventories.HotelCode}
	for _, iw := range wire.Inventories.Inventory {
		start, err := time.Parse(DateLayout, iw.StatusApplicationControl.Start)
		if err != nil {
			return InventoryDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid start date: "+err.Error(), err)
		}
		end, err := time.Parse(DateLayout, iw.StatusApplicationControl.End)
		if err != nil {
			return InventoryDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid end date: "+err.Error(), err)
		}
		rec := InventoryRecord{
			RoomTypeCode: iw.StatusApplicationControl.InvTypeCode,
			Start:        start,
			End:          end,
		}
		for _, c := range iw.InvCounts {
			rec.Counts = append(rec.Counts, InventoryCount{CountType: c.CountType, Count: c.Count})
		}
		if seenCountType(rec.Counts, CountTypeDefiniteSold) && seenCountType(rec.Counts, CountTypeTentativeSold) {
			dto.Mode = InventoryCalculated
		} else if dto.Mode == "" {
			dto.Mode = InventoryNotCalculated
		}
		dto.Records = append(dto.Records, rec)
	}
	return dto, nil
}

func seenCountType(counts []InventoryCount, ct int) bool {
	for _, c := range counts {
		if c.CountType == ct {
			return true
		}
	}
	return false
}
