package htngxml

import (
	"encoding/xml"
	"time"

	"htngsync/internal/envelope"
	"htngsync/internal/htngerr"
)

// ReservationStatus is the reservation lifecycle state carried on the wire
// via OTA's ResStatus attribute.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "Confirmed"
	ReservationCancelled ReservationStatus = "Cancelled"
	ReservationModified  ReservationStatus = "Modify"
)

const maxSpecialRequests = 20

// GuestName is a single traveler's name.
type GuestName struct {
	First string
	Last  string
}

// RoomStay is one room/date-range segment of a reservation.
type RoomStay struct {
	RoomTypeCode string
	Start, End   time.Time
	Nights       int
}

// ReservationDTO is the canonical domain representation of a single inbound
// or outbound reservation. An envelope carries exactly one reservation.
type ReservationDTO struct {
	HotelCode        string
	ReservationID    string
	Status           ReservationStatus
	Guests           []GuestName
	RoomStays        []RoomStay
	SpecialRequests  []string
}

type resGuestNameWire struct {
	GivenName   string `xml:"GivenName"`
	Surname     string `xml:"Surname"`
}

type resProfileWire struct {
	PersonName resGuestNameWire `xml:"Customer>PersonName"`
}

type resRoomStayWire struct {
	RoomTypeCode string `xml:"RoomTypes>RoomType>RoomTypeCode,attr"`
	Start        string `xml:"TimeSpan>Start,attr"`
	End          string `xml:"TimeSpan>End,attr"`
}

type resSpecialRequestWire struct {
	Text string `xml:",chardata"`
}

type resGlobalInfoWire struct {
	SpecialRequests []resSpecialRequestWire `xml:"SpecialRequests>SpecialRequest>Text"`
}

type hotelReservationWire struct {
	ResStatus    string              `xml:"ResStatus,attr"`
	UniqueID     string              `xml:"UniqueID>ID,attr"`
	RoomStays    []resRoomStayWire   `xml:"RoomStays>RoomStay"`
	ResGuests    []resProfileWire    `xml:"ResGuests>ResGuest"`
	ResGlobalInfo resGlobalInfoWire  `xml:"ResGlobalInfo"`
}

type resNotifRQ struct {
	XMLName           xml.Name             `xml:"OTA_HotelResNotifRQ"`
	XMLNS             string               `xml:"xmlns,attr"`
	HotelCode         string               `xml:"HotelReservations>HotelReservation>POS>Source>RequestorID,attr"`
	HotelReservation  hotelReservationWire `xml:"HotelReservations>HotelReservation"`
}

// BuildReservation validates dto against the reservation rules
// (at least one guest with a name, at least one room stay, nights and
// special-request bounds) and serializes it to an OTA_HotelResNotifRQ body.
func BuildReservation(dto ReservationDTO, hdr HeaderContext) ([]byte, error) {
	v := &validationErrors{}

	if len(dto.Guests) == 0 {
		v.add("reservation: at least one guest is required")
	}
	for i, g := range dto.Guests {
		if g.First == "" || g.Last == "" {
			v.add("reservation guest %d: first and last name are both required", i)
		}
	}
	if len(dto.RoomStays) == 0 {
		v.add("reservation: at least one room stay is required")
	}
	for i, rs := range dto.RoomStays {
		if rs.Nights < 1 || rs.Nights > 365 {
			v.add("reservation room stay %d: nights %d out of range [1,365]", i, rs.Nights)
		}
	}
	if len(dto.SpecialRequests) > maxSpecialRequests {
		v.add("reservation: %d special requests exceeds maximum of %d", len(dto.SpecialRequests), maxSpecialRequests)
	}
	if dto.ReservationID == "" {
		v.add("reservation: reservation ID is required")
	}

	wire := resNotifRQ{
		XMLNS:     envelope.NamespaceOTA,
		HotelCode: hdr.HotelCode,
		HotelReservation: hotelReservationWire{
			ResStatus: string(dto.Status),
			UniqueID:  dto.ReservationID,
		},
	}
	for _, rs := range dto.RoomStays {
		wire.HotelReservation.RoomStays = append(wire.HotelReservation.RoomStays, resRoomStayWire{
			RoomTypeCode: rs.RoomTypeCode,
			Start:        rs.Start.Format(DateLayout),
			End:          rs.End.Format(DateLayout),
		})
	}
	for _, g := range dto.Guests {
		wire.HotelReservation.ResGuests = append(wire.HotelReservation.ResGuests, resProfileWire{
			PersonName: resGuestNameWire{GivenName: g.First, Surname: g.Last},
		})
	}
	for _, sr := range dto.SpecialRequests {
		wire.HotelReservation.ResGlobalInfo.SpecialRequests = append(wire.HotelReservation.ResGlobalInfo.SpecialRequests, resSpecialRequestWire{Text: sr})
	}

	if err := v.err("VAL_RESERVATION"); err != nil {
		return nil, err
	}

	out, err := xml.Marshal(&wire)
	if err != nil {
		return nil, htngerr.New(htngerr.KindSOAPXML, "XML_BUILD_ERROR", "failed to marshal reservation XML: "+err.Error(), err)
	}
	return out, nil
}

// ParseReservation parses an OTA_HotelResNotifRQ body into a ReservationDTO.
// The sub-classification between new/modify/cancel is left to
// the caller, which inspects dto.Status.
func ParseReservation(body []byte) (ReservationDTO, error) {
	var wire resNotifRQ
	if err := xml.Unmarshal(body, &wire); err != nil {
		return ReservationDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "failed to parse reservation XML: "+err.Error(), err)
	}

	dto := ReservationDTO{
		HotelCode:     wire.HotelCode,
		ReservationID: wire.HotelReservation.UniqueID,
		Status:        ReservationStatus(wire.HotelReservation.ResStatus),
	}
	for _, rs := range wire.HotelReservation.RoomStays {
		start, err := time.Parse(DateLayout, rs.Start)
		if err != nil {
			return ReservationDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid room stay start: "+err.Error(), err)
		}
		end, err := time.Parse(DateLayout, rs.End)
		if err != nil {
			return ReservationDTO{}, htngerr.New(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "invalid room stay end: "+err.Error(), err)
		}
		dto.RoomStays = append(dto.RoomStays, RoomStay{
			RoomTypeCode: rs.RoomTypeCode,
			Start:        start,
			End:          end,
			Nights:       nightsBetween(start, end),
		})
	}
	for _, g := range wire.HotelReservation.ResGuests {
		dto.Guests = append(dto.Guests, GuestName{First: g.PersonName.GivenName, Last: g.PersonName.Surname})
	}
	for _, sr := range wire.HotelReservation.ResGlobalInfo.SpecialRequests {
		dto.SpecialRequests = append(dto.SpecialRequests, sr.Text)
	}
	return dto, nil
}

func nightsBetween(start, end time.Time) int {
	d := end.Sub(start)
	n := int(d.Hours() / 24)
	if n < 1 {
		return 1
	}
	return n
}
