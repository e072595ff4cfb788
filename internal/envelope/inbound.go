package envelope

import (
	"encoding/xml"
	"fmt"
)

// inboundSecurity captures only the UsernameToken the core needs to
// authenticate an inbound request; unlike the
// outbound wsseSecurity type it is decode-only and tolerant of missing
// namespace prefixes.
type inboundSecurity struct {
	UsernameToken struct {
		Username string `xml:"Username"`
		Password string `xml:"Password"`
	} `xml:"UsernameToken"`
}

type inboundHeader struct {
	Security  inboundSecurity `xml:"Security"`
	MessageID string          `xml:"MessageID"`
}

type inboundBody struct {
	Content []byte `xml:",innerxml"`
}

type inboundEnvelope struct {
	XMLName xml.Name      `xml:"Envelope"`
	Header  inboundHeader `xml:"Header"`
	Body    inboundBody   `xml:"Body"`
}

// InboundRequest is the result of parsing an incoming SOAP request envelope:
// the WSSE UsernameToken credentials plus the raw HTNG payload body.
type InboundRequest struct {
	MessageID string
	Username  string
	Password  string
	BodyXML   []byte
}

// ParseInbound parses raw as an inbound SOAP 1.1/1.2 request envelope. It
// accepts either version since it matches elements by local name only, the
// same tolerance ParseResponse uses for channel responses.
func ParseInbound(raw []byte) (*InboundRequest, error) {
	var env inboundEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("envelope: parse inbound request: %w", err)
	}
	return &InboundRequest{
		MessageID: env.Header.MessageID,
		Username:  env.Header.Security.UsernameToken.Username,
		Password:  env.Header.Security.UsernameToken.Password,
		BodyXML:   env.Body.Content,
	}, nil
}
