// Package envelope builds and parses SOAP 1.2 envelopes carrying HTNG 2011B
// payloads, including the WSSE UsernameToken security header. The XML encode/decode idiom — encoding/xml with local-name-only
// matching so both SOAP 1.1 and 1.2 callers are accepted on parse — keeps
// the codec tolerant of the envelope variants real channels send.
package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"time"
)

const (
	// NamespaceSOAP is the SOAP 1.2 envelope namespace.
	NamespaceSOAP = "http://www.w3.org/2003/05/soap-envelope"
	// NamespaceOTA is the OpenTravel payload namespace.
	NamespaceOTA = "http://www.opentravel.org/OTA/2003/05"
	// NamespaceHTNG is the HTNG extension namespace.
	NamespaceHTNG = "http://htng.org/PWS/2011B/SingleGuestItinerary/Common/Types"
	// NamespaceWSSE is the WS-Security UsernameToken profile namespace.
	NamespaceWSSE = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"

	// DefaultAction is the SOAPAction used unless overridden.
	DefaultAction = "HTNG2011B_SubmitRequest"
)

// BuildOptions parameterizes envelope construction.
type BuildOptions struct {
	MessageID string
	Username  string
	Password  string
	Action    string // defaults to DefaultAction when empty
	Now       func() time.Time
}

// wsseUsernameToken is the plain-text-password UsernameToken profile HTNG
// 2011B mandates; TLS at the deployment layer is what protects it.
type wsseUsernameToken struct {
	XMLName  xml.Name `xml:"wsse:UsernameToken"`
	Username string   `xml:"wsse:Username"`
	Password string   `xml:"wsse:Password"`
	Nonce    string   `xml:"wsse:Nonce"`
	Created  string   `xml:"wsu:Created"`
}

type wsseSecurity struct {
	XMLName       xml.Name          `xml:"wsse:Security"`
	XMLNSWsse     string            `xml:"xmlns:wsse,attr"`
	XMLNSWsu      string            `xml:"xmlns:wsu,attr"`
	UsernameToken wsseUsernameToken `xml:"wsse:UsernameToken"`
}

type soapHeader struct {
	XMLName   xml.Name     `xml:"soap:Header"`
	Security  wsseSecurity `xml:"wsse:Security"`
	MessageID string       `xml:"MessageID"`
	Action    string       `xml:"Action"`
}

type soapBody struct {
	XMLName xml.Name `xml:"soap:Body"`
	Payload []byte   `xml:",innerxml"`
}

type soapEnvelope struct {
	XMLName   xml.Name   `xml:"soap:Envelope"`
	XMLNSSoap string     `xml:"xmlns:soap,attr"`
	Header    soapHeader `xml:"soap:Header"`
	Body      soapBody   `xml:"soap:Body"`
}

// Build wraps payloadXML (a single HTNG payload root, already serialized by
// internal/htngxml) into a signed SOAP 1.2 envelope.
func Build(payloadXML []byte, opts BuildOptions) ([]byte, error) {
	if opts.MessageID == "" {
		return nil, fmt.Errorf("envelope: MessageID is required")
	}
	action := opts.Action
	if action == "" {
		action = DefaultAction
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("envelope: generate nonce: %w", err)
	}

	env := soapEnvelope{
		XMLNSSoap: NamespaceSOAP,
		Header: soapHeader{
			Security: wsseSecurity{
				XMLNSWsse: NamespaceWSSE,
				XMLNSWsu:  "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd",
				UsernameToken: wsseUsernameToken{
					Username: opts.Username,
					Password: opts.Password,
					Nonce:    nonce,
					Created:  now().UTC().Format(time.RFC3339),
				},
			},
			MessageID: opts.MessageID,
			Action:    action,
		},
		Body: soapBody{Payload: payloadXML},
	}

	out, err := xml.MarshalIndent(&env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
