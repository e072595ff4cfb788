package envelope

import (
	"fmt"
	"strings"
)

// FaultCode is the closed set of SOAP 1.2 fault codes the inbound side
// emits.
type FaultCode string

const (
	FaultClient FaultCode = "Client"
	FaultServer FaultCode = "Server"
)

const faultEnvelopeTemplate = `<?xml version="1.0" encoding="utf-8"?>` +
	`<soap:Envelope xmlns:soap="` + NamespaceSOAP + `">` +
	`<soap:Body>` +
	`<soap:Fault>` +
	`<soap:Code><soap:Value>soap:%s</soap:Value></soap:Code>` +
	`<soap:Reason><soap:Text xml:lang="en">%s</soap:Text></soap:Reason>` +
	`</soap:Fault>` +
	`</soap:Body>` +
	`</soap:Envelope>`

// BuildFault renders a SOAP 1.2 fault envelope with the given code and
// human-readable reason.
func BuildFault(code FaultCode, reason string) []byte {
	escaped := escapeXMLText(reason)
	return []byte(fmt.Sprintf(faultEnvelopeTemplate, code, escaped))
}

// AckOptions parameterizes a success acknowledgment envelope.
type AckOptions struct {
	RootElement string // e.g. "OTA_HotelResNotifRS"
	EchoToken   string
}

const ackEnvelopeTemplate = `<?xml version="1.0" encoding="utf-8"?>` +
	`<soap:Envelope xmlns:soap="` + NamespaceSOAP + `">` +
	`<soap:Body>` +
	`<%s xmlns="` + NamespaceOTA + `" EchoToken="%s"><Success/></%s>` +
	`</soap:Body>` +
	`</soap:Envelope>`

// BuildAck renders the synchronous success acknowledgment envelope returned
// by the inbound dispatcher.
func BuildAck(opts AckOptions) []byte {
	token := escapeXMLText(opts.EchoToken)
	return []byte(fmt.Sprintf(ackEnvelopeTemplate, opts.RootElement, token, opts.RootElement))
}

func escapeXMLText(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}
