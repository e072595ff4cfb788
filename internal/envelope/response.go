package envelope

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"htngsync/internal/htngerr"
)

// Response is the structured result of parsing a channel SOAP response.
type Response struct {
	MessageID    string
	Raw          string
	EchoToken    string
	Headers      map[string]string
	DurationMS   int64
	Success      bool
	Warnings     []string
	ErrorKind    htngerr.Kind
	ErrorCode    string
	ErrorMessage string
}

// rawEnvelope captures just enough structure to dispatch into fault / OTA
// error / OTA warning handling without needing a namespace-exact schema.
type rawEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Header  rawHeader `xml:"Header"`
	Body    rawBody   `xml:"Body"`
}

type rawHeader struct {
	MessageID string `xml:"MessageID"`
}

type rawBody struct {
	Content []byte   `xml:",innerxml"`
	Fault   *rawFault `xml:"Fault"`
}

// rawFault supports both SOAP 1.2 (Code/Reason) and SOAP 1.1 (faultcode/faultstring).
type rawFault struct {
	Code        *rawFaultCode `xml:"Code"`
	Reason      *rawFaultReason `xml:"Reason"`
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

type rawFaultCode struct {
	Value   string        `xml:"Value"`
	Subcode *rawFaultCode `xml:"Subcode"`
}

type rawFaultReason struct {
	Text string `xml:"Text"`
}

// otaErrorsBag and otaWarningsBag are scanned for separately from the raw
// body innerxml since they may appear at various OTA payload anchor points.
type otaErrorsBag struct {
	XMLName xml.Name   `xml:"Errors"`
	Errors  []otaError `xml:"Error"`
}

type otaError struct {
	Code      string `xml:"Code,attr"`
	Type      string `xml:"Type,attr"`
	ShortText string `xml:"ShortText"`
	Text      string `xml:",chardata"`
}

type otaWarningsBag struct {
	XMLName  xml.Name     `xml:"Warnings"`
	Warnings []otaWarning `xml:"Warning"`
}

type otaWarning struct {
	ShortText string `xml:"ShortText"`
	Text      string `xml:",chardata"`
}

// ParseResponse parses a channel response envelope into a Response,
// recognizing SOAP faults, OTA errors, and OTA warnings.
func ParseResponse(raw []byte, expectedMessageID string, duration time.Duration) *Response {
	resp := &Response{
		Raw:        string(raw),
		MessageID:  expectedMessageID,
		DurationMS: duration.Milliseconds(),
		Headers:    map[string]string{},
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		resp.Success = false
		resp.ErrorCode = "EMPTY_RESPONSE"
		resp.ErrorMessage = "channel returned an empty response body"
		resp.ErrorKind = htngerr.Classify(resp.ErrorCode, resp.ErrorMessage)
		return resp
	}

	var env rawEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		resp.Success = false
		resp.ErrorCode = "XML_PARSE_ERROR"
		resp.ErrorMessage = "failed to parse SOAP envelope: " + err.Error()
		resp.ErrorKind = htngerr.Classify(resp.ErrorCode, resp.ErrorMessage)
		return resp
	}
	if env.Header.MessageID != "" {
		resp.EchoToken = env.Header.MessageID
	}

	if env.Body.Fault != nil {
		resp.Success = false
		code, reason := extractFault(env.Body.Fault)
		resp.ErrorCode = code
		resp.ErrorMessage = reason
		resp.ErrorKind = htngerr.Classify(resp.ErrorCode, resp.ErrorMessage)
		return resp
	}

	if errs := findOTAErrors(env.Body.Content); len(errs) > 0 {
		resp.Success = false
		resp.ErrorCode = errs[0].code
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.message)
		}
		resp.ErrorMessage = strings.Join(msgs, "; ")
		resp.ErrorKind = htngerr.Classify(resp.ErrorCode, resp.ErrorMessage)
		return resp
	}

	resp.Warnings = findOTAWarnings(env.Body.Content)
	resp.Success = true
	return resp
}

type otaErrEntry struct {
	code    string
	message string
}

// findOTAErrors scans bodyXML for an ota:Errors/ota:Error bag. It tolerates
// the element appearing anywhere in the body (various OTA *RS shapes place
// it at different anchor points).
func findOTAErrors(bodyXML []byte) []otaErrEntry {
	var bag otaErrorsBag
	if err := xml.Unmarshal(wrapFragment(bodyXML), &bag); err != nil {
		return nil
	}
	if len(bag.Errors) == 0 {
		return nil
	}
	out := make([]otaErrEntry, 0, len(bag.Errors))
	for _, e := range bag.Errors {
		code := e.Code
		if code == "" {
			code = e.Type
		}
		msg := e.ShortText
		if msg == "" {
			msg = strings.TrimSpace(e.Text)
		}
		out = append(out, otaErrEntry{code: code, message: msg})
	}
	return out
}

func findOTAWarnings(bodyXML []byte) []string {
	var bag otaWarningsBag
	if err := xml.Unmarshal(wrapFragment(bodyXML), &bag); err != nil {
		return nil
	}
	out := make([]string, 0, len(bag.Warnings))
	for _, w := range bag.Warnings {
		msg := w.ShortText
		if msg == "" {
			msg = strings.TrimSpace(w.Text)
		}
		if msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// wrapFragment finds the first "<Errors" or "<Warnings" element in an inner
// XML fragment and returns just that element, since the fragment as a whole
// may contain several sibling elements that are not valid as a single
// top-level XML document.
func wrapFragment(fragment []byte) []byte {
	for _, tag := range []string{"Errors", "Warnings"} {
		open := "<" + tag
		idx := indexTag(fragment, open)
		if idx < 0 {
			continue
		}
		closeTag := "</" + tag + ">"
		end := indexFrom(fragment, closeTag, idx)
		if end < 0 {
			continue
		}
		return fragment[idx : end+len(closeTag)]
	}
	return []byte("<none/>")
}

func indexTag(haystack []byte, tag string) int {
	return strings.Index(string(haystack), tag)
}

func indexFrom(haystack []byte, needle string, from int) int {
	rel := strings.Index(string(haystack[from:]), needle)
	if rel < 0 {
		return -1
	}
	return from + rel
}

func extractFault(f *rawFault) (code, reason string) {
	if f.Code != nil {
		code = f.Code.Value
		if f.Code.Subcode != nil && f.Code.Subcode.Value != "" {
			code = f.Code.Subcode.Value
		}
	}
	if f.Reason != nil && f.Reason.Text != "" {
		reason = f.Reason.Text
	}
	if code == "" {
		code = f.FaultCode
	}
	if reason == "" {
		reason = f.FaultString
	}
	if code == "" {
		code = "SOAP_FAULT"
	}
	return code, reason
}
