package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }

func TestBuildIncludesWSSEAndMessageID(t *testing.T) {
	out, err := Build([]byte(`<OTA_HotelAvailNotifRQ/>`), BuildOptions{
		MessageID: "HTNG_20250601_100000_abc123",
		Username:  "user1",
		Password:  "secret",
		Now:       fixedNow,
	})
	require.NoError(t, err)
	s := string(out)
	for _, want := range []string{
		"UsernameToken",
		"<wsse:Username>user1</wsse:Username>",
		"<wsse:Password>secret</wsse:Password>",
		"HTNG_20250601_100000_abc123",
		DefaultAction,
		"OTA_HotelAvailNotifRQ",
	} {
		assert.Contains(t, s, want)
	}
}

func TestBuildRequiresMessageID(t *testing.T) {
	_, err := Build([]byte(`<x/>`), BuildOptions{Username: "u", Password: "p"})
	require.Error(t, err)
}

func TestParseResponseEmptyBody(t *testing.T) {
	resp := ParseResponse([]byte(""), "MSG1", time.Second)
	require.False(t, resp.Success)
	assert.Equal(t, "EMPTY_RESPONSE", resp.ErrorCode)
}

func TestParseResponseSOAP12Fault(t *testing.T) {
	raw := `<soap:Envelope xmlns:soap="` + NamespaceSOAP + `">
<soap:Body>
<soap:Fault>
<soap:Code><soap:Value>soap:Sender</soap:Value><soap:Subcode><soap:Value>AUT001</soap:Value></soap:Subcode></soap:Code>
<soap:Reason><soap:Text>Authentication failed</soap:Text></soap:Reason>
</soap:Fault>
</soap:Body>
</soap:Envelope>`
	resp := ParseResponse([]byte(raw), "MSG1", time.Second)
	require.False(t, resp.Success)
	assert.Equal(t, "AUT001", resp.ErrorCode)
	assert.Equal(t, "Authentication failed", resp.ErrorMessage)
}

func TestParseResponseOTAErrors(t *testing.T) {
	raw := `<soap:Envelope xmlns:soap="` + NamespaceSOAP + `">
<soap:Body>
<OTA_HotelInvCountNotifRS>
<Errors>
<Error Code="BUS010" Type="3">Room type not found</Error>
</Errors>
</OTA_HotelInvCountNotifRS>
</soap:Body>
</soap:Envelope>`
	resp := ParseResponse([]byte(raw), "MSG1", time.Second)
	require.False(t, resp.Success)
	assert.Equal(t, "BUS010", resp.ErrorCode)
}

func TestParseResponseOTAWarningsIsSuccess(t *testing.T) {
	raw := `<soap:Envelope xmlns:soap="` + NamespaceSOAP + `">
<soap:Body>
<OTA_HotelRateNotifRS>
<Success/>
<Warnings>
<Warning>Rate plan code not found, using default mapping</Warning>
</Warnings>
</OTA_HotelRateNotifRS>
</soap:Body>
</soap:Envelope>`
	resp := ParseResponse([]byte(raw), "MSG1", time.Second)
	require.True(t, resp.Success, "Warnings alone are not an error")
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "Rate plan code not found, using default mapping", resp.Warnings[0])
}

func TestBuildFaultAndAck(t *testing.T) {
	fault := string(BuildFault(FaultClient, "Authentication failed"))
	assert.Contains(t, fault, "soap:Client")
	assert.Contains(t, fault, "Authentication failed")

	ack := string(BuildAck(AckOptions{RootElement: "OTA_HotelResNotifRS", EchoToken: "HTNG_20250601_100000_abc123"}))
	assert.Contains(t, ack, "<Success/>")
	assert.Contains(t, ack, "HTNG_20250601_100000_abc123")
}
