package inbound

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htngsync/internal/model"
)

type fakeCredentials struct {
	configs map[string]model.PropertyConfig
}

func (f *fakeCredentials) FindByUsername(_ context.Context, username string) (model.PropertyConfig, bool, error) {
	cfg, ok := f.configs[username]
	return cfg, ok, nil
}

type fakeHistory struct {
	rows    map[string]*model.MessageHistory
	nextID  int64
	inserts []*model.MessageHistory
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{rows: map[string]*model.MessageHistory{}}
}

func (f *fakeHistory) key(hotelCode string, kind model.Kind, fingerprint string) string {
	return hotelCode + "|" + string(kind) + "|" + fingerprint
}

func (f *fakeHistory) FindByFingerprint(_ context.Context, hotelCode string, kind model.Kind, fingerprint string) (*model.MessageHistory, error) {
	return f.rows[f.key(hotelCode, kind, fingerprint)], nil
}

func (f *fakeHistory) Insert(_ context.Context, h *model.MessageHistory) (int64, error) {
	f.nextID++
	h.ID = f.nextID
	f.rows[f.key(h.HotelCode, h.Kind, h.Fingerprint)] = h
	f.inserts = append(f.inserts, h)
	return h.ID, nil
}

func (f *fakeHistory) MarkProcessed(_ context.Context, id int64, ackResponse string, processedAt time.Time) error {
	for _, h := range f.rows {
		if h.ID == id {
			h.ProcessingStatus = model.ProcessingStatusProcessed
			h.AckResponse = ackResponse
			h.ProcessedAt = processedAt
		}
	}
	return nil
}

type fakeQueue struct {
	jobs []Job
}

func (f *fakeQueue) EnqueueInbound(_ context.Context, job Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeErrorLogger struct {
	entries []model.ErrorLogEntry
}

func (f *fakeErrorLogger) LogError(_ context.Context, e model.ErrorLogEntry) {
	f.entries = append(f.entries, e)
}

func reservationEnvelope(username, password, resStatus, messageID string) string {
	return `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Header>
    <wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
      <wsse:UsernameToken>
        <wsse:Username>` + username + `</wsse:Username>
        <wsse:Password>` + password + `</wsse:Password>
      </wsse:UsernameToken>
    </wsse:Security>
    <MessageID>` + messageID + `</MessageID>
  </soap:Header>
  <soap:Body>
    <OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05">
      <HotelReservations>
        <HotelReservation ResStatus="` + resStatus + `">
          <UniqueID ID="RES-1"/>
          <RoomStays>
            <RoomStay>
              <RoomTypes><RoomType RoomTypeCode="KING"/></RoomTypes>
              <TimeSpan Start="2025-06-01" End="2025-06-03"/>
            </RoomStay>
          </RoomStays>
          <ResGuests>
            <ResGuest><Customer><PersonName><GivenName>Jane</GivenName><Surname>Doe</Surname></PersonName></Customer></ResGuest>
          </ResGuests>
          <POS><Source RequestorID="001234"/></POS>
        </HotelReservation>
      </HotelReservations>
    </OTA_HotelResNotifRQ>
  </soap:Body>
</soap:Envelope>`
}

func newTestDispatcher() (*Dispatcher, *fakeHistory, *fakeQueue, *fakeErrorLogger) {
	hist := newFakeHistory()
	queue := &fakeQueue{}
	errs := &fakeErrorLogger{}
	d := &Dispatcher{
		Credentials: &fakeCredentials{configs: map[string]model.PropertyConfig{
			"chan_user": {PropertyID: 1, Username: "chan_user", Password: "secret"},
		}},
		History: hist,
		Queue:   queue,
		Errors:  errs,
		Now:     func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return d, hist, queue, errs
}

func TestServeHTTP_ReservationCancel_EnqueuesAndAcks(t *testing.T) {
	d, hist, queue, _ := newTestDispatcher()

	body := reservationEnvelope("chan_user", "secret", "Cancel", "CHN_20250601_120000_abc123")
	req := httptest.NewRequest(http.MethodPost, "/inbound", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OTA_HotelResNotifRS")
	assert.Contains(t, rec.Body.String(), "CHN_20250601_120000_abc123")
	assert.Contains(t, rec.Body.String(), "<Success/>")

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, model.KindReservation, queue.jobs[0].Kind)
	assert.Equal(t, OpCancel, queue.jobs[0].Operation)
	assert.Equal(t, int64(1), queue.jobs[0].PropertyID)

	require.Len(t, hist.inserts, 1)
	assert.Equal(t, model.ProcessingStatusProcessed, hist.inserts[0].ProcessingStatus)
}

func TestServeHTTP_AuthFailure_Returns401AndNoHistory(t *testing.T) {
	d, hist, queue, errs := newTestDispatcher()

	body := reservationEnvelope("chan_user", "WRONG", "Commit", "CHN_20250601_120000_def456")
	req := httptest.NewRequest(http.MethodPost, "/inbound", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Client")
	assert.Contains(t, rec.Body.String(), "Authentication failed")
	assert.Empty(t, hist.inserts)
	assert.Empty(t, queue.jobs)
	require.Len(t, errs.entries, 1)
	assert.Equal(t, "authentication", errs.entries[0].ErrorKind)
	assert.Equal(t, "critical", errs.entries[0].Severity)
}

func TestServeHTTP_DuplicateEnvelope_ReturnsIdenticalAckWithoutReenqueue(t *testing.T) {
	d, _, queue, _ := newTestDispatcher()

	body := reservationEnvelope("chan_user", "secret", "Commit", "CHN_20250601_120000_ghi789")

	req1 := httptest.NewRequest(http.MethodPost, "/inbound", strings.NewReader(body))
	rec1 := httptest.NewRecorder()
	d.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/inbound", strings.NewReader(body))
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	assert.Equal(t, rec1.Body.String(), rec2.Body.String())
	assert.Len(t, queue.jobs, 1, "replay must not enqueue a second downstream handler invocation")
}

func TestServeHTTP_UnrecognizedRoot_Faults(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	body := `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Header>
    <wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
      <wsse:UsernameToken><wsse:Username>chan_user</wsse:Username><wsse:Password>secret</wsse:Password></wsse:UsernameToken>
    </wsse:Security>
  </soap:Header>
  <soap:Body><OTA_SomeUnknownRQ/></soap:Body>
</soap:Envelope>`
	req := httptest.NewRequest(http.MethodPost, "/inbound", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unrecognized message type")
}
