// Package inbound implements the single HTTP endpoint that accepts inbound
// HTNG SOAP notifications from the channel: it authenticates them, classifies
// them by message kind, deduplicates by content fingerprint, persists message
// history, enqueues a typed handler, and synchronously acknowledges.
package inbound

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"htngsync/internal/envelope"
	"htngsync/internal/historylog"
	"htngsync/internal/htngerr"
	"htngsync/internal/htngxml"
	"htngsync/internal/ids"
	"htngsync/internal/model"
)

// rootKindTable maps the HTNG/OTA root element of an inbound body to the
// closed kind set. Both OTA rate notification roots are accepted: some
// channels send OTA_HotelRateNotifRQ, others OTA_HotelRateAmountNotifRQ, for
// the same stream.
var rootKindTable = map[string]model.Kind{
	"OTA_HotelResNotifRQ":       model.KindReservation,
	"OTA_HotelInvBlockNotifRQ":  model.KindGroupBlock,
	"OTA_HotelInvCountNotifRQ":  model.KindInventory,
	"OTA_HotelRateNotifRQ":      model.KindRates,
	"OTA_HotelRateAmountNotifRQ": model.KindRates,
	"OTA_HotelAvailNotifRQ":     model.KindRestrictions,
}

// Reservation sub-classification by ResStatus.
const (
	OpCancel = "cancel"
	OpModify = "modify"
	OpNew    = "new"
)

// CredentialResolver looks up the per-property credentials an inbound WSSE
// UsernameToken is checked against. The credentials themselves are stored by
// internal/mapping.CredentialStore; this package depends only on this narrow
// lookup, the same externalization internal/repository.PMS uses for the PMS
// domain.
type CredentialResolver interface {
	FindByUsername(ctx context.Context, username string) (model.PropertyConfig, bool, error)
}

// Job is one unit of inbound work, handed to a typed per-kind handler after
// the envelope has been authenticated, deduplicated, persisted, and
// acknowledged.
type Job struct {
	Kind       model.Kind
	Operation  string // reservations only: OpCancel | OpModify | OpNew
	PropertyID int64
	HotelCode  string
	MessageID  string
	BodyXML    []byte
	HistoryID  int64
	ReceivedAt time.Time
}

// Enqueuer hands a Job to the inbound-work queue.
type Enqueuer interface {
	EnqueueInbound(ctx context.Context, job Job) error
}

// ErrorLogger records a failure in the error log, independent of whether
// the failure ever reached a message log entry (e.g. an authentication
// rejection that never created history).
type ErrorLogger interface {
	LogError(ctx context.Context, entry model.ErrorLogEntry)
}

// Dispatcher is the inbound HTTP endpoint.
type Dispatcher struct {
	Credentials CredentialResolver
	History     historylog.HistoryStore
	Queue       Enqueuer
	Errors      ErrorLogger
	Now         func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ServeHTTP runs the full inbound flow: authenticate, classify,
// fingerprint and dedup, persist history, enqueue, acknowledge.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeFault(w, http.StatusMethodNotAllowed, envelope.FaultClient,
			fmt.Sprintf("method %s not allowed; the inbound endpoint only accepts POST", r.Method))
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeFault(w, http.StatusBadRequest, envelope.FaultClient, "failed to read request body: "+err.Error())
		return
	}

	req, err := envelope.ParseInbound(raw)
	if err != nil {
		writeFault(w, http.StatusBadRequest, envelope.FaultClient, "invalid SOAP envelope: "+err.Error())
		return
	}

	// Step 1: authenticate.
	cfg, ok, err := d.Credentials.FindByUsername(ctx, req.Username)
	if err != nil {
		writeFault(w, http.StatusInternalServerError, envelope.FaultServer, "credential lookup failed")
		return
	}
	if !ok || req.Username == "" || cfg.Password != req.Password {
		d.logAuthFailure(ctx, req)
		writeFault(w, http.StatusUnauthorized, envelope.FaultClient, "Authentication failed")
		return
	}

	// Step 2: classify by root element.
	rootName, err := detectRoot(req.BodyXML)
	if err != nil {
		writeFault(w, http.StatusBadRequest, envelope.FaultClient, "could not determine message type: "+err.Error())
		return
	}
	kind, ok := rootKindTable[rootName]
	if !ok {
		writeFault(w, http.StatusBadRequest, envelope.FaultClient, "unrecognized message type "+rootName)
		return
	}

	hotelCode, operation, err := extractKeyFields(kind, req.BodyXML)
	if err != nil {
		writeFault(w, http.StatusBadRequest, envelope.FaultClient, "malformed "+rootName+": "+err.Error())
		return
	}

	// Step 3: fingerprint & dedup.
	fingerprint := historylog.Fingerprint(req.BodyXML)
	if existing, err := d.History.FindByFingerprint(ctx, hotelCode, kind, fingerprint); err == nil && existing != nil &&
		existing.ProcessingStatus == model.ProcessingStatusProcessed {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(existing.AckResponse))
		return
	}

	// Step 4: persist history.
	now := d.now()
	hist := &model.MessageHistory{
		Direction:        model.DirectionInbound,
		Kind:             kind,
		PropertyID:       cfg.PropertyID,
		HotelCode:        hotelCode,
		RawXML:           string(req.BodyXML),
		Fingerprint:      fingerprint,
		ProcessingStatus: model.ProcessingStatusPending,
		ReceivedAt:       now,
	}
	historyID, err := d.History.Insert(ctx, hist)
	if err != nil {
		log.Printf("inbound: failed to persist history for %s: %v", rootName, err)
		writeFault(w, http.StatusInternalServerError, envelope.FaultServer, "failed to persist inbound message")
		return
	}

	msgID := req.MessageID
	if msgID == "" || !ids.ValidMessageID(msgID) {
		msgID = ids.NewMessageID("IN", now)
	}

	// Step 5: enqueue.
	job := Job{
		Kind:       kind,
		Operation:  operation,
		PropertyID: cfg.PropertyID,
		HotelCode:  hotelCode,
		MessageID:  msgID,
		BodyXML:    req.BodyXML,
		HistoryID:  historyID,
		ReceivedAt: now,
	}
	if err := d.Queue.EnqueueInbound(ctx, job); err != nil {
		log.Printf("inbound: failed to enqueue job %s: %v", msgID, err)
		writeFault(w, http.StatusInternalServerError, envelope.FaultServer, "failed to enqueue for processing")
		return
	}

	// Step 6: acknowledge synchronously; downstream processing is async.
	ack := envelope.BuildAck(envelope.AckOptions{RootElement: ackRootFor(rootName), EchoToken: msgID})
	if err := d.History.MarkProcessed(ctx, historyID, string(ack), d.now()); err != nil {
		log.Printf("inbound: failed to mark history %d processed: %v", historyID, err)
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ack)
}

func (d *Dispatcher) logAuthFailure(ctx context.Context, req *envelope.InboundRequest) {
	if d.Errors == nil {
		return
	}
	d.Errors.LogError(ctx, model.ErrorLogEntry{
		ErrorKind:          string(htngerr.KindAuthentication),
		ErrorCode:          "AUT_INVALID_CREDENTIALS",
		Severity:           string(htngerr.SeverityCritical),
		Message:            "inbound WSSE authentication failed for username " + req.Username,
		CanRetry:           false,
		ManualIntervention: true,
		CreatedAt:          d.now(),
	})
}

// ackRootFor derives the OTA_*RS acknowledgment root from an OTA_*RQ root.
func ackRootFor(requestRoot string) string {
	if strings.HasSuffix(requestRoot, "RQ") {
		return strings.TrimSuffix(requestRoot, "RQ") + "RS"
	}
	return requestRoot + "RS"
}

// detectRoot returns the local name of the first start element in body,
// i.e. the OTA/HTNG message root, without requiring a namespace-exact match.
func detectRoot(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// extractKeyFields parses body with the kind-specific parser just far enough
// to recover the hotel code (every DTO carries one) and, for reservations,
// the ResStatus-derived operation.
func extractKeyFields(kind model.Kind, body []byte) (hotelCode, operation string, err error) {
	switch kind {
	case model.KindReservation:
		dto, err := htngxml.ParseReservation(body)
		if err != nil {
			return "", "", err
		}
		return dto.HotelCode, reservationOperation(dto.Status), nil
	case model.KindInventory:
		dto, err := htngxml.ParseInventory(body)
		if err != nil {
			return "", "", err
		}
		return dto.HotelCode, "", nil
	case model.KindRates:
		dto, err := htngxml.ParseRates(body)
		if err != nil {
			return "", "", err
		}
		return dto.HotelCode, "", nil
	case model.KindRestrictions:
		dto, err := htngxml.ParseRestrictions(body)
		if err != nil {
			return "", "", err
		}
		return dto.HotelCode, "", nil
	case model.KindGroupBlock:
		dto, err := htngxml.ParseGroupBlock(body)
		if err != nil {
			return "", "", err
		}
		return dto.HotelCode, "", nil
	default:
		return "", "", fmt.Errorf("inbound: unhandled kind %q", kind)
	}
}

// reservationOperation matches the literal ResStatus wire values the channel
// sends ("Cancel", "Modify") as well as htngxml's own ReservationStatus
// constants, which spell them "Cancelled"/"Modify" on the outbound builder
// side. Both
// spellings are accepted so an inbound envelope using either convention
// classifies correctly — see DESIGN.md.
func reservationOperation(status htngxml.ReservationStatus) string {
	switch string(status) {
	case "Cancel", string(htngxml.ReservationCancelled):
		return OpCancel
	case string(htngxml.ReservationModified):
		return OpModify
	default:
		return OpNew
	}
}

func writeFault(w http.ResponseWriter, statusCode int, code envelope.FaultCode, reason string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(envelope.BuildFault(code, reason))
}
