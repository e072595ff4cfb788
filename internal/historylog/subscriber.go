package historylog

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"htngsync/internal/eventbus"
)

// Subscriber wraps a NATS connection and forwards the three audit-trail
// subjects — message log, message history, error log — into their batchers
// for bulk insertion.
type Subscriber struct {
	conn      *nats.Conn
	logs      *Batcher[MessageLogEvent]
	histories *Batcher[MessageHistoryEvent]
	errors    *Batcher[ErrorLogEvent]
	subs      []*nats.Subscription
}

// NewSubscriber connects to NATS, retrying the initial dial so the daemon
// survives a broker that is still starting, and returns a Subscriber bound
// to the three batchers. histories and errors may be nil to skip those
// subjects.
func NewSubscriber(natsURL string, logs *Batcher[MessageLogEvent], histories *Batcher[MessageHistoryEvent], errors *Batcher[ErrorLogEvent]) (*Subscriber, error) {
	const maxRetries = 10

	opts := []nats.Option{
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("historylog: NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("historylog: NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	var (
		nc  *nats.Conn
		err error
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		nc, err = nats.Connect(natsURL, opts...)
		if err == nil {
			log.Printf("historylog: connected to NATS at %s (attempt %d)", natsURL, attempt)
			break
		}
		wait := time.Duration(attempt) * time.Second
		log.Printf("historylog: NATS not ready (attempt %d/%d): %v — retrying in %s",
			attempt, maxRetries, err, wait)
		time.Sleep(wait)
	}
	if err != nil {
		return nil, err
	}

	return &Subscriber{conn: nc, logs: logs, histories: histories, errors: errors}, nil
}

// Start subscribes to every subject it has a batcher for.
func (s *Subscriber) Start() error {
	if err := s.subscribeIf(s.logs != nil, eventbus.MessageLogSubject, s.handleMessageLog); err != nil {
		return err
	}
	if err := s.subscribeIf(s.histories != nil, eventbus.MessageHistorySubject, s.handleMessageHistory); err != nil {
		return err
	}
	return s.subscribeIf(s.errors != nil, eventbus.ErrorLogSubject, s.handleErrorLog)
}

func (s *Subscriber) subscribeIf(enabled bool, subject string, handler nats.MsgHandler) error {
	if !enabled {
		return nil
	}
	sub, err := s.conn.Subscribe(subject, handler)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	log.Printf("historylog: subscribed to NATS subject %q", subject)
	return nil
}

// Stop drains the subscriptions and closes the NATS connection.
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Subscriber) handleMessageLog(msg *nats.Msg) {
	var ev MessageLogEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("historylog: failed to parse message-log event: %v — payload: %s", err, string(msg.Data))
		return
	}
	s.logs.Add(ev)
}

func (s *Subscriber) handleMessageHistory(msg *nats.Msg) {
	var ev MessageHistoryEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("historylog: failed to parse message-history event: %v — payload: %s", err, string(msg.Data))
		return
	}
	s.histories.Add(ev)
}

func (s *Subscriber) handleErrorLog(msg *nats.Msg) {
	var ev ErrorLogEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("historylog: failed to parse error-log event: %v — payload: %s", err, string(msg.Data))
		return
	}
	s.errors.Add(ev)
}
