// Package inboundwork is the asynchronous half of inbound processing: it
// drains the inbound-work queue a *inbound.Dispatcher enqueues into and
// applies each job's effect to the PMS. The worker-pool shape matches
// internal/outbound.Dispatcher — one goroutine per configured slot, draining
// a buffered channel until closed.
package inboundwork

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"htngsync/internal/eventbus"
	"htngsync/internal/historylog"
	"htngsync/internal/htngerr"
	"htngsync/internal/htngxml"
	"htngsync/internal/inbound"
	"htngsync/internal/model"
	"htngsync/internal/repository"
	"htngsync/internal/scheduler"
)

// Processor drains an inbound-work queue and applies each Job to the PMS.
// Only model.KindReservation carries a PMS-side effect; every
// other kind in inbound.Job.Kind is accepted by the inbound classifier but
// carries no PMS-side apply semantics, so it is logged and acknowledged
// without a PMS call.
type Processor struct {
	PMS    repository.PMS
	Bus    *eventbus.Bus
	Now    func() time.Time

	Concurrency int // workers draining the queue; 0 means scheduler.DefaultProfiles' inbound-work concurrency

	jobs chan inbound.Job
	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// NewProcessor builds a Processor with a buffered queue of the given depth.
func NewProcessor(pms repository.PMS, bus *eventbus.Bus, depth int) *Processor {
	if depth <= 0 {
		depth = 256
	}
	return &Processor{
		PMS:  pms,
		Bus:  bus,
		Now:  time.Now,
		jobs: make(chan inbound.Job, depth),
		done: make(chan struct{}),
	}
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// EnqueueInbound implements inbound.Enqueuer, handing a classified, persisted
// job to the worker pool. It blocks if the queue is full, applying
// backpressure to the HTTP handler rather than growing unboundedly.
func (p *Processor) EnqueueInbound(ctx context.Context, job inbound.Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return fmt.Errorf("inboundwork: processor stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches n worker goroutines. Call once.
func (p *Processor) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = p.Concurrency
	}
	if n <= 0 {
		n = scheduler.DefaultProfiles[scheduler.QueueInboundWork].Concurrency
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	log.Printf("inboundwork: started %d workers", n)
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Processor) Stop() {
	p.once.Do(func() { close(p.done); close(p.jobs) })
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.process(ctx, job)
	}
}

func (p *Processor) process(ctx context.Context, job inbound.Job) {
	startedAt := p.now()

	var (
		status model.MessageStatus
		kind   htngerr.Kind
		code   string
		msg    string
	)

	if job.Kind == model.KindReservation {
		dto, err := htngxml.ParseReservation(job.BodyXML)
		if err != nil {
			status, kind, code, msg = model.MessageStatusFailed, htngerr.KindSOAPXML, "RESERVATION_PARSE_ERROR", err.Error()
		} else {
			op := repository.ReservationOpCreate
			switch job.Operation {
			case inbound.OpCancel:
				op = repository.ReservationOpCancel
			case inbound.OpModify:
				op = repository.ReservationOpModify
			}
			if _, err := p.PMS.ApplyInboundReservation(ctx, op, dto); err != nil {
				status, kind, code, msg = model.MessageStatusFailed, htngerr.KindBusinessLogic, "PMS_APPLY_FAILED", err.Error()
			} else {
				status = model.MessageStatusCompleted
			}
		}
	} else {
		log.Printf("inboundwork: job kind %q has no PMS-side apply semantics; recorded only", job.Kind)
		status = model.MessageStatusCompleted
	}

	completedAt := p.now()
	entry := model.MessageLogEntry{
		MessageID:   job.MessageID,
		Direction:   model.DirectionInbound,
		Kind:        job.Kind,
		PropertyID:  job.PropertyID,
		HotelCode:   job.HotelCode,
		RequestBody: string(job.BodyXML),
		Status:      status,
		ErrorKind:   string(kind),
		ErrorMessage: msg,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		DurationMS:  completedAt.Sub(startedAt).Milliseconds(),
	}
	p.Bus.PublishRaw(eventbus.MessageLogSubject, historylog.FromMessageLogEntry(entry))

	if status == model.MessageStatusFailed {
		p.Bus.PublishRaw(eventbus.ErrorLogSubject, historylog.ErrorLogEvent{
			MessageID:          job.MessageID,
			ErrorKind:          string(kind),
			ErrorCode:          code,
			Severity:           string(kind.DefaultSeverity()),
			Message:            msg,
			SourceContext:      fmt.Sprintf("inbound:%s:%d:%s", job.Kind, job.PropertyID, job.Operation),
			CanRetry:           kind.Retryable(),
			RecommendedDelayS:  int(kind.DefaultDelay().Seconds()),
			ManualIntervention: !kind.Retryable(),
		})
	}
}
