// Package outbound implements the worker pools that drain the four logical
// queues: each job acquires the per-(property, kind) lease, wraps its
// pre-built payload in a signed SOAP envelope, sends it to the property's
// channel endpoint, and drives the sync-status machine through the result.
package outbound

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"htngsync/internal/envelope"
	"htngsync/internal/eventbus"
	"htngsync/internal/historylog"
	"htngsync/internal/htngerr"
	"htngsync/internal/ids"
	"htngsync/internal/mapping"
	"htngsync/internal/model"
	"htngsync/internal/scheduler"
	"htngsync/internal/syncstate"
	"htngsync/internal/transport"
)

// ConfigLoader fetches a property's configuration on a cache miss.
type ConfigLoader func(ctx context.Context, propertyID int64) (model.PropertyConfig, error)

// Rebuilder reconstructs an equivalent scheduler.Job from a durable
// sync-status row, the recovery path that lets next_retry_at survive a
// restart without a second, redundant job-persistence table.
type Rebuilder func(ctx context.Context, row *model.SyncStatus) (scheduler.Job, error)

// Dispatcher drains scheduler's four logical queues.
type Dispatcher struct {
	Profiles map[scheduler.QueueName]scheduler.QueueProfile
	Leases   *scheduler.LeaseManager
	Circuit  *scheduler.CircuitBreaker
	Machine  *syncstate.Machine
	Store    syncstate.Store
	Channel  transport.PropertyChannel
	Bus      *eventbus.Bus
	Cache    *mapping.ConfigCache
	Load     ConfigLoader
	Rebuild  Rebuilder
	Now      func() time.Time

	DefaultEndpoint string
	QueueDepth      int // buffered channel capacity per queue; 0 means scheduler.DefaultBatchSize

	queues map[scheduler.QueueName]chan scheduler.Job
	wg     sync.WaitGroup
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher builds a Dispatcher ready for Start. A zero Profiles map
// falls back to scheduler.DefaultProfiles.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Profiles: scheduler.DefaultProfiles,
		Leases:   scheduler.NewLeaseManager(),
		Circuit:  scheduler.NewCircuitBreaker(scheduler.DefaultCircuitBreakerConfig),
		Cache:    mapping.NewConfigCache(),
		Now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Start launches Concurrency workers for every profiled queue. Call once.
func (d *Dispatcher) Start(ctx context.Context) {
	if len(d.Profiles) == 0 {
		d.Profiles = scheduler.DefaultProfiles
	}
	d.queues =make(map[scheduler.QueueName]chan scheduler.Job, len(d.Profiles))
	for name, profile := range d.Profiles {
		depth := d.QueueDepth
		if depth <= 0 {
			depth = scheduler.DefaultBatchSize
		}
		ch := make(chan scheduler.Job, depth)
		d.queues[name] = ch
		for i := 0; i < profile.Concurrency; i++ {
			d.wg.Add(1)
			go d.worker(ctx, name, profile, ch)
		}
		log.Printf("outbound: started %d workers for queue %q (timeout=%s)", profile.Concurrency, name, profile.JobTimeout)
	}
}

// Stop closes every queue and waits for in-flight jobs to drain.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	for _, ch := range d.queues {
		close(ch)
	}
	d.wg.Wait()
}

// Enqueue submits job onto its queue. It blocks if the queue is full,
// applying backpressure to the caller rather than growing unboundedly.
func (d *Dispatcher) Enqueue(job scheduler.Job) error {
	ch, ok := d.queues[job.Queue]
	if !ok {
		return fmt.Errorf("outbound: unknown queue %q", job.Queue)
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = d.now()
	}
	select {
	case ch <- job:
		return nil
	case <-d.done:
		return fmt.Errorf("outbound: dispatcher stopped")
	}
}

func (d *Dispatcher) worker(ctx context.Context, name scheduler.QueueName, profile scheduler.QueueProfile, jobs <-chan scheduler.Job) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			d.process(ctx, profile, job)
		}
	}
}

// process runs the full dispatch algorithm for one job: acquire the
// per-(property, kind) lease, skip if the property's circuit is tripped,
// transition the sync-status row to running, build and send the envelope,
// classify the response, and transition the row to completed or
// failed/error, publishing message-log and (on failure) error-log events
// throughout.
func (d *Dispatcher) process(ctx context.Context, profile scheduler.QueueProfile, job scheduler.Job) {
	leaseKey := scheduler.LeaseKey(job.PropertyID, job.Kind)
	release := d.Leases.Acquire(leaseKey)
	defer release()

	if d.Circuit.Tripped(job.PropertyID) {
		log.Printf("outbound: circuit tripped for property %d, deferring job %s", job.PropertyID, job.ID)
		return
	}

	cfg, err := d.configFor(ctx, job.PropertyID)
	if err != nil {
		log.Printf("outbound: no config for property %d: %v", job.PropertyID, err)
		return
	}

	messageID := ids.NewMessageID(string(job.Kind), d.now())
	startedAt := d.now()

	_ = d.Store.WithLock(ctx, job.PropertyID, job.Kind, job.EntityType, job.EntityID, func(row *model.SyncStatus) error {
		d.Machine.Start(row)
		return nil
	})

	jobCtx, cancel := context.WithTimeout(ctx, profile.JobTimeout)
	defer cancel()

	env, err := envelope.Build(job.Payload, envelope.BuildOptions{
		MessageID: messageID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Now:       d.now,
	})
	if err != nil {
		d.finish(ctx, job, cfg, messageID, startedAt, nil, &envelope.Response{
			ErrorKind:    htngerr.KindSOAPXML,
			ErrorCode:    "ENVELOPE_BUILD_ERROR",
			ErrorMessage: err.Error(),
		})
		return
	}

	endpoint := cfg.EndpointOverride
	if endpoint == "" {
		endpoint = d.DefaultEndpoint
	}

	raw, duration, sendErr := d.Channel.SendForProperty(jobCtx, job.PropertyID, endpoint, env, profile.JobTimeout)
	if sendErr != nil {
		resp := &envelope.Response{
			MessageID:  messageID,
			DurationMS: duration.Milliseconds(),
		}
		if jobCtx.Err() == context.DeadlineExceeded {
			resp.ErrorKind = htngerr.KindTimeout
			resp.ErrorCode = "TRANSPORT_TIMEOUT"
		} else {
			resp.ErrorKind = htngerr.KindConnection
			resp.ErrorCode = "TRANSPORT_ERROR"
		}
		resp.ErrorMessage = sendErr.Error()
		d.finish(ctx, job, cfg, messageID, startedAt, env, resp)
		return
	}

	resp := envelope.ParseResponse(raw, messageID, duration)
	d.finish(ctx, job, cfg, messageID, startedAt, env, resp)
}

// finish drives the sync-status transition for resp's outcome, records the
// circuit-breaker attempt, and publishes the message-log (and, on failure,
// error-log) events historylogd persists.
func (d *Dispatcher) finish(ctx context.Context, job scheduler.Job, cfg model.PropertyConfig, messageID string, startedAt time.Time, envelopeBytes []byte, resp *envelope.Response) {
	completedAt := d.now()
	status := model.MessageStatusCompleted
	if !resp.Success {
		status = model.MessageStatusFailed
	}

	var retryCount int
	_ = d.Store.WithLock(ctx, job.PropertyID, job.Kind, job.EntityType, job.EntityID, func(row *model.SyncStatus) error {
		if resp.Success {
			// A batch succeeds or fails as a unit, so every record in the
			// envelope counts as processed. Jobs rebuilt without a record
			// count (recovery) keep the row's previous totals.
			records := int64(job.RecordCount)
			if records == 0 {
				records = row.RecordsTotal
			}
			d.Machine.Complete(row, records, records)
		} else {
			d.Machine.Fail(row, resp.ErrorKind, resp.ErrorMessage)
		}
		retryCount = row.RetryCount
		return nil
	})

	d.Circuit.RecordAttempt(job.PropertyID, resp.ErrorKind == htngerr.KindAuthentication)

	entry := model.MessageLogEntry{
		MessageID:    messageID,
		Direction:    model.DirectionOutbound,
		Kind:         job.Kind,
		PropertyID:   job.PropertyID,
		HotelCode:    cfg.WSSEHotelCode,
		RequestBody:  string(envelopeBytes),
		ResponseBody: resp.Raw,
		Status:       status,
		ErrorKind:    string(resp.ErrorKind),
		ErrorMessage: resp.ErrorMessage,
		RetryCount:   retryCount,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		DurationMS:   resp.DurationMS,
		JobID:        job.ID,
	}
	d.Bus.PublishRaw(eventbus.MessageLogSubject, historylog.FromMessageLogEntry(entry))

	if !resp.Success {
		d.Bus.PublishRaw(eventbus.ErrorLogSubject, historylog.ErrorLogEvent{
			MessageID:          messageID,
			ErrorKind:          string(resp.ErrorKind),
			ErrorCode:          resp.ErrorCode,
			Severity:           string(resp.ErrorKind.DefaultSeverity()),
			Message:            resp.ErrorMessage,
			SourceContext:      fmt.Sprintf("outbound:%s:%d:%s:%s", job.Kind, job.PropertyID, job.EntityType, job.EntityID),
			CanRetry:           resp.ErrorKind.Retryable(),
			RecommendedDelayS:  int(resp.ErrorKind.DefaultDelay().Seconds()),
			ManualIntervention: !resp.ErrorKind.Retryable(),
		})
	}
}

func (d *Dispatcher) configFor(ctx context.Context, propertyID int64) (model.PropertyConfig, error) {
	if cfg, ok := d.Cache.Get(propertyID); ok {
		return cfg, nil
	}
	if d.Load == nil {
		return model.PropertyConfig{}, fmt.Errorf("outbound: no config loader configured")
	}
	cfg, err := d.Load(ctx, propertyID)
	if err != nil {
		return model.PropertyConfig{}, err
	}
	d.Cache.Put(cfg)
	return cfg, nil
}
