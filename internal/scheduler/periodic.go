package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"htngsync/internal/model"
)

// FullSyncFunc enqueues a full-sync job for one (property, kind) stream.
// Implemented by the outbound scheduler's queue submission path.
type FullSyncFunc func(ctx context.Context, propertyID int64, kind model.Kind) error

// PeriodicTrigger fires full-sync jobs on a cron schedule per property. A
// full sync covers every applicable record rather than only changes since
// last_success, so a stream that drifted (missed events, channel-side
// resets) converges again on the next tick.
type PeriodicTrigger struct {
	scheduler *cron.Cron
	enqueue   FullSyncFunc
}

// NewPeriodicTrigger builds a PeriodicTrigger that calls enqueue on every tick.
func NewPeriodicTrigger(enqueue FullSyncFunc) *PeriodicTrigger {
	return &PeriodicTrigger{scheduler: cron.New(cron.WithSeconds()), enqueue: enqueue}
}

// Schedule registers a full-sync tick for (propertyID, kind) at cronExpr
// (a six-field robfig expression with a leading seconds field, or a
// descriptor such as "@every 30s"), returning the entry id so
// the caller can later Remove it (e.g. on mapping deactivation).
func (p *PeriodicTrigger) Schedule(cronExpr string, propertyID int64, kind model.Kind) (cron.EntryID, error) {
	return p.scheduler.AddFunc(cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.enqueue(ctx, propertyID, kind); err != nil {
			log.Printf("scheduler: periodic full-sync enqueue failed for property %d kind %s: %v", propertyID, kind, err)
		}
	})
}

// Remove cancels a previously scheduled tick.
func (p *PeriodicTrigger) Remove(id cron.EntryID) { p.scheduler.Remove(id) }

// Start begins running scheduled ticks in the background.
func (p *PeriodicTrigger) Start() { p.scheduler.Start() }

// Stop halts the scheduler, waiting for any in-flight tick to finish.
func (p *PeriodicTrigger) Stop() {
	ctx := p.scheduler.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		log.Printf("scheduler: periodic trigger timed out waiting for in-flight tick")
	}
}
