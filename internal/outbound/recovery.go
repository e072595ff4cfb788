package outbound

import (
	"context"
	"log"
	"time"
)

// DefaultRecoveryInterval is how often RunRecovery rescans for due retries.
// It also doubles as the startup recovery pass's own loop period once the
// initial scan has run once immediately.
const DefaultRecoveryInterval = 30 * time.Second

// RunRecovery scans syncstate.Store.ListDue on an interval, re-enqueuing a
// job for every row whose next_retry_at has elapsed. It performs one scan
// immediately before entering the loop so that retries scheduled before a
// restart are picked back up without waiting a full interval. It returns when ctx is cancelled.
func (d *Dispatcher) RunRecovery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if d.Rebuild == nil {
		log.Printf("outbound: recovery disabled, no Rebuilder configured")
		return
	}

	d.recoverDue(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-ticker.C:
			d.recoverDue(ctx)
		}
	}
}

func (d *Dispatcher) recoverDue(ctx context.Context) {
	rows, err := d.Store.ListDue(ctx, d.now())
	if err != nil {
		log.Printf("outbound: recovery scan failed: %v", err)
		return
	}
	for _, row := range rows {
		job, err := d.Rebuild(ctx, row)
		if err != nil {
			log.Printf("outbound: rebuild job for %s/%s/%s/%s failed: %v",
				row.Kind, row.EntityType, row.EntityID, row.State, err)
			continue
		}
		if err := d.Enqueue(job); err != nil {
			log.Printf("outbound: re-enqueue recovered job failed: %v", err)
		}
	}
}
