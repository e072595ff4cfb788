package outbound

import (
	"context"
	"log"
	"time"

	"htngsync/internal/htngxml"
	"htngsync/internal/model"
	"htngsync/internal/repository"
	"htngsync/internal/scheduler"
	"htngsync/internal/validation"
)

// Producer drains a repository.PMS change stream and turns it into
// pre-built, enqueued scheduler.Jobs.
// It is the write side scheduler/batch.go's chunk/DTO helpers were built for:
// batch.go assembles DTOs from PMS records, Producer is what calls it and
// feeds the result to a Dispatcher.
type Producer struct {
	PMS        repository.PMS
	Dispatcher *Dispatcher
	Rules      *validation.RuleSet // optional business-rule pass before building
	Now        func() time.Time
}

// checkInventory runs the business-rule pass for one assembled DTO when a
// RuleSet is configured. Validation failures halt the produce run; they are
// never retried.
func (p *Producer) checkInventory(ctx context.Context, propertyID int64, dto htngxml.InventoryDTO) error {
	if p.Rules == nil {
		return nil
	}
	return p.Rules.ValidateInventory(ctx, propertyID, dto)
}

func (p *Producer) checkRates(ctx context.Context, propertyID int64, dto htngxml.RatesDTO) error {
	if p.Rules == nil {
		return nil
	}
	return p.Rules.ValidateRates(ctx, propertyID, dto)
}

func (p *Producer) checkRestrictions(ctx context.Context, propertyID int64, dto htngxml.RestrictionsDTO) error {
	if p.Rules == nil {
		return nil
	}
	return p.Rules.ValidateRestrictions(ctx, propertyID, dto)
}

func (p *Producer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ProduceInventory streams changed inventory for propertyID since `since`,
// grouping same-mode records into batches and enqueueing one job per batch.
// mode determines EntityType/EntityID bookkeeping: a full sync uses the
// sentinel entity id "*" since it covers every room type at once.
func (p *Producer) ProduceInventory(ctx context.Context, propertyID int64, hotelCode string, since time.Time, mode htngxml.SyncMode, batchSize int) error {
	records, errs := p.PMS.IterateChangedInventory(ctx, propertyID, since)
	var buf []repository.ChangedInventoryRecord
	flush := func() error {
		for _, chunk := range scheduler.ChunkInventory(buf, batchSize) {
			dto := scheduler.BuildInventoryDTO(hotelCode, chunk)
			if err := p.checkInventory(ctx, propertyID, dto); err != nil {
				return err
			}
			payload, err := htngxml.BuildInventory(dto, htngxml.HeaderContext{HotelCode: hotelCode, Now: p.Now})
			if err != nil {
				return err
			}
			job := scheduler.Job{
				Queue:       scheduler.QueueOutbound,
				PropertyID:  propertyID,
				Kind:        model.KindInventory,
				EntityType:  "room_type",
				EntityID:    entityIDFor(mode, chunk[0].RoomTypeCode),
				Mode:        mode,
				Payload:     payload,
				RecordCount: len(chunk),
			}
			if err := p.Dispatcher.Enqueue(job); err != nil {
				return err
			}
		}
		buf = nil
		return nil
	}

	for rec := range records {
		if len(buf) > 0 && rec.Mode != buf[len(buf)-1].Mode {
			if err := flush(); err != nil {
				return err
			}
		}
		buf = append(buf, rec)
	}
	if err := flush(); err != nil {
		return err
	}
	if err := <-errs; err != nil {
		log.Printf("outbound: inventory stream error for property %d: %v", propertyID, err)
		return err
	}
	return nil
}

func entityIDFor(mode htngxml.SyncMode, code string) string {
	if mode == htngxml.SyncFullSync {
		return "*"
	}
	return code
}

// ProduceRates streams changed rate plans for propertyID, chunking to
// htngxml.MaxRatePlansPerEnvelope regardless of the requested
// batchSize.
func (p *Producer) ProduceRates(ctx context.Context, propertyID int64, hotelCode string, since time.Time, ratesMode htngxml.RatesMode, sync htngxml.SyncMode, batchSize int) error {
	records, errs := p.PMS.IterateChangedRates(ctx, propertyID, since)
	var buf []repository.ChangedRateRecord
	for rec := range records {
		buf = append(buf, rec)
	}
	for _, chunk := range scheduler.ChunkRates(buf, batchSize) {
		dto := scheduler.BuildRatesDTO(hotelCode, ratesMode, sync, chunk)
		if err := p.checkRates(ctx, propertyID, dto); err != nil {
			return err
		}
		payload, err := htngxml.BuildRates(dto, htngxml.HeaderContext{HotelCode: hotelCode, Now: p.Now})
		if err != nil {
			return err
		}
		job := scheduler.Job{
			Queue:       scheduler.QueueOutbound,
			PropertyID:  propertyID,
			Kind:        model.KindRates,
			EntityType:  "rate_plan",
			EntityID:    entityIDFor(sync, chunk[0].Plan.Code),
			Mode:        sync,
			Payload:     payload,
			RecordCount: len(chunk),
		}
		if err := p.Dispatcher.Enqueue(job); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		log.Printf("outbound: rates stream error for property %d: %v", propertyID, err)
		return err
	}
	return nil
}

// ProduceRestrictions streams changed booking restrictions for propertyID,
// mirroring ProduceInventory's batching shape.
func (p *Producer) ProduceRestrictions(ctx context.Context, propertyID int64, hotelCode string, since time.Time, mode htngxml.SyncMode, batchSize int) error {
	records, errs := p.PMS.IterateChangedRestrictions(ctx, propertyID, since)
	var buf []repository.ChangedRestrictionRecord
	for rec := range records {
		buf = append(buf, rec)
	}
	for _, chunk := range scheduler.ChunkRestrictions(buf, batchSize) {
		dto := scheduler.BuildRestrictionsDTO(hotelCode, chunk)
		if err := p.checkRestrictions(ctx, propertyID, dto); err != nil {
			return err
		}
		payload, err := htngxml.BuildRestrictions(dto, htngxml.HeaderContext{HotelCode: hotelCode, Now: p.Now})
		if err != nil {
			return err
		}
		job := scheduler.Job{
			Queue:       scheduler.QueueOutbound,
			PropertyID:  propertyID,
			Kind:        model.KindRestrictions,
			EntityType:  "restriction",
			EntityID:    entityIDFor(mode, ""),
			Mode:        mode,
			Payload:     payload,
			RecordCount: len(chunk),
		}
		if err := p.Dispatcher.Enqueue(job); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		log.Printf("outbound: restrictions stream error for property %d: %v", propertyID, err)
		return err
	}
	return nil
}
