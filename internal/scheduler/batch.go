package scheduler

import (
	"htngsync/internal/htngxml"
	"htngsync/internal/model"
	"htngsync/internal/repository"
)

// DefaultBatchSize is the default aggregation cap.
const DefaultBatchSize = 100

// BatchSizeFor returns the effective chunk size for kind: the operator's
// configured batchSize, bounded above by any per-kind XML limit (only rates
// currently has one narrower than the default batch size).
func BatchSizeFor(kind model.Kind, batchSize int) int {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if kind == model.KindRates && batchSize > htngxml.MaxRatePlansPerEnvelope {
		return htngxml.MaxRatePlansPerEnvelope
	}
	return batchSize
}

// ChunkInventory groups changed inventory records into envelope-sized
// slices of at most size records each.
func ChunkInventory(records []repository.ChangedInventoryRecord, size int) [][]repository.ChangedInventoryRecord {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]repository.ChangedInventoryRecord
	for len(records) > 0 {
		n := size
		if n > len(records) {
			n = len(records)
		}
		out = append(out, records[:n])
		records = records[n:]
	}
	return out
}

// ChunkRates groups changed rate-plan records into envelope-sized slices,
// bounded by htngxml.MaxRatePlansPerEnvelope.
func ChunkRates(records []repository.ChangedRateRecord, size int) [][]repository.ChangedRateRecord {
	size = BatchSizeFor(model.KindRates, size)
	var out [][]repository.ChangedRateRecord
	for len(records) > 0 {
		n := size
		if n > len(records) {
			n = len(records)
		}
		out = append(out, records[:n])
		records = records[n:]
	}
	return out
}

// ChunkRestrictions groups changed restriction records into envelope-sized
// slices of at most size records each.
func ChunkRestrictions(records []repository.ChangedRestrictionRecord, size int) [][]repository.ChangedRestrictionRecord {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]repository.ChangedRestrictionRecord
	for len(records) > 0 {
		n := size
		if n > len(records) {
			n = len(records)
		}
		out = append(out, records[:n])
		records = records[n:]
	}
	return out
}

// BuildInventoryDTO assembles an htngxml.InventoryDTO from one chunk of
// changed records, inferring the envelope mode from whichever individual
// record mode is present (records within a single chunk always share a
// mode — the caller groups by mode before chunking).
func BuildInventoryDTO(hotelCode string, chunk []repository.ChangedInventoryRecord) htngxml.InventoryDTO {
	dto := htngxml.InventoryDTO{HotelCode: hotelCode}
	if len(chunk) > 0 {
		dto.Mode = chunk[0].Mode
	}
	for _, c := range chunk {
		dto.Records = append(dto.Records, c.Record)
	}
	return dto
}

// BuildRatesDTO assembles an htngxml.RatesDTO from one chunk of changed rate
// plans. mode and sync are envelope-level: RatePlan itself
// carries no per-plan operation.
func BuildRatesDTO(hotelCode string, mode htngxml.RatesMode, sync htngxml.SyncMode, chunk []repository.ChangedRateRecord) htngxml.RatesDTO {
	dto := htngxml.RatesDTO{HotelCode: hotelCode, Mode: mode, Sync: sync}
	for _, c := range chunk {
		dto.Plans = append(dto.Plans, c.Plan)
	}
	return dto
}

// BuildRestrictionsDTO assembles an htngxml.RestrictionsDTO from one chunk of
// changed restriction records.
func BuildRestrictionsDTO(hotelCode string, chunk []repository.ChangedRestrictionRecord) htngxml.RestrictionsDTO {
	dto := htngxml.RestrictionsDTO{HotelCode: hotelCode}
	for _, c := range chunk {
		dto.Records = append(dto.Records, c.Record)
	}
	return dto
}
