package mapping

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"htngsync/internal/eventbus"
	"htngsync/internal/model"
)

// ChangedSubject carries mapping lifecycle events. Subscribers — the config cache
// invalidator and, elsewhere, the sync-status activation/deactivation
// handler — are ordinary observers, never lifecycle hooks embedded in Store
// itself.
const ChangedSubject = "htng.mapping.changed"

// ChangedEvent is the payload published on ChangedSubject.
type ChangedEvent struct {
	Kind               model.Kind `json:"kind"` // mapping_created | mapping_updated | mapping_deleted
	InternalPropertyID int64      `json:"internal_property_id"`
	ExternalHotelCode  string     `json:"external_hotel_code"`
	Active             bool       `json:"active"`
	HotelCodeChanged   bool       `json:"hotel_code_changed"`
}

// PublishChanged emits a mapping lifecycle event on bus.
func PublishChanged(bus *eventbus.Bus, ev ChangedEvent) {
	bus.PublishRaw(ChangedSubject, ev)
}

// SubscribeInvalidation registers a subscription that clears cache's entry
// for the affected property on every mapping change. Mapping events are the
// only invalidation path; there is no TTL.
func SubscribeInvalidation(bus *eventbus.Bus, cache *ConfigCache) (*nats.Subscription, error) {
	return bus.Subscribe(ChangedSubject, func(msg *nats.Msg) {
		var ev ChangedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("mapping: failed to parse mapping-changed event: %v", err)
			return
		}
		cache.Invalidate(ev.InternalPropertyID)
		log.Printf("mapping: invalidated config cache for property %d (%s)", ev.InternalPropertyID, ev.Kind)
	})
}
