package validation

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"htngsync/internal/htngerr"
	"htngsync/internal/model"
)

// rootElementFor maps a message kind to the OTA root element its body must
// carry.
var rootElementFor = map[model.Kind]string{
	model.KindInventory:    "OTA_HotelInvCountNotifRQ",
	model.KindRates:        "OTA_HotelRateAmountNotifRQ",
	model.KindReservation:  "OTA_HotelResNotifRQ",
	model.KindRestrictions: "OTA_HotelAvailNotifRQ",
	model.KindGroupBlock:   "OTA_HotelInvBlockNotifRQ",
}

// DefaultSchemaRules returns the structural schema pass for kind: the body
// must be well-formed enough to contain the kind's expected root element and
// the OTA namespace declaration. See schema.go's SchemaRule doc comment for
// why this stands in for real XSD validation.
func DefaultSchemaRules(kind model.Kind) []SchemaRule {
	root, ok := rootElementFor[kind]
	if !ok {
		return nil
	}
	return []SchemaRule{
		func(k model.Kind, body []byte) error {
			if !bytes.Contains(body, []byte(root)) {
				return fmt.Errorf("schema: expected root element %s not found", root)
			}
			return nil
		},
		func(k model.Kind, body []byte) error {
			if !bytes.Contains(body, []byte("opentravel.org")) {
				return fmt.Errorf("schema: missing OTA namespace declaration")
			}
			return nil
		},
	}
}

// Pipeline holds the two validation passes: schema, then business rule.
// ValidateBody runs only the schema pass; Pipeline has no method that runs
// Rules, so the caller invokes the RuleSet's per-kind Validate methods.
// Outbound policy and inbound policy are identical here —
// the distinction lives in the caller, which turns an inbound failure into a
// SOAP fault and an outbound failure into a halted sync-status transition.
type Pipeline struct {
	Schema         *SchemaCache
	Rules          *RuleSet
	SchemaTimeout  time.Duration
}

// NewPipeline builds a validation pipeline. schemaTimeout <= 0 uses
// MaxSchemaTimeout.
func NewPipeline(schema *SchemaCache, rules *RuleSet, schemaTimeout time.Duration) *Pipeline {
	if schemaTimeout <= 0 {
		schemaTimeout = MaxSchemaTimeout
	}
	return &Pipeline{Schema: schema, Rules: rules, SchemaTimeout: schemaTimeout}
}

// ValidateBody runs only the schema pass against a serialized body. Used on
// inbound envelopes before they are parsed, and on outbound bodies after
// they are built but before the envelope wraps them.
func (p *Pipeline) ValidateBody(ctx context.Context, kind model.Kind, body []byte) error {
	if err := p.Schema.Validate(ctx, kind, body, p.SchemaTimeout); err != nil {
		return htngerr.New(htngerr.KindValidation, "VAL_SCHEMA", "schema validation failed: "+err.Error(), err)
	}
	return nil
}
