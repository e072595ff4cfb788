package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"htngsync/internal/model"
)

func TestPipelineValidateBodyAcceptsWellFormedPayload(t *testing.T) {
	p := NewPipeline(
		NewSchemaCache(time.Hour, DefaultSchemaRules),
		NewRuleSet(newFakePMS(), 0, 0),
		0,
	)
	body := []byte(`<OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05"/>`)
	require.NoError(t, p.ValidateBody(context.Background(), model.KindReservation, body))
}

func TestPipelineValidateBodyRejectsMismatchedKind(t *testing.T) {
	p := NewPipeline(
		NewSchemaCache(time.Hour, DefaultSchemaRules),
		NewRuleSet(newFakePMS(), 0, 0),
		0,
	)
	body := []byte(`<OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05"/>`)
	require.Error(t, p.ValidateBody(context.Background(), model.KindInventory, body))
}
