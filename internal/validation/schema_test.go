package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htngsync/internal/model"
)

func TestSchemaCacheValidatesAgainstLoadedRules(t *testing.T) {
	calls := 0
	cache := NewSchemaCache(time.Hour, func(kind model.Kind) []SchemaRule {
		calls++
		return DefaultSchemaRules(kind)
	})

	body := []byte(`<OTA_HotelInvCountNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05"/>`)
	require.NoError(t, cache.Validate(context.Background(), model.KindInventory, body, time.Second))
	require.NoError(t, cache.Validate(context.Background(), model.KindInventory, body, time.Second))
	assert.Equal(t, 1, calls, "second validation should reuse the cached rule set")
}

func TestSchemaCacheRejectsMissingRootElement(t *testing.T) {
	cache := NewSchemaCache(time.Hour, func(kind model.Kind) []SchemaRule {
		return DefaultSchemaRules(kind)
	})
	body := []byte(`<OTA_HotelRateAmountNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05"/>`)
	err := cache.Validate(context.Background(), model.KindInventory, body, time.Second)
	require.Error(t, err, "wrong root element for the kind must fail")
}

func TestSchemaCacheClearForcesReload(t *testing.T) {
	calls := 0
	cache := NewSchemaCache(time.Hour, func(kind model.Kind) []SchemaRule {
		calls++
		return DefaultSchemaRules(kind)
	})
	body := []byte(`<OTA_HotelInvCountNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05"/>`)
	_ = cache.Validate(context.Background(), model.KindInventory, body, time.Second)
	cache.Clear()
	_ = cache.Validate(context.Background(), model.KindInventory, body, time.Second)
	assert.Equal(t, 2, calls, "Clear should force the loader to run again")
}
