package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htngsync/internal/model"
)

func validConfig() model.PropertyConfig {
	return model.PropertyConfig{
		PropertyID:    1,
		Username:      "hotel1",
		Password:      "secret",
		WSSEHotelCode: "001234",
		Sync:          model.SyncSettings{BatchSize: 100, RetryAttempts: 3, IntervalSeconds: 3600},
	}
}

func TestValidateConfigAcceptsValidConfig(t *testing.T) {
	assert.Empty(t, ValidateConfig(validConfig()))
}

func TestValidateConfigCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Username = ""
	cfg.Password = ""
	cfg.WSSEHotelCode = "NOT-DIGITS"
	cfg.EndpointOverride = "not a url"
	problems := ValidateConfig(cfg)
	require.Len(t, problems, 4)
}

func TestValidateConfigRejectsNegativeSyncSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.BatchSize = -1
	cfg.Sync.RetryAttempts = -1
	cfg.Sync.IntervalSeconds = -1
	assert.Len(t, ValidateConfig(cfg), 3)
}

func TestFixConfigAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.BatchSize = 0
	cfg.Sync.RetryAttempts = -1
	fixes := FixConfig(&cfg)
	require.Len(t, fixes, 2)
	assert.Equal(t, DefaultBatchSize, cfg.Sync.BatchSize)
	assert.Equal(t, DefaultRetryAttempts, cfg.Sync.RetryAttempts)
	assert.Equal(t, 3600, cfg.Sync.IntervalSeconds, "in-range settings are untouched")
}

func TestFixConfigCannotFixCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Password = ""
	assert.Empty(t, FixConfig(&cfg))
	assert.Len(t, ValidateConfig(cfg), 1, "credential problems remain for the operator")
}
