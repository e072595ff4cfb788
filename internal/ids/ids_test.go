package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageIDMatchesPattern(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC)
	id := NewMessageID("htng", now)
	require.True(t, ValidMessageID(id), "generated id %q does not match expected pattern", id)
	assert.Equal(t, "HTNG_20250601_143005_", id[:len("HTNG_20250601_143005_")])
}

func TestValidMessageID(t *testing.T) {
	cases := map[string]bool{
		"HTNG_20250601_143005_ab12CD34": true,
		"htng_20250601_143005_ab12CD34": false,
		"HTNG_2025061_143005_ab12CD34":  false,
		"HTNG_20250601_14305_ab12CD34":  false,
		"HTNG_20250601_143005_":         false,
		"HTNG20250601_143005_ab12CD34":  false,
	}
	for id, want := range cases {
		assert.Equal(t, want, ValidMessageID(id), "ValidMessageID(%q)", id)
	}
}

func TestHotelCodeValidation(t *testing.T) {
	assert.True(t, ValidExternalHotelCode("001234"))
	assert.False(t, ValidExternalHotelCode("12345678901"), "11-digit code should be invalid")
	assert.False(t, ValidExternalHotelCode("ABC123"), "alphanumeric code is not valid externally")
	assert.True(t, ValidInternalHotelCode("ABC123"))
	assert.False(t, ValidInternalHotelCode("AB"), "too-short internal code should be invalid")
}
