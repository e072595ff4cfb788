package mapping

import (
	"fmt"
	"net/url"

	"htngsync/internal/ids"
	"htngsync/internal/model"
)

// Default sync settings applied by FixConfig when a stored value is out of
// range.
const (
	DefaultBatchSize       = 100
	DefaultRetryAttempts   = 3
	DefaultIntervalSeconds = 3600
)

// ValidateConfig checks one property configuration against the field rules
// the rest of the core assumes hold: credentials present, a well-formed WSSE
// hotel code, a parseable endpoint override, and sync settings in range.
// Returns one message per problem; an empty slice means valid.
func ValidateConfig(cfg model.PropertyConfig) []string {
	var problems []string

	if cfg.PropertyID <= 0 {
		problems = append(problems, fmt.Sprintf("property id %d is not positive", cfg.PropertyID))
	}
	if cfg.Username == "" {
		problems = append(problems, "username is empty")
	}
	if cfg.Password == "" {
		problems = append(problems, "password is empty")
	}
	if !ids.ValidExternalHotelCode(cfg.WSSEHotelCode) {
		problems = append(problems, fmt.Sprintf("WSSE hotel code %q is not 1-10 decimal digits", cfg.WSSEHotelCode))
	}
	if cfg.EndpointOverride != "" {
		u, err := url.Parse(cfg.EndpointOverride)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("endpoint override %q is not an absolute URL", cfg.EndpointOverride))
		}
	}
	if cfg.Sync.BatchSize < 0 {
		problems = append(problems, fmt.Sprintf("batch size %d is negative", cfg.Sync.BatchSize))
	}
	if cfg.Sync.RetryAttempts < 0 {
		problems = append(problems, fmt.Sprintf("retry attempts %d is negative", cfg.Sync.RetryAttempts))
	}
	if cfg.Sync.IntervalSeconds < 0 {
		problems = append(problems, fmt.Sprintf("interval %ds is negative", cfg.Sync.IntervalSeconds))
	}
	return problems
}

// FixConfig replaces out-of-range sync settings with defaults, returning a
// description of each fix applied. Credential and hotel-code problems cannot
// be fixed automatically; they stay for the operator.
func FixConfig(cfg *model.PropertyConfig) []string {
	var fixes []string
	if cfg.Sync.BatchSize <= 0 {
		fixes = append(fixes, fmt.Sprintf("batch size %d -> %d", cfg.Sync.BatchSize, DefaultBatchSize))
		cfg.Sync.BatchSize = DefaultBatchSize
	}
	if cfg.Sync.RetryAttempts < 0 {
		fixes = append(fixes, fmt.Sprintf("retry attempts %d -> %d", cfg.Sync.RetryAttempts, DefaultRetryAttempts))
		cfg.Sync.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.Sync.IntervalSeconds < 0 {
		fixes = append(fixes, fmt.Sprintf("interval %ds -> %ds", cfg.Sync.IntervalSeconds, DefaultIntervalSeconds))
		cfg.Sync.IntervalSeconds = DefaultIntervalSeconds
	}
	return fixes
}
