// Package htngxml serializes domain DTOs to HTNG/OTA payload XML and parses
// incoming HTNG/OTA XML back to DTOs, one builder/parser pair per message
// kind. Builders validate their own preconditions before
// serializing; violations are returned as htngerr.KindValidation errors so
// the caller never has to inspect the XML to find out why a build failed.
//
// Parsing matches on local element names only, tolerating the namespace
// prefix variants real channels send.
package htngxml

import (
	"fmt"
	"time"

	"htngsync/internal/htngerr"
)

// HeaderContext carries the values every builder needs that are not part of
// the domain DTO itself: the hotel code (destination system identity) and a
// clock, so date-range validation is deterministic in tests.
type HeaderContext struct {
	HotelCode string
	Now       func() time.Time
}

func (h HeaderContext) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// DateLayout is the OTA date format used throughout (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// validationErrors accumulates rule violations the way the business-rule
// pass does: collected, then joined into one multi-line
// htngerr.Error rather than failing fast on the first violation.
type validationErrors struct {
	messages []string
}

func (v *validationErrors) add(format string, args ...interface{}) {
	v.messages = append(v.messages, fmt.Sprintf(format, args...))
}

func (v *validationErrors) err(code string) error {
	if len(v.messages) == 0 {
		return nil
	}
	joined := v.messages[0]
	for _, m := range v.messages[1:] {
		joined += "\n" + m
	}
	return htngerr.New(htngerr.KindValidation, code, joined, nil)
}

// checkDateRange enforces the shared inventory/restrictions date-range
// bound: at most 365 days span, at most 730 days ahead of now.
func checkDateRange(v *validationErrors, label string, start, end, now time.Time) {
	if end.Before(start) {
		v.add("%s: end date %s is before start date %s", label, end.Format(DateLayout), start.Format(DateLayout))
		return
	}
	span := end.Sub(start)
	if span > 365*24*time.Hour {
		v.add("%s: date range spans %d days, exceeds maximum of 365", label, int(span.Hours()/24))
	}
	daysAhead := start.Sub(now)
	if daysAhead > 730*24*time.Hour {
		v.add("%s: start date is %d days ahead, exceeds maximum of 730", label, int(daysAhead.Hours()/24))
	}
}
