// Package ids generates and validates the opaque identifiers the core wires
// through outbound/inbound messages: message identifiers and hotel codes.
package ids

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// messageIDPattern is the wire format: uppercase prefix, YYYYMMDD, HHMMSS,
// opaque alphanumeric suffix.
var messageIDPattern = regexp.MustCompile(`^[A-Z]+_\d{8}_\d{6}_[A-Za-z0-9]+$`)

// externalHotelCodePattern matches the channel's hotel code: 1-10 decimal digits.
var externalHotelCodePattern = regexp.MustCompile(`^\d{1,10}$`)

// internalHotelCodePattern matches the internal hotel code: 3-20 alphanumeric chars.
var internalHotelCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,20}$`)

// NewMessageID builds a message identifier of the form PREFIX_YYYYMMDD_HHMMSS_SUFFIX.
// prefix is upper-cased; the suffix is the first 12 hex characters of a random uuid.
func NewMessageID(prefix string, now time.Time) string {
	prefix = strings.ToUpper(prefix)
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return fmt.Sprintf("%s_%s_%s_%s", prefix, now.Format("20060102"), now.Format("150405"), suffix)
}

// ValidMessageID reports whether id matches the opaque message identifier format.
func ValidMessageID(id string) bool { return messageIDPattern.MatchString(id) }

// ValidExternalHotelCode reports whether code is a valid channel-side hotel code
// (1-10 decimal digits).
func ValidExternalHotelCode(code string) bool { return externalHotelCodePattern.MatchString(code) }

// ValidInternalHotelCode reports whether code is a valid internal hotel code
// (3-20 alphanumeric characters).
func ValidInternalHotelCode(code string) bool { return internalHotelCodePattern.MatchString(code) }
