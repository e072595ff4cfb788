// Package htngerr implements the HTNG sync core's error taxonomy: a closed
// set of error kinds with fixed retry semantics, plus the classifier that
// derives a kind from an HTNG error code and/or message text.
package htngerr

import "time"

// Kind is the closed set of error classifications the core distinguishes.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindBusinessLogic  Kind = "business_logic"
	KindSOAPXML        Kind = "soap_xml"
	KindConnection     Kind = "connection"
	KindTimeout        Kind = "timeout"
	KindRateLimit      Kind = "rate_limit"
	KindWarning        Kind = "warning"
	KindUnknown        Kind = "unknown"
)

// Severity mirrors the error_log severity column.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// policy is the fixed retry/backoff/severity table per kind.
type policy struct {
	retryable   bool
	delay       time.Duration
	severity    Severity
}

var policies = map[Kind]policy{
	KindAuthentication: {retryable: false, severity: SeverityCritical},
	KindValidation:     {retryable: false, severity: SeverityHigh},
	KindBusinessLogic:  {retryable: false, severity: SeverityHigh},
	KindSOAPXML:        {retryable: false, severity: SeverityMedium},
	KindConnection:     {retryable: true, delay: 30 * time.Second, severity: SeverityMedium},
	KindTimeout:        {retryable: true, delay: 60 * time.Second, severity: SeverityMedium},
	KindRateLimit:      {retryable: true, delay: 120 * time.Second, severity: SeverityMedium},
	KindWarning:        {retryable: false, severity: SeverityLow},
	KindUnknown:        {retryable: true, delay: 60 * time.Second, severity: SeverityMedium},
}

// Retryable reports whether k is retryable per the fixed policy table.
func (k Kind) Retryable() bool { return policies[k].retryable }

// DefaultDelay returns the base retry delay for k (zero for non-retryable kinds).
func (k Kind) DefaultDelay() time.Duration { return policies[k].delay }

// DefaultSeverity returns the fixed severity for k.
func (k Kind) DefaultSeverity() Severity { return policies[k].severity }

// Error is the error value every fallible core operation returns on failure.
// It carries enough structure for the error log and for retry decisions
// without string-sniffing downstream.
type Error struct {
	Kind             Kind
	Code             string
	Message          string
	Severity         Severity
	CanRetry         bool
	RetryDelay       time.Duration
	Cause            error
}

// New builds an Error, deriving CanRetry/Severity/RetryDelay from kind unless
// explicitly set to a non-zero override by the caller afterward.
func New(kind Kind, code, message string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Code:       code,
		Message:    message,
		Severity:   kind.DefaultSeverity(),
		CanRetry:   kind.Retryable(),
		RetryDelay: kind.DefaultDelay(),
		Cause:      cause,
	}
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }
