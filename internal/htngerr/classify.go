package htngerr

import "strings"

// Classify derives an error kind deterministically: first by HTNG
// error-code prefix, then by well-known opaque codes,
// then by case-insensitive substring match on the message, and finally
// KindUnknown. The mapping is a pure function of (code, message) — tests
// pin every branch.
func Classify(code, message string) Kind {
	if kind, ok := classifyByPrefix(code); ok {
		return kind
	}
	if kind, ok := classifyByOpaqueCode(code); ok {
		return kind
	}
	if kind, ok := classifyByMessage(message); ok {
		return kind
	}
	return KindUnknown
}

// codePrefixes is the HTNG error-code-prefix table. Order does not matter:
// prefixes are mutually exclusive by construction.
var codePrefixes = map[string]Kind{
	"AUT": KindAuthentication,
	"VAL": KindValidation,
	"SYS": KindSOAPXML,
	"BUS": KindBusinessLogic,
	"CON": KindConnection,
	"LIM": KindRateLimit,
}

func classifyByPrefix(code string) (Kind, bool) {
	if len(code) < 3 {
		return "", false
	}
	prefix := strings.ToUpper(code[:3])
	kind, ok := codePrefixes[prefix]
	return kind, ok
}

// opaqueCodes are well-known sentinel codes that do not follow the prefix
// convention but still map deterministically to a kind.
var opaqueCodes = map[string]Kind{
	"EMPTY_RESPONSE":  KindSOAPXML,
	"XML_PARSE_ERROR": KindSOAPXML,
	"SOAP_FAULT":      KindSOAPXML,
}

func classifyByOpaqueCode(code string) (Kind, bool) {
	kind, ok := opaqueCodes[strings.ToUpper(code)]
	return kind, ok
}

// messageRules is evaluated in this fixed order: authentication, then
// validation, then timeout, then connection, then rate_limit, then soap_xml.
// First match wins, so more specific substrings must be checked before more
// general ones (e.g. "timeout" before "connect").
var messageRules = []struct {
	kind       Kind
	substrings []string
}{
	{KindAuthentication, []string{"authentica", "credential", "access denied"}},
	{KindValidation, []string{"valid", "required field", "format"}},
	{KindTimeout, []string{"timeout"}},
	{KindConnection, []string{"connect"}},
	{KindRateLimit, []string{"limit", "too many"}},
	{KindSOAPXML, []string{"xml", "soap", "parse"}},
}

func classifyByMessage(message string) (Kind, bool) {
	lower := strings.ToLower(message)
	for _, rule := range messageRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.kind, true
			}
		}
	}
	return "", false
}
