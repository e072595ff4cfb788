package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCustomRuleSubstitutesFieldReferences(t *testing.T) {
	lookup := func(ref string) (interface{}, error) {
		switch ref {
		case "$.count":
			return float64(12), nil
		case "$.roomType":
			return "KING", nil
		}
		return nil, errUnknownRef(ref)
	}
	assert.True(t, EvaluateCustomRule(`$.count > 10 && $.roomType === "KING"`, lookup))
	assert.False(t, EvaluateCustomRule(`$.count > 100`, lookup))
}

func TestEvaluateCustomRuleFailsClosedOnUnresolvedReference(t *testing.T) {
	lookup := func(ref string) (interface{}, error) {
		return nil, errUnknownRef(ref)
	}
	assert.False(t, EvaluateCustomRule(`$.missing === "anything"`, lookup),
		"unresolved reference must fail closed")
}

type errUnknownRef string

func (e errUnknownRef) Error() string { return "unknown field reference: " + string(e) }
