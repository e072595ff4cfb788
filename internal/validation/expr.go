package validation

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/dop251/goja"
)

// fieldRefPattern matches a JSONPath-lite field reference like
// $.records[0].count within a custom rule expression.
var fieldRefPattern = regexp.MustCompile(`\$\.[a-zA-Z0-9_.\[\]]+`)

// FieldLookup resolves a JSONPath-lite reference to a value from a DTO
// snapshot. Returns an error when the reference cannot be resolved.
type FieldLookup func(ref string) (interface{}, error)

// EvaluateCustomRule runs a per-property custom business-rule expression:
// substitute resolved field references as JSON literals, then run the
// resulting boolean JS expression in a fresh goja VM. A resolution failure or
// a JS error is treated as the rule evaluating to false (fail closed) rather
// than panicking the validation pipeline.
func EvaluateCustomRule(expr string, lookup FieldLookup) bool {
	replaced := fieldRefPattern.ReplaceAllStringFunc(expr, func(token string) string {
		val, err := lookup(token)
		if err != nil {
			return "undefined"
		}
		return literalFor(val)
	})

	vm := goja.New()
	result, err := vm.RunString(replaced)
	if err != nil {
		return false
	}
	return result.ToBoolean()
}

func literalFor(val interface{}) string {
	switch v := val.(type) {
	case string:
		b, _ := json.Marshal(v)
		return string(b)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "null"
		}
		return string(b)
	}
}
