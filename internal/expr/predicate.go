package expr

import (
	"strconv"
	"strings"

	"github.com/flowforge/flowforge/pkg/api"
)

// EvaluatePredicate evaluates expr, a string of three whitespace-separated
// tokens "LHS OP RHS", against inst. Fewer than three tokens is treated as
// unconditional and evaluates to true. LHS and RHS are resolved via
// ResolvePath before the operator is applied.
func EvaluatePredicate(inst *api.WorkflowInstance, expr string) bool {
	tokens := strings.Fields(expr)
	if len(tokens) < 3 {
		return true
	}

	lhs := ResolvePath(inst, tokens[0])
	op := tokens[1]
	rhs := ResolvePath(inst, tokens[2])

	switch op {
	case "==":
		return stringForm(lhs) == stringForm(rhs)
	case "!=":
		return stringForm(lhs) != stringForm(rhs)
	case "<", "<=", ">", ">=":
		l, lok := asFloat(lhs)
		r, rok := asFloat(rhs)
		if !lok || !rok {
			return false
		}
		switch op {
		case "<":
			return l < r
		case "<=":
			return l <= r
		case ">":
			return l > r
		default:
			return l >= r
		}
	case "contains":
		return strings.Contains(stringForm(lhs), stringForm(rhs))
	case "startsWith":
		return strings.HasPrefix(stringForm(lhs), stringForm(rhs))
	case "endsWith":
		return strings.HasSuffix(stringForm(lhs), stringForm(rhs))
	default:
		return false
	}
}

// asFloat reports whether v is a number, or a string that parses as one.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
