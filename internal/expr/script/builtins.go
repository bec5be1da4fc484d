package script

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/internal/expr"
)

func (e *evalState) evalCall(c *call, depth int) (any, error) {
	args := make([]any, 0, len(c.args))
	for _, a := range c.args {
		v, err := e.eval(a, depth+1)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch c.name {
	case "now":
		return time.Now().UTC().Format(time.RFC3339), nil
	case "uuid":
		return uuid.NewString(), nil
	case "round", "floor", "ceil", "abs":
		return roundingFunc(e.expression, c.name, args)
	case "min", "max":
		return minMaxFunc(e.expression, c.name, args)
	case "length":
		return lengthFunc(args)
	case "first":
		return firstLastFunc(args, true)
	case "last":
		return firstLastFunc(args, false)
	case "coalesce":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	case "isEmpty":
		return isEmptyFunc(args), nil
	case "json.parse":
		return jsonParseFunc(e.expression, args)
	default:
		return nil, expr.NewExpressionError(e.expression, "unknown function %q", c.name)
	}
}

func roundingFunc(expression, name string, args []any) (any, error) {
	if len(args) != 1 {
		return nil, expr.NewExpressionError(expression, "%s() takes exactly one argument", name)
	}
	n, ok := asFloat(args[0])
	if !ok {
		return nil, expr.NewExpressionError(expression, "%s() requires a number", name)
	}
	switch name {
	case "round":
		return math.Round(n), nil
	case "floor":
		return math.Floor(n), nil
	case "ceil":
		return math.Ceil(n), nil
	default: // "abs"
		return math.Abs(n), nil
	}
}

func minMaxFunc(expression, name string, args []any) (any, error) {
	if len(args) == 0 {
		return nil, expr.NewExpressionError(expression, "%s() requires at least one argument", name)
	}
	best, ok := asFloat(args[0])
	if !ok {
		return nil, expr.NewExpressionError(expression, "%s() requires numbers", name)
	}
	for _, a := range args[1:] {
		n, ok := asFloat(a)
		if !ok {
			return nil, expr.NewExpressionError(expression, "%s() requires numbers", name)
		}
		if (name == "min" && n < best) || (name == "max" && n > best) {
			best = n
		}
	}
	return best, nil
}

func lengthFunc(args []any) (any, error) {
	if len(args) != 1 {
		return nil, expr.NewExpressionError("length", "length() takes exactly one argument")
	}
	switch t := args[0].(type) {
	case string:
		return float64(len([]rune(t))), nil
	case []any:
		return float64(len(t)), nil
	case map[string]any:
		return float64(len(t)), nil
	case nil:
		return float64(0), nil
	default:
		return float64(0), nil
	}
}

func firstLastFunc(args []any, first bool) (any, error) {
	if len(args) != 1 {
		return nil, expr.NewExpressionError("first/last", "takes exactly one argument")
	}
	arr, ok := args[0].([]any)
	if !ok || len(arr) == 0 {
		return nil, nil
	}
	if first {
		return arr[0], nil
	}
	return arr[len(arr)-1], nil
}

func isEmptyFunc(args []any) bool {
	if len(args) != 1 {
		return true
	}
	switch t := args[0].(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func jsonParseFunc(expression string, args []any) (any, error) {
	if len(args) != 1 {
		return nil, expr.NewExpressionError(expression, "json.parse() takes exactly one argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, expr.NewExpressionError(expression, "json.parse() requires a string")
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, expr.NewExpressionError(expression, "json.parse(): %v", err)
	}
	return v, nil
}
