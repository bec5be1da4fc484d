// Package expr implements the path, predicate, and interpolation
// evaluators the execution engine uses to resolve activity input mappings,
// transition conditions, and activity skip conditions. The optional
// scripted evaluator lives in the expr/script subpackage and is never
// touched by the engine itself — only activity handlers reach for it.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/flowforge/pkg/api"
)

// ResolvePath resolves a dotted reference against inst. Supported forms:
//
//   - "input.X.Y…", "state.X.Y…", "output.X.Y…" walk the corresponding map;
//     a missing intermediate or leaf key yields nil, never an error.
//   - A double-quoted string ("…") returns the literal content, unquoted.
//   - Otherwise the token is parsed as a number, then as a boolean
//     (true/false); if neither parses it is returned unchanged as a string.
func ResolvePath(inst *api.WorkflowInstance, path string) any {
	if path == "" {
		return nil
	}

	if strings.HasPrefix(path, `"`) && strings.HasSuffix(path, `"`) && len(path) >= 2 {
		return path[1 : len(path)-1]
	}

	root, rest, hasDot := cutFirst(path, '.')
	var base map[string]any
	switch root {
	case "input":
		base = inst.Input
	case "state":
		base = inst.State
	case "output":
		base = inst.Output
	default:
		return literal(path)
	}
	if !hasDot {
		// "input" alone, with no field selector: nothing to resolve to.
		return nil
	}
	return walk(base, rest)
}

// walk descends a dotted chain of keys through nested map[string]any
// values, returning nil on any missing intermediate or leaf key, and on any
// attempt to descend into a non-map value.
func walk(m map[string]any, dotted string) any {
	var cur any = m
	for _, key := range strings.Split(dotted, ".") {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := asMap[key]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// literal parses a bare token (neither a path reference nor a quoted
// string) as a number, then as a boolean, falling back to the raw token.
func literal(tok string) any {
	if n, err := strconv.ParseFloat(tok, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(tok); err == nil {
		return b
	}
	return tok
}

// cutFirst splits s at the first occurrence of sep, reporting whether sep
// was found.
func cutFirst(s string, sep byte) (before, after string, found bool) {
	idx := strings.IndexByte(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

// stringForm renders a resolved value the way the predicate evaluator's
// string-based operators compare it: nil as "", floats without a trailing
// ".0" where the value is integral, everything else via fmt-like defaults.
func stringForm(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
