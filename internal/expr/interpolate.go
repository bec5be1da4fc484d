package expr

import (
	"strings"

	"github.com/flowforge/flowforge/pkg/api"
)

// Interpolate rewrites tpl by substituting each "${path}" placeholder with
// the string form of ResolvePath(inst, path); a path that resolves to nil
// substitutes the empty string. An unmatched "${" (no closing brace)
// terminates scanning and everything from that point is copied through
// unchanged.
func Interpolate(inst *api.WorkflowInstance, tpl string) string {
	var b strings.Builder
	rest := tpl
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.IndexByte(rest[start+2:], '}')
		if end < 0 {
			// Unmatched "${": copy the remainder verbatim and stop.
			b.WriteString(rest)
			return b.String()
		}
		end += start + 2

		b.WriteString(rest[:start])
		path := rest[start+2 : end]
		b.WriteString(stringForm(ResolvePath(inst, path)))
		rest = rest[end+1:]
	}
}
