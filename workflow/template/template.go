// Package template implements the `{{path.to.value}}` resolver used to
// materialize node configuration against upstream outputs.
//
// text/template's delimiters can't leave an unresolved `{{...}}` as a
// literal in the output — a missing key either errors or renders the
// zero value — and the resolver must satisfy render(render(s, in), in)
// == render(s, in), so this is hand-rolled.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// pathExpr matches a single `{{dotted.path}}` placeholder, capturing the
// dotted path without the braces.
var pathExpr = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\[\]]+)\s*\}\}`)

// Render resolves every `{{path}}` placeholder found in value against
// inputs. Strings are substituted textually; arrays and objects are
// recursed into; numbers, booleans, and nil pass through unchanged.
// Unresolved paths are left as the literal placeholder text.
func Render(value any, inputs map[string]any) any {
	switch v := value.(type) {
	case string:
		return renderString(v, inputs)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Render(item, inputs)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Render(item, inputs)
		}
		return out
	default:
		return v
	}
}

// renderString substitutes every placeholder in s. If s is *exactly* one
// placeholder (no surrounding text), the resolved value's native type is
// returned (so `{{n}}` resolving to a number produces a number, not a
// stringified one); otherwise each placeholder is stringified and spliced
// into the surrounding text.
func renderString(s string, inputs map[string]any) any {
	if m := pathExpr.FindStringSubmatch(s); m != nil && m[0] == s {
		if resolved, ok := lookup(m[1], inputs); ok {
			return resolved
		}
		return s
	}

	return pathExpr.ReplaceAllStringFunc(s, func(match string) string {
		sub := pathExpr.FindStringSubmatch(match)
		path := sub[1]
		resolved, ok := lookup(path, inputs)
		if !ok {
			return match
		}
		return Stringify(resolved)
	})
}

// lookup resolves a dotted path (`a.b.c`) against inputs. A path segment
// of the form `name[idx]` indexes into an array-shaped value under name.
func lookup(path string, inputs map[string]any) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = inputs
	for _, seg := range segments {
		name, idx, hasIdx := splitIndex(seg)
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[name]
		if !ok {
			return nil, false
		}
		if hasIdx {
			arr, ok := next.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			next = arr[idx]
		}
		current = next
	}
	return current, true
}

// splitIndex splits a segment like "items[2]" into ("items", 2, true), or
// returns (seg, 0, false) if it has no index suffix.
func splitIndex(seg string) (name string, idx int, hasIdx bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], n, true
}

// Stringify renders a resolved value the same way for every call site
// that needs a string form of a template value (the template engine
// itself, and handlers that splice resolved values into text, such as
// EMAIL subjects).
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
