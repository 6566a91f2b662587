// Package transform applies Cubicler's declarative, path-based payload
// transforms (map, template, date_format, remove) to JSON-shaped values
// (spec §4.3).
package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which transform a Rule applies.
type Kind string

// Supported transform kinds.
const (
	KindMap        Kind = "map"
	KindTemplate   Kind = "template"
	KindDateFormat Kind = "date_format"
	KindRemove     Kind = "remove"
)

// Rule describes one transform step applied at a dotted path.
type Rule struct {
	Path      string         `json:"path"`
	Transform Kind           `json:"transform"`
	Map       map[string]any `json:"map,omitempty"`
	Template  string         `json:"template,omitempty"`
	Format    string         `json:"format,omitempty"`
}

// Apply runs all rules, in order, against value and returns the transformed
// result. The transformer is pure: value is never mutated in place; a new
// tree is returned. Missing paths are silently skipped.
func Apply(value any, rules []Rule) any {
	current := value
	for _, rule := range rules {
		current = applyRule(current, rule)
	}
	return current
}

func applyRule(value any, rule Rule) any {
	segments := splitPath(rule.Path)
	if len(segments) == 0 {
		return value
	}
	result, _ := walk(value, segments, rule)
	return result
}

// walk recurses down the path, applying the rule at the leaf. The bool
// return reports whether the path existed (used so "each of array" [] can
// skip elements without the key).
func walk(value any, segments []string, rule Rule) (any, bool) {
	seg := segments[0]
	rest := segments[1:]

	if seg == "[]" {
		arr, ok := value.([]any)
		if !ok {
			return value, false
		}
		out := make([]any, len(arr))
		copy(out, arr)
		for i, elem := range arr {
			if len(rest) == 0 {
				out[i] = transformLeaf(elem, rule)
				continue
			}
			newElem, _ := walk(elem, rest, rule)
			out[i] = newElem
		}
		return out, true
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return value, false
	}
	existing, present := obj[seg]
	if !present {
		return value, false
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}

	if len(rest) == 0 {
		if rule.Transform == KindRemove {
			delete(out, seg)
			return out, true
		}
		out[seg] = transformLeaf(existing, rule)
		return out, true
	}

	newChild, changed := walk(existing, rest, rule)
	if !changed {
		return value, false
	}
	out[seg] = newChild
	return out, true
}

func transformLeaf(value any, rule Rule) any {
	switch rule.Transform {
	case KindMap:
		key := stringify(value)
		if mapped, ok := rule.Map[key]; ok {
			return mapped
		}
		return value
	case KindTemplate:
		return expandTemplate(rule.Template, value)
	case KindDateFormat:
		return formatDate(stringify(value), rule.Format, value)
	default:
		return value
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// expandTemplate substitutes "{value.<field>}" interpolations from the
// current value into template.
func expandTemplate(template string, value any) string {
	obj, _ := value.(map[string]any)

	var b strings.Builder
	for i := 0; i < len(template); {
		if strings.HasPrefix(template[i:], "{value") {
			end := strings.IndexByte(template[i:], '}')
			if end == -1 {
				b.WriteString(template[i:])
				break
			}
			expr := template[i+1 : i+end] // "value.<field>" or "value"
			b.WriteString(resolveExpr(expr, value, obj))
			i += end + 1
			continue
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String()
}

func resolveExpr(expr string, value any, obj map[string]any) string {
	if expr == "value" {
		return stringify(value)
	}
	field := strings.TrimPrefix(expr, "value.")
	if obj == nil {
		return ""
	}
	v, ok := obj[field]
	if !ok {
		return ""
	}
	return stringify(v)
}

// dateTokens maps the documented date-format token vocabulary to slices of the reference
// time "2006-01-02T15:04:05" (Go's layout tokens don't line up with these
// tokens one-for-one, so they're substituted directly instead of going
// through time.Format).
var dateTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"MM", "01"},
	{"DD", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
}

func formatDate(raw, format string, original any) any {
	if raw == "" || format == "" {
		return original
	}

	t, ok := parseISO8601(raw)
	if !ok {
		return original
	}

	layout := format
	for _, tok := range dateTokens {
		layout = strings.ReplaceAll(layout, tok.token, tok.layout)
	}
	return t.Format(layout)
}
