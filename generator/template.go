package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// placeholderRe matches {name} and {dotted.path}. A match wrapped in a
// second pair of braces ({{name}}) is a WhatsApp personalization
// placeholder and is left alone.
var placeholderRe = regexp.MustCompile(`\{([A-Za-z_]\w*(?:\.\w+)*)\}`)

// Flatten turns bindings into a flat string map keyed by dotted path.
// Values go through a JSON round-trip first, so structs are addressed by
// their json names and slices by index (plans.0.structuredContent). An
// object or array key also maps to its indented JSON form.
func Flatten(bindings map[string]any) (map[string]string, error) {
	data, err := json.Marshal(bindings)
	if err != nil {
		return nil, fmt.Errorf("marshal bindings: %w", err)
	}
	var tree map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode bindings: %w", err)
	}

	out := make(map[string]string)
	for k, v := range tree {
		flattenInto(out, k, v)
	}
	return out, nil
}

func flattenInto(out map[string]string, key string, v any) {
	switch t := v.(type) {
	case map[string]any:
		out[key] = indentJSON(t)
		for k, child := range t {
			flattenInto(out, key+"."+k, child)
		}
	case []any:
		out[key] = indentJSON(t)
		for i, child := range t {
			flattenInto(out, key+"."+strconv.Itoa(i), child)
		}
	case string:
		out[key] = t
	case json.Number:
		out[key] = t.String()
	case bool:
		out[key] = strconv.FormatBool(t)
	case nil:
		out[key] = ""
	default:
		out[key] = fmt.Sprint(t)
	}
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// MissingBindingError reports template placeholders with no value.
type MissingBindingError struct {
	Names []string
}

func (e *MissingBindingError) Error() string {
	return "missing template bindings: " + strings.Join(e.Names, ", ")
}

// Render substitutes every {path} in tmpl from vars.
func Render(tmpl string, vars map[string]string) (string, error) {
	var (
		sb      strings.Builder
		last    int
		missing = make(map[string]struct{})
	)
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(tmpl, -1) {
		start, end := m[0], m[1]
		if start > 0 && tmpl[start-1] == '{' && end < len(tmpl) && tmpl[end] == '}' {
			continue
		}
		name := tmpl[m[2]:m[3]]
		val, ok := vars[name]
		if !ok {
			missing[name] = struct{}{}
			continue
		}
		sb.WriteString(tmpl[last:start])
		sb.WriteString(val)
		last = end
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", &MissingBindingError{Names: names}
	}
	sb.WriteString(tmpl[last:])
	return sb.String(), nil
}
