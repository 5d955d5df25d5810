package schema

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const maxRefDepth = 64

// preparer rewrites a value before validation: fills defaults, coerces scalar types
// and strips undeclared properties. It walks the raw schema document, never mutates it,
// and is safe for concurrent use.
type preparer struct {
	root     any
	coerce   CoerceMode
	strip    bool
	defaults bool
	patterns map[string]*regexp.Regexp
}

func newPreparer(root any, opt Options) *preparer {
	p := &preparer{
		root:     root,
		coerce:   opt.coerceMode(),
		strip:    flag(opt.RemoveAdditional),
		defaults: flag(opt.UseDefaults),
		patterns: make(map[string]*regexp.Regexp),
	}
	p.collectPatterns(root)
	return p
}

func (p *preparer) active() bool {
	return p.coerce != CoerceNone || p.strip || p.defaults
}

// collectPatterns precompiles every patternProperties key. Patterns Go cannot compile
// are stored as nil and treated as matching every key, so nothing is stripped by mistake.
func (p *preparer) collectPatterns(node any) {
	switch t := node.(type) {
	case map[string]any:
		if pp, ok := t["patternProperties"].(map[string]any); ok {
			for pattern := range pp {
				re, err := regexp.Compile(pattern)
				if err != nil {
					re = nil
				}
				p.patterns[pattern] = re
			}
		}
		for _, child := range t {
			p.collectPatterns(child)
		}
	case []any:
		for _, child := range t {
			p.collectPatterns(child)
		}
	}
}

func (p *preparer) apply(value any) any {
	if !p.active() {
		return value
	}
	return p.walk(p.root, value, 0)
}

func (p *preparer) walk(node any, value any, depth int) any {
	sch, ok := node.(map[string]any)
	if !ok || depth > maxRefDepth {
		return value
	}

	if ref, ok := sch["$ref"].(string); ok {
		if target, ok := p.resolve(ref); ok {
			value = p.walk(target, value, depth+1)
		}
	}

	if p.coerce != CoerceNone {
		if types := schemaTypes(sch); len(types) > 0 {
			value = coerceValue(value, types, p.coerce)
		}
	}

	switch v := value.(type) {
	case map[string]any:
		p.walkObject(sch, v, depth)
	case []any:
		value = p.walkArray(sch, v, depth)
	}

	if all, ok := sch["allOf"].([]any); ok {
		for _, sub := range all {
			value = p.walk(sub, value, depth+1)
		}
	}

	return value
}

func (p *preparer) walkObject(sch map[string]any, obj map[string]any, depth int) {
	props, _ := sch["properties"].(map[string]any)

	if p.defaults {
		for name, sub := range props {
			if _, present := obj[name]; present {
				continue
			}
			subMap, ok := sub.(map[string]any)
			if !ok {
				continue
			}
			if def, ok := subMap["default"]; ok {
				obj[name] = plainCopy(def)
			}
		}
	}

	for name, sub := range props {
		if val, ok := obj[name]; ok {
			obj[name] = p.walk(sub, val, depth+1)
		}
	}

	patternProps, _ := sch["patternProperties"].(map[string]any)
	additional, hasAdditional := sch["additionalProperties"]
	if !hasAdditional {
		return
	}

	for name, val := range obj {
		if _, declared := props[name]; declared {
			continue
		}
		if p.matchesPattern(name, patternProps) {
			continue
		}

		switch a := additional.(type) {
		case bool:
			if !a && p.strip {
				delete(obj, name)
			}
		case map[string]any:
			obj[name] = p.walk(a, val, depth+1)
		}
	}
}

func (p *preparer) matchesPattern(name string, patternProps map[string]any) bool {
	for pattern := range patternProps {
		re := p.patterns[pattern]
		if re == nil || re.MatchString(name) {
			return true
		}
	}
	return false
}

func (p *preparer) walkArray(sch map[string]any, arr []any, depth int) []any {
	start := 0

	if prefix, ok := sch["prefixItems"].([]any); ok {
		for i := 0; i < len(prefix) && i < len(arr); i++ {
			arr[i] = p.walk(prefix[i], arr[i], depth+1)
		}
		start = len(prefix)
	}

	switch items := sch["items"].(type) {
	case map[string]any:
		for i := start; i < len(arr); i++ {
			arr[i] = p.walk(items, arr[i], depth+1)
		}
	case []any:
		// draft 2019-09 and older tuple form
		for i := 0; i < len(items) && i < len(arr); i++ {
			arr[i] = p.walk(items[i], arr[i], depth+1)
		}
	}

	return arr
}

// resolve follows a document-local JSON pointer such as "#/$defs/id".
func (p *preparer) resolve(ref string) (any, bool) {
	pointer, ok := strings.CutPrefix(ref, "#")
	if !ok {
		return nil, false
	}
	if pointer == "" {
		return p.root, true
	}

	node := p.root
	for _, token := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		token, err := url.PathUnescape(token)
		if err != nil {
			return nil, false
		}
		token = strings.NewReplacer("~1", "/", "~0", "~").Replace(token)

		switch t := node.(type) {
		case map[string]any:
			next, ok := t[token]
			if !ok {
				return nil, false
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, false
			}
			node = t[idx]
		default:
			return nil, false
		}
	}

	return node, true
}

func schemaTypes(sch map[string]any) []string {
	switch t := sch["type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// plainCopy deep-copies a schema literal, turning json.Number into float64 so values
// written into requests look like values decoded by encoding/json.
func plainCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plainCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plainCopy(val)
		}
		return out
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	default:
		return v
	}
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func hasType(v any, want string) bool {
	got := jsonType(v)
	switch want {
	case "number":
		return got == "number"
	case "integer":
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	default:
		return got == want
	}
}

func coerceValue(v any, types []string, mode CoerceMode) any {
	for _, t := range types {
		if hasType(v, t) {
			return v
		}
	}

	if mode == CoerceArray {
		if arr, ok := v.([]any); ok && len(arr) == 1 && !contains(types, "array") {
			v = arr[0]
			for _, t := range types {
				if hasType(v, t) {
					return v
				}
			}
		}
	}

	for _, t := range types {
		if t == "array" && mode == CoerceArray {
			return []any{v}
		}
		if out, ok := coerceScalar(v, t); ok {
			return out
		}
	}

	return v
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func coerceScalar(v any, target string) (any, bool) {
	switch target {
	case "number", "integer":
		var f float64
		switch t := v.(type) {
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if t == "" || err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
				return nil, false
			}
			f = parsed
		case bool:
			if t {
				f = 1
			}
		case nil:
			f = 0
		default:
			return nil, false
		}
		if target == "integer" && f != math.Trunc(f) {
			return nil, false
		}
		return f, true

	case "string":
		switch t := v.(type) {
		case bool:
			return strconv.FormatBool(t), true
		case nil:
			return "", true
		}
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}

	case "boolean":
		switch t := v.(type) {
		case string:
			switch t {
			case "true":
				return true, true
			case "false":
				return false, true
			}
		case nil:
			return false, true
		}
		if f, ok := toFloat(v); ok {
			switch f {
			case 1:
				return true, true
			case 0:
				return false, true
			}
		}

	case "null":
		switch t := v.(type) {
		case string:
			if t == "" {
				return nil, true
			}
		case bool:
			if !t {
				return nil, true
			}
		}
		if f, ok := toFloat(v); ok && f == 0 {
			return nil, true
		}
	}

	return nil, false
}
