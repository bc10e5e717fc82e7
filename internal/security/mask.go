package security

import (
	"fmt"
	"maps"
	"reflect"
	"strings"
)

// MaskString redacts credential-shaped substrings of s. Every rule is
// applied in order; when none matched, a whole-string heuristic masks long
// opaque tokens as "abc***xyz". The result is a fixed point: masking it again
// returns it unchanged.
func MaskString(s string) string {
	if s == "" {
		return s
	}
	out := s
	for _, rule := range credentialRules {
		out = rule.Pattern.ReplaceAllString(out, rule.Replacement)
	}
	if out != s {
		return out
	}
	if genericSecret.MatchString(s) && hasLetterAndDigit(s) {
		return s[:3] + Mask + s[len(s)-3:]
	}
	return s
}

// MaskText is the log-sink variant of MaskString: it also redacts
// "key=value" credential assignments but skips the whole-string heuristic,
// so identifiers and model names in log lines survive.
func MaskText(s string) string {
	if s == "" {
		return s
	}
	out := s
	for _, rule := range credentialRules {
		out = rule.Pattern.ReplaceAllString(out, rule.Replacement)
	}
	return assignmentRule.Pattern.ReplaceAllString(out, assignmentRule.Replacement)
}

// maxDepth bounds the walk; anything nested deeper is replaced by Mask.
// Pointer cycles end there instead of recursing forever.
const maxDepth = 16

// MaskSensitiveData returns a redacted copy of a JSON-like value. Strings
// pass through MaskString; values under sensitive keys are collapsed
// whatever their shape. Structs are rendered as maps of their exported
// fields. The input is never modified.
func MaskSensitiveData(v any) any {
	return maskValue(v, false, 0)
}

// SanitizeConfig returns a copy of cfg that is safe to log.
func SanitizeConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	return maskMap(cfg, false, 0)
}

func maskValue(v any, secret bool, depth int) any {
	if depth > maxDepth {
		return Mask
	}
	switch val := v.(type) {
	case nil:
		if secret {
			return Mask
		}
		return nil
	case string:
		if secret {
			return collapseSecret(val)
		}
		return MaskString(val)
	case map[string]any:
		return maskMap(val, secret, depth+1)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			if secret || IsSensitiveKey(k) {
				out[k] = collapseSecret(item)
			} else {
				out[k] = MaskString(item)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskValue(item, secret, depth+1)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			if secret {
				out[i] = collapseSecret(item)
			} else {
				out[i] = MaskString(item)
			}
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = maskMap(item, secret, depth+1)
		}
		return out
	}
	return maskReflect(v, secret, depth)
}

func maskMap(m map[string]any, secret bool, depth int) map[string]any {
	out := maps.Clone(m)
	for k, item := range m {
		out[k] = maskValue(item, secret || IsSensitiveKey(k), depth+1)
	}
	return out
}

// maskReflect handles the remaining shapes: string-keyed maps, slices of
// any element type, structs and pointers to them. Structs become maps keyed
// by their JSON field names. Other scalars pass through unless they sit
// under a sensitive key.
func maskReflect(v any, secret bool, depth int) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			if secret {
				return Mask
			}
			return v
		}
		if rv.Elem().Kind() == reflect.Struct {
			return maskStruct(rv.Elem(), secret, depth)
		}
	case reflect.Struct:
		return maskStruct(rv, secret, depth)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			out[k] = maskValue(iter.Value().Interface(), secret || IsSensitiveKey(k), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = maskValue(rv.Index(i).Interface(), secret, depth+1)
		}
		return out
	}
	if secret {
		return Mask
	}
	return v
}

// maskStruct walks the exported fields of a struct. A struct with no
// exported fields (time.Time, sync types) is rendered with %+v instead.
func maskStruct(rv reflect.Value, secret bool, depth int) any {
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		if secret {
			return collapseSecret(s.String())
		}
		return MaskText(s.String())
	}

	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		sensitive := secret || IsSensitiveKey(name) || IsSensitiveKey(f.Name)
		out[name] = maskValue(rv.Field(i).Interface(), sensitive, depth+1)
	}
	if len(out) == 0 {
		text := fmt.Sprintf("%+v", rv.Interface())
		if secret {
			return collapseSecret(text)
		}
		return MaskText(text)
	}
	return out
}

// MaskSecret collapses a value known to be secret, whatever its shape.
func MaskSecret(v any) any {
	return maskValue(v, true, 0)
}
