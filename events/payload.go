package events

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// Payloads cross module boundaries as map[string]any and often arrive from
// JSON, so "true", true and 1.0 all need to read as the intended type. The
// accessors below return the zero value when a key is missing or does not
// convert.

func (e Event) String(key string) string {
	v, _ := lookup[string](e.Data, key)
	return v
}

func (e Event) Bool(key string) bool {
	v, _ := lookup[bool](e.Data, key)
	return v
}

func (e Event) Int(key string) int {
	v, _ := lookup[int](e.Data, key)
	return v
}

// Strings accepts []string, []any or a comma-separated string.
func (e Event) Strings(key string) []string {
	switch v := e.Data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return nil
}

// Map returns a nested object payload, or nil.
func (e Event) Map(key string) map[string]any {
	m, _ := e.Data[key].(map[string]any)
	return m
}

func lookup[T any](data map[string]any, key string) (T, bool) {
	var zero T
	raw, ok := data[key]
	if !ok || raw == nil {
		return zero, false
	}
	if v, ok := raw.(T); ok {
		return v, true
	}
	s, ok := raw.(string)
	if !ok {
		s = fmt.Sprint(raw)
	}
	out, err := cast.FromType(s, reflect.TypeFor[T]())
	if err != nil {
		return zero, false
	}
	v, ok := out.(T)
	return v, ok
}
