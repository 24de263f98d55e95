package store

import (
	"reflect"
	"strings"
)

// Validate reports whether payload is acceptable for Set: it must be
// non-empty, every key must contain a non-blank character and every value
// must be object-shaped. Maps keyed by strings, structs and non-nil pointers
// to either are object-shaped; nil, scalars and slices are not.
func Validate(payload map[string]any) bool {
	if len(payload) == 0 {
		return false
	}
	for key, value := range payload {
		if !validKey(key) || !isObject(value) {
			return false
		}
	}
	return true
}

func validKey(key string) bool {
	return strings.TrimSpace(key) != ""
}

func isObject(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case map[string]any:
		return v != nil
	case Document:
		return v != nil
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		return !rv.IsNil() && rv.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		return true
	default:
		return false
	}
}
