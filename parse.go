package clevertouch

import (
	"fmt"
	"math"
	"strconv"
)

// The envelope data is a loosely-typed JSON mapping in which the service
// mixes strings and numbers freely (mode codes and temperatures usually
// arrive as strings). These helpers coerce values and turn every missing or
// mistyped field into a *ParseError at the boundary.

func coerceInt(value any) (int, error) {
	switch v := value.(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", value)
	}
}

func stringField(data map[string]any, key string) (string, error) {
	value, ok := data[key]
	if !ok {
		return "", &ParseError{Field: key, Reason: "missing"}
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		// Numeric ids and codes are sometimes sent unquoted.
		if v == math.Trunc(v) {
			return strconv.Itoa(int(v)), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", &ParseError{Field: key, Reason: fmt.Sprintf("expected string, got %T", value)}
	}
}

func intField(data map[string]any, key string) (int, error) {
	value, ok := data[key]
	if !ok {
		return 0, &ParseError{Field: key, Reason: "missing"}
	}
	n, err := coerceInt(value)
	if err != nil {
		return 0, &ParseError{Field: key, Reason: err.Error()}
	}
	return n, nil
}

// optionalIntField returns 0 for fields that are absent, null or empty,
// which is how the service omits boost information on devices without it.
func optionalIntField(data map[string]any, key string) (int, error) {
	value, ok := data[key]
	if !ok || value == nil || value == "" {
		return 0, nil
	}
	n, err := coerceInt(value)
	if err != nil {
		return 0, &ParseError{Field: key, Reason: err.Error()}
	}
	return n, nil
}

func boolField(data map[string]any, key string) (bool, error) {
	s, err := stringField(data, key)
	if err != nil {
		return false, err
	}
	return s == "1", nil
}

func mapListField(data map[string]any, key string) ([]map[string]any, error) {
	value, ok := data[key]
	if !ok {
		return nil, &ParseError{Field: key, Reason: "missing"}
	}
	list, ok := value.([]any)
	if !ok {
		return nil, &ParseError{Field: key, Reason: fmt.Sprintf("expected list, got %T", value)}
	}
	items := make([]map[string]any, 0, len(list))
	for i, entry := range list {
		item, ok := entry.(map[string]any)
		if !ok {
			return nil, &ParseError{Field: key, Reason: fmt.Sprintf("entry %d: expected object, got %T", i, entry)}
		}
		items = append(items, item)
	}
	return items, nil
}

func optionalMapField(data map[string]any, key string) (map[string]any, error) {
	value, ok := data[key]
	if !ok || value == nil {
		return nil, nil
	}
	item, ok := value.(map[string]any)
	if !ok {
		return nil, &ParseError{Field: key, Reason: fmt.Sprintf("expected object, got %T", value)}
	}
	return item, nil
}
