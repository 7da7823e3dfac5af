package core

import (
	"time"
)

// Field accessors for loosely-typed platform records. The remote APIs are
// inconsistent about casing and key names across endpoints, so lookups take
// a list of candidate keys in preference order.

// FirstString returns the first non-empty string value among the candidate
// keys, or "" when none is present.
func FirstString(rec Record, keys ...string) string {
	if rec == nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// timeLayouts covers the formats the platform emits for run timestamps.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FirstTime returns the first parseable timestamp among the candidate keys.
func FirstTime(rec Record, keys ...string) (time.Time, bool) {
	if rec == nil {
		return time.Time{}, false
	}
	for _, k := range keys {
		v, ok := rec[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case time.Time:
			return t, true
		case string:
			for _, layout := range timeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed, true
				}
			}
		}
	}
	return time.Time{}, false
}

// RecordSlice coerces a field holding a JSON array of objects into records.
// Non-object elements are dropped.
func RecordSlice(rec Record, key string) []Record {
	if rec == nil {
		return nil
	}
	switch raw := rec[key].(type) {
	case []Record:
		return raw
	case []any:
		out := make([]Record, 0, len(raw))
		for _, el := range raw {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
