package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Значения приходят из драйвера (string, []byte, int64, time.Time) или из JSON
// (string, json.Number, float64, bool). Хелперы сводят их к полям записи.

func strPtr(m map[string]any, key string) *string {
	if s, ok := asString(m[key]); ok {
		return &s
	}
	return nil
}

func strOr(m map[string]any, key, def string) string {
	if s, ok := asString(m[key]); ok {
		return s
	}
	return def
}

func timePtr(m map[string]any, key string) *time.Time {
	if t, ok := asTime(m[key]); ok {
		return &t
	}
	return nil
}

func timeOr(m map[string]any, key string, def time.Time) time.Time {
	if t, ok := asTime(m[key]); ok {
		return t
	}
	return def
}

func intOr(m map[string]any, key string, def int) int {
	if n, ok := asInt(m[key]); ok {
		return n
	}
	return def
}

func boolOr(m map[string]any, key string, def bool) bool {
	if n, ok := asInt(m[key]); ok {
		return n != 0
	}
	if b, ok := m[key].(bool); ok {
		return b
	}
	if s, ok := asString(m[key]); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return def
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case json.Number:
		return t.String(), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case time.Time:
		return t.Format(time.DateTime), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case uint8:
		return int(t), true
	case float64:
		return int(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	case []byte:
		n, err := strconv.Atoi(strings.TrimSpace(string(t)))
		return n, err == nil
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, time.DateTime, "2006-01-02T15:04:05", time.DateOnly}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
