package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"modelkit/internal/entity"
	"modelkit/internal/model"
	"modelkit/internal/naming"
	"modelkit/internal/query"
	"modelkit/internal/store"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Коды ошибок, которыми будем пользоваться
const (
	ErrRequired     = "required"
	ErrTypeMismatch = "type_mismatch"
	ErrUnknownField = "unknown_field"
	ErrInvalidQuery = "invalid_query"
	ErrNotFound     = "not_found"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

func statusForErrors(errs []FieldError) int {
	for _, e := range errs {
		if e.Code == ErrNotFound {
			return http.StatusNotFound
		}
	}
	return http.StatusBadRequest
}

// statusForError сводит ошибку слоя данных к HTTP-статусу и списку FieldError.
func statusForError(err error) (int, []FieldError) {
	var qe *query.Error
	switch {
	case errors.As(err, &qe):
		return http.StatusBadRequest, []FieldError{ferr(ErrInvalidQuery, qe.Field, qe.Error())}
	case errors.Is(err, store.ErrConnect):
		return http.StatusServiceUnavailable, []FieldError{ferr("unavailable", "", "database unavailable")}
	case errors.Is(err, entity.ErrUnknownEntity):
		return http.StatusNotFound, []FieldError{ferr(ErrNotFound, "entity", err.Error())}
	case errors.Is(err, model.ErrExec):
		return http.StatusInternalServerError, []FieldError{ferr("exec_failed", "", "query execution failed")}
	default:
		return http.StatusInternalServerError, []FieldError{ferr("internal", "", err.Error())}
	}
}

// decodeJSON читает тело с UseNumber, чтобы большие целые не теряли точность во float64.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// normalizeFields проверяет поля записи по описанию сущности и приводит значения:
// wide-integer приводится к строке из цифр, json.Number к int64/float64, объект для json-колонки к тексту.
// allowUnknown=true: незарегистрированные поля пропускаются молча (данные INSERT/UPDATE).
// allowGroups=true: значение-массив допустимо как группа OR (условия).
func normalizeFields(d *entity.Descriptor, in map[string]any, allowUnknown, allowGroups bool) (query.Fields, []FieldError) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []FieldError
	out := make(query.Fields, 0, len(in))
	for _, k := range keys {
		if !d.Registered(k) {
			if allowUnknown {
				continue
			}
			errs = append(errs, ferr(ErrUnknownField, k, "Unknown field '"+k+"'"))
			continue
		}
		v := in[k]
		if arr, ok := v.([]any); ok && allowGroups {
			norm := make([]any, 0, len(arr))
			for _, it := range arr {
				nv, err := normalizeValue(d, k, it)
				if err != nil {
					errs = append(errs, ferr(ErrTypeMismatch, k, "Field '"+k+"' "+err.Error()))
					break
				}
				norm = append(norm, nv)
			}
			out = append(out, query.Field{Name: k, Value: norm})
			continue
		}
		nv, err := normalizeValue(d, k, v)
		if err != nil {
			errs = append(errs, ferr(ErrTypeMismatch, k, "Field '"+k+"' "+err.Error()))
			continue
		}
		out = append(out, query.Field{Name: k, Value: nv})
	}
	return out, errs
}

func normalizeValue(d *entity.Descriptor, field string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if d.IsWide(field) {
		s, err := toIntString(v)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected number")
		}
		return f, nil
	case map[string]any, []any:
		if d.Type(naming.ToSnake(field)) != entity.TypeJSON {
			return nil, fmt.Errorf("expected scalar")
		}
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// toIntString: wide-integer приходит строкой из цифр или целым числом JSON.
func toIntString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if _, err := strconv.ParseUint(s, 10, 64); err != nil {
			return "", fmt.Errorf("expected integer id")
		}
		return s, nil
	case json.Number:
		if _, err := strconv.ParseUint(t.String(), 10, 64); err != nil {
			return "", fmt.Errorf("expected integer id")
		}
		return t.String(), nil
	case int64:
		if t < 0 {
			return "", fmt.Errorf("expected integer id")
		}
		return strconv.FormatInt(t, 10), nil
	case int:
		if t < 0 {
			return "", fmt.Errorf("expected integer id")
		}
		return strconv.Itoa(t), nil
	default:
		return "", fmt.Errorf("expected integer id")
	}
}
