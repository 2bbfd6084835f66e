package api

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"modelkit/internal/entity"
	"modelkit/internal/query"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// FindParams: разобранные query-параметры чтения.
type FindParams struct {
	Cond       query.Fields
	Projection query.Projection
	Model      bool // строки через фабрику записей
}

// префиксы фильтров: like.name=ann, in.type=a,b, gte.createdAt=2024-01-01
var filterPrefixes = []string{"like.", "in.", "gte.", "lte.", "gt.", "lt."}

// include=[alias:]entity(a,b)
var includeRe = regexp.MustCompile(`^(?:([A-Za-z][A-Za-z0-9]*):)?([A-Za-z][A-Za-z0-9_]*)\(([^()]*)\)$`)

func isReserved(key string) bool {
	switch key {
	case "fields", "include", "paranoid", "model",
		"_sort", "_limit", "_offset", "sort", "limit", "offset":
		return true
	}
	for _, p := range filterPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// ==== Парсинг query-параметров ====

func (s *Storage) parseFindParams(d *entity.Descriptor, q url.Values) (FindParams, []FieldError) {
	var (
		out  FindParams
		errs []FieldError
	)
	p := &out.Projection

	// fields
	if fv := strings.TrimSpace(q.Get("fields")); fv != "" {
		for _, f := range splitList(fv) {
			if !d.Registered(f) {
				errs = append(errs, ferr(ErrUnknownField, f, "Unknown field '"+f+"'"))
				continue
			}
			p.Fields = append(p.Fields, f)
		}
	}

	// include
	for _, inc := range q["include"] {
		j, fe := s.parseInclude(strings.TrimSpace(inc))
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		p.Joins = append(p.Joins, j)
	}

	// фильтры
	keys := sortedKeys(q)
	for _, key := range keys {
		for _, prefix := range filterPrefixes {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			field := strings.TrimPrefix(key, prefix)
			if !d.Registered(field) {
				errs = append(errs, ferr(ErrUnknownField, field, "Unknown field '"+field+"'"))
				break
			}
			for _, raw := range q[key] {
				if prefix == "like." {
					p.Filters.Like = append(p.Filters.Like, query.Predicate{Field: field, Value: raw})
					continue
				}
				if prefix == "in." {
					m := query.Membership{Field: field}
					for _, item := range splitList(raw) {
						v, err := normalizeValue(d, field, item)
						if err != nil {
							errs = append(errs, ferr(ErrTypeMismatch, field, "Field '"+field+"' "+err.Error()))
							break
						}
						m.Values = append(m.Values, v)
					}
					p.Filters.In = append(p.Filters.In, m)
					continue
				}
				v, err := normalizeValue(d, field, raw)
				if err != nil {
					errs = append(errs, ferr(ErrTypeMismatch, field, "Field '"+field+"' "+err.Error()))
					continue
				}
				pred := query.Predicate{Field: field, Value: v}
				switch prefix {
				case "gte.":
					p.Filters.GTE = append(p.Filters.GTE, pred)
				case "lte.":
					p.Filters.LTE = append(p.Filters.LTE, pred)
				case "gt.":
					p.Filters.GT = append(p.Filters.GT, pred)
				case "lt.":
					p.Filters.LT = append(p.Filters.LT, pred)
				}
			}
			break
		}
	}

	// paranoid
	if pv := strings.TrimSpace(q.Get("paranoid")); pv != "" {
		b, err := strconv.ParseBool(pv)
		if err != nil {
			errs = append(errs, ferr(ErrTypeMismatch, "paranoid", "paranoid expected bool"))
		} else {
			p.Filters.Paranoid = query.Bool(b)
		}
	}

	// model
	if mv := strings.TrimSpace(q.Get("model")); mv != "" {
		out.Model, _ = strconv.ParseBool(mv)
	}

	// limit / offset: неверные значения игнорируются
	p.Limit = defaultLimit
	if n, ok := intParam(q, "_limit", "limit"); ok && n > 0 && n <= maxLimit {
		p.Limit = n
	}
	if n, ok := intParam(q, "_offset", "offset"); ok && n >= 0 {
		p.Offset = n
	}

	// sort
	sv := strings.TrimSpace(q.Get("_sort"))
	if sv == "" {
		sv = strings.TrimSpace(q.Get("sort"))
	}
	for _, part := range splitList(sv) {
		desc := false
		if strings.HasPrefix(part, "-") {
			desc = true
			part = strings.TrimPrefix(part, "-")
		} else {
			part = strings.TrimPrefix(part, "+")
		}
		if part == "" {
			continue
		}
		if !d.Registered(part) {
			errs = append(errs, ferr(ErrUnknownField, part, "Unknown sort field '"+part+"'"))
			continue
		}
		p.Sort = append(p.Sort, query.SortKey{Field: part, Desc: desc})
	}

	cond, ce := conditionsFromQuery(d, q)
	out.Cond = cond
	errs = append(errs, ce...)
	return out, errs
}

// conditionsFromQuery: неслужебные ключи дают условия равенства, повторённый ключ даёт группу OR.
func conditionsFromQuery(d *entity.Descriptor, q url.Values) (query.Fields, []FieldError) {
	var (
		cond query.Fields
		errs []FieldError
	)
	for _, key := range sortedKeys(q) {
		if isReserved(key) {
			continue
		}
		if !d.Registered(key) {
			errs = append(errs, ferr(ErrUnknownField, key, "Unknown field '"+key+"'"))
			continue
		}
		vals := q[key]
		norm := make([]any, 0, len(vals))
		for _, raw := range vals {
			v, err := normalizeValue(d, key, raw)
			if err != nil {
				errs = append(errs, ferr(ErrTypeMismatch, key, "Field '"+key+"' "+err.Error()))
				break
			}
			norm = append(norm, v)
		}
		if len(norm) != len(vals) {
			continue
		}
		if len(norm) == 1 {
			cond = append(cond, query.Field{Name: key, Value: norm[0]})
			continue
		}
		cond = append(cond, query.Field{Name: key, Value: norm})
	}
	return cond, errs
}

func (s *Storage) parseInclude(raw string) (query.Join, *FieldError) {
	m := includeRe.FindStringSubmatch(raw)
	if m == nil {
		fe := ferr(ErrInvalidQuery, "include", "include expects [alias:]entity(field,...)")
		return query.Join{}, &fe
	}
	e, ok := s.NormalizeEntityName(m[2])
	if !ok {
		fe := ferr(ErrNotFound, "include", "Entity '"+m[2]+"' not found")
		return query.Join{}, &fe
	}
	j := query.Join{Entity: e.Descriptor, Alias: m[1]}
	for _, f := range splitList(m[3]) {
		if !e.Descriptor.Registered(f) {
			fe := ferr(ErrUnknownField, m[2]+"."+f, "Unknown field '"+f+"'")
			return query.Join{}, &fe
		}
		j.Fields = append(j.Fields, f)
	}
	if len(j.Fields) == 0 {
		fe := ferr(ErrInvalidQuery, "include", "include of '"+m[2]+"' selects no fields")
		return query.Join{}, &fe
	}
	return j, nil
}

// ==== Утилиты ====

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(q url.Values) []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func intParam(q url.Values, names ...string) (int, bool) {
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			i, err := strconv.Atoi(v)
			return i, err == nil
		}
	}
	return 0, false
}
