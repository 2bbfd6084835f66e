package query

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"modelkit/internal/entity"
	"modelkit/internal/naming"
)

// Builder строит запросы для заданного диалекта. Без состояния, безопасен для
// одновременного использования.
type Builder struct {
	dialect       Dialect
	inline        bool
	quoteReserved bool
}

// Option настраивает Builder.
type Option func(*Builder)

// WithDialect задаёт диалект (по умолчанию MySQL).
func WithDialect(d Dialect) Option {
	return func(b *Builder) {
		if d != nil {
			b.dialect = d
		}
	}
}

// WithInlineLiterals включает старый формат: значения LIKE, IN, сравнений и deleted_by
// подставляются в текст SQL литералами (с экранированием), а не плейсхолдерами.
// Нужен только для сверки текста запросов со старыми логами и тестами.
func WithInlineLiterals() Option {
	return func(b *Builder) { b.inline = true }
}

func New(opts ...Option) *Builder {
	b := &Builder{dialect: MySQL}
	for _, o := range opts {
		o(b)
	}
	return b
}

// WithQuotedReserved квотирует имена таблиц, совпадающие с зарезервированными словами
// диалекта (option в MySQL, user в Postgres). Остальной текст запроса не меняется.
func WithQuotedReserved() Option {
	return func(b *Builder) { b.quoteReserved = true }
}

// Dialect возвращает диалект построителя.
func (b *Builder) Dialect() Dialect { return b.dialect }

// column: "<t>.<c>" либо приведение к тексту для wide-integer.
// alias пустой: для колонок основной таблицы алиас нужен только при приведении.
func (b *Builder) column(d *entity.Descriptor, col, alias string) string {
	ref := b.tbl(d.Table()) + "." + col
	if d.Classify(col) == entity.WideInteger {
		if alias == "" {
			alias = col
		}
		return b.dialect.CastText(ref) + " AS " + alias
	}
	if alias != "" {
		return ref + " AS " + alias
	}
	return ref
}

// Select строит "SELECT ... FROM <t> [LEFT JOIN ...]" по проекции.
// Без явного списка полей сначала идут все wide-integer колонки, затем general.
func (b *Builder) Select(d *entity.Descriptor, p Projection) (string, error) {
	const op = "select"
	var cols []string

	if len(p.Fields) > 0 {
		cols = make([]string, 0, len(p.Fields))
		for _, f := range p.Fields {
			col := naming.ToSnake(f)
			if !d.Registered(col) {
				return "", invalid(op, d.Table(), f, "unknown field")
			}
			cols = append(cols, b.column(d, col, ""))
		}
	} else {
		for _, col := range d.Columns() {
			cols = append(cols, b.column(d, col, ""))
		}
	}

	joins := make([]string, 0, len(p.Joins))
	for i, j := range p.Joins {
		if j.Entity == nil {
			return "", invalid(op, d.Table(), "", "join %d: no related entity", i)
		}
		if len(j.Fields) == 0 {
			return "", invalid(op, j.Entity.Table(), "", "join %d: no fields selected", i)
		}
		key := j.Entity.Table()
		if j.Alias != "" {
			key = naming.ToSnake(j.Alias)
		}
		for _, f := range j.Fields {
			col := naming.ToSnake(f)
			if !j.Entity.Registered(col) {
				return "", invalid(op, j.Entity.Table(), f, "unknown field")
			}
			cols = append(cols, b.column(j.Entity, col, key+"_"+col))
		}
		joins = append(joins, fmt.Sprintf(" LEFT JOIN %s ON %s.%s_uid = %s.uid",
			b.tbl(j.Entity.Table()), b.tbl(d.Table()), key, b.tbl(j.Entity.Table())))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.tbl(d.Table()))
	for _, j := range joins {
		sb.WriteString(j)
	}
	return sb.String(), nil
}

// Where строит "WHERE 1=1 AND ..." в фиксированном порядке: равенства, LIKE, IN,
// >=, <=, >, <, затем предикат мягкого удаления.
func (b *Builder) Where(d *entity.Descriptor, cond Fields, f Filters) (Statement, error) {
	return b.where("where", d, cond, f)
}

func (b *Builder) where(op string, d *entity.Descriptor, cond Fields, f Filters) (Statement, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("WHERE 1=1")
	and := func(pred string) {
		sb.WriteString(" AND ")
		sb.WriteString(pred)
	}

	// 1) равенства; значение-срез даёт группу OR по тому же полю
	for _, c := range cond {
		col, err := b.whereColumn(op, d, c.Name)
		if err != nil {
			return Statement{}, err
		}
		target := b.eqTarget(d, col)
		if vs, ok := sequence(c.Value); ok {
			if len(vs) == 0 {
				return Statement{}, invalid(op, d.Table(), c.Name, "empty value list")
			}
			preds := make([]string, len(vs))
			for i := range vs {
				preds[i] = target + " = ?"
			}
			and("(" + strings.Join(preds, " OR ") + ")")
			args = append(args, vs...)
			continue
		}
		and(target + " = ?")
		args = append(args, c.Value)
	}

	// 2) LIKE
	for _, p := range f.Like {
		col, err := b.whereColumn(op, d, p.Field)
		if err != nil {
			return Statement{}, err
		}
		pattern := "%" + literalText(p.Value) + "%"
		if b.inline {
			and(b.tbl(d.Table()) + "." + col + " LIKE " + b.dialect.QuoteString(pattern))
			continue
		}
		and(b.tbl(d.Table()) + "." + col + " LIKE ?")
		args = append(args, pattern)
	}

	// 3) IN
	for _, m := range f.In {
		col, err := b.whereColumn(op, d, m.Field)
		if err != nil {
			return Statement{}, err
		}
		if len(m.Values) == 0 {
			return Statement{}, invalid(op, d.Table(), m.Field, "empty IN list")
		}
		items := make([]string, len(m.Values))
		for i, v := range m.Values {
			if b.inline {
				items[i] = b.dialect.QuoteString(literalText(v))
				continue
			}
			items[i] = "?"
			args = append(args, v)
		}
		and(b.eqTarget(d, col) + " IN (" + strings.Join(items, ", ") + ")")
	}

	// 4) сравнения
	for _, r := range []struct {
		op    string
		preds []Predicate
	}{
		{">=", f.GTE},
		{"<=", f.LTE},
		{">", f.GT},
		{"<", f.LT},
	} {
		for _, p := range r.preds {
			col, err := b.whereColumn(op, d, p.Field)
			if err != nil {
				return Statement{}, err
			}
			if b.inline {
				and(b.tbl(d.Table()) + "." + col + " " + r.op + " " + b.dialect.QuoteString(literalText(p.Value)))
				continue
			}
			and(b.tbl(d.Table()) + "." + col + " " + r.op + " ?")
			args = append(args, p.Value)
		}
	}

	// 5) мягкое удаление: отключается только явным Paranoid=false
	if d.Paranoid() && f.paranoid() {
		and(b.tbl(d.Table()) + ".deleted = 0")
	}
	return Statement{SQL: sb.String(), Args: args}, nil
}

// ConditionValues: значения условий равенства в порядке ключей, срезы разворачиваются.
// Количество и порядок совпадают с плейсхолдерами шага 1 в Where.
func ConditionValues(cond Fields) []any {
	var out []any
	for _, c := range cond {
		if vs, ok := sequence(c.Value); ok {
			out = append(out, vs...)
			continue
		}
		out = append(out, c.Value)
	}
	return out
}

// Query строит полный SELECT: колонки, WHERE, ORDER BY, LIMIT/OFFSET.
func (b *Builder) Query(d *entity.Descriptor, cond Fields, p Projection) (Statement, error) {
	const op = "select"
	sel, err := b.Select(d, p)
	if err != nil {
		return Statement{}, err
	}
	where, err := b.where(op, d, cond, p.Filters)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString(sel)
	sb.WriteByte(' ')
	sb.WriteString(where.SQL)

	if len(p.Sort) > 0 {
		keys := make([]string, 0, len(p.Sort))
		for _, s := range p.Sort {
			col, err := b.whereColumn(op, d, s.Field)
			if err != nil {
				return Statement{}, err
			}
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			keys = append(keys, b.tbl(d.Table())+"."+col+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(keys, ", "))
	}

	switch {
	case p.Limit < 0 || p.Offset < 0:
		return Statement{}, invalid(op, d.Table(), "", "negative limit or offset")
	case p.Offset > 0 && p.Limit == 0:
		return Statement{}, invalid(op, d.Table(), "", "offset requires a limit")
	}
	if p.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", p.Limit)
	}
	if p.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", p.Offset)
	}
	return Statement{SQL: sb.String(), Args: where.Args}, nil
}

func (b *Builder) whereColumn(op string, d *entity.Descriptor, field string) (string, error) {
	col := naming.ToSnake(field)
	if !d.Registered(col) {
		return "", invalid(op, d.Table(), field, "unknown field")
	}
	return col, nil
}

// tbl: имя таблицы для текста запроса.
func (b *Builder) tbl(name string) string {
	if b.quoteReserved && b.dialect.Reserved(name) {
		return b.dialect.QuoteIdent(name)
	}
	return name
}

// eqTarget: колонка для сравнения; wide-integer сравнивается как текст.
func (b *Builder) eqTarget(d *entity.Descriptor, col string) string {
	ref := b.tbl(d.Table()) + "." + col
	if d.Classify(col) == entity.WideInteger {
		return b.dialect.CastText(ref)
	}
	return ref
}

// sequence разворачивает срез/массив (кроме []byte) в []any.
func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, []byte, string:
		return nil, false
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// isNull: nil, nil-указатель/срез/map или driver.Valuer со значением NULL.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return true
		}
	}
	if dv, ok := v.(driver.Valuer); ok {
		val, err := dv.Value()
		return err == nil && val == nil
	}
	return false
}

func literalText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.DateTime)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
