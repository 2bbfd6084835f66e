// Package query строит SQL (SELECT, WHERE, INSERT, UPDATE, DELETE) и упорядоченный
// список bind-значений по описанию сущности. Пакет не делает ввода-вывода.
package query

import (
	"fmt"
	"sort"

	"modelkit/internal/entity"
)

// Field: пара "поле-значение". Имя поля в camelCase (snake_case тоже допустим).
type Field struct {
	Name  string
	Value any
}

// Fields: упорядоченный набор полей для условий равенства и данных INSERT/UPDATE.
// Порядок важен: в нём же идут плейсхолдеры и значения.
type Fields []Field

// F собирает Fields из пар имя/значение: F("enterpriseUid", "1", "name", "x").
func F(pairs ...any) Fields {
	if len(pairs)%2 != 0 {
		panic("query.F: odd number of arguments")
	}
	out := make(Fields, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("query.F: field name at %d is %T, not string", i, pairs[i]))
		}
		out = append(out, Field{Name: name, Value: pairs[i+1]})
	}
	return out
}

// FieldsFromMap переводит map в Fields с ключами по алфавиту,
// чтобы текст запроса не зависел от порядка обхода map.
func FieldsFromMap(m map[string]any) Fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Fields, 0, len(keys))
	for _, k := range keys {
		out = append(out, Field{Name: k, Value: m[k]})
	}
	return out
}

// Map возвращает поля как map (последнее значение побеждает).
func (fs Fields) Map() map[string]any {
	out := make(map[string]any, len(fs))
	for _, f := range fs {
		out[f.Name] = f.Value
	}
	return out
}

// Predicate: поле и значение для LIKE и сравнений.
type Predicate struct {
	Field string
	Value any
}

// Membership: поле и список значений для IN.
type Membership struct {
	Field  string
	Values []any
}

// Filters: дополнительные предикаты WHERE помимо условий равенства.
type Filters struct {
	Like []Predicate
	In   []Membership
	GTE  []Predicate
	LTE  []Predicate
	GT   []Predicate
	LT   []Predicate
	// Paranoid: nil или true скрывает строки с deleted <> 0; false не фильтрует.
	Paranoid *bool
}

func (f Filters) paranoid() bool { return f.Paranoid == nil || *f.Paranoid }

// Bool: указатель на значение, для Filters.Paranoid.
func Bool(v bool) *bool { return &v }

// Join: LEFT JOIN связанной сущности.
type Join struct {
	Entity *entity.Descriptor
	// Alias: поле основной таблицы, по которому идёт связь (<alias>_uid);
	// пусто: используется имя связанной таблицы.
	Alias  string
	Fields []string
}

// SortKey: элемент ORDER BY.
type SortKey struct {
	Field string
	Desc  bool
}

// Projection описывает чтение: колонки, связанные таблицы, фильтры, порядок и страницу.
type Projection struct {
	// Fields пусто: выбираются все колонки сущности.
	Fields  []string
	Joins   []Join
	Filters Filters
	Sort    []SortKey
	Limit   int
	Offset  int
}

// Statement: текст SQL и значения для плейсхолдеров.
type Statement struct {
	SQL  string
	Args []any
}

// Batch: один INSERT и по строке значений на каждую запись.
type Batch struct {
	SQL  string
	Rows [][]any
}
