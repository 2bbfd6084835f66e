// Package entity описывает статические метаданные сущностей: таблица, колонки и их классы.
package entity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"modelkit/internal/naming"
)

// Class: класс колонки в реестре.
type Class int

const (
	// Unregistered: поле не объявлено ни в одном наборе колонок.
	Unregistered Class = iota
	// General: обычная колонка.
	General
	// WideInteger: целое шире безопасного диапазона клиента, читается через CAST(... AS CHAR).
	WideInteger
)

func (c Class) String() string {
	switch c {
	case General:
		return "general"
	case WideInteger:
		return "wide_integer"
	default:
		return "unregistered"
	}
}

// ColumnType: абстрактный тип колонки, нужен только генератору DDL.
type ColumnType string

const (
	TypeBigint   ColumnType = "bigint"
	TypeInt      ColumnType = "int"
	TypeString   ColumnType = "string"
	TypeText     ColumnType = "text"
	TypeBool     ColumnType = "bool"
	TypeDatetime ColumnType = "datetime"
	TypeDecimal  ColumnType = "decimal"
	TypeJSON     ColumnType = "json"
)

var knownTypes = map[ColumnType]struct{}{
	TypeBigint: {}, TypeInt: {}, TypeString: {}, TypeText: {},
	TypeBool: {}, TypeDatetime: {}, TypeDecimal: {}, TypeJSON: {},
}

// ErrInvalidDescriptor возвращается, когда описание сущности противоречиво.
var ErrInvalidDescriptor = errors.New("entity: invalid descriptor")

// identRe: snake_case без ведущего/замыкающего "_" и без "__".
// Для таких имён ToSnake(ToCamel(col)) == col, в том числе при цифре после "_".
var identRe = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// Spec: исходное описание сущности (из кода или YAML).
type Spec struct {
	Table       string            `yaml:"table"`
	WideInteger []string          `yaml:"wide_integer"`
	General     []string          `yaml:"general"`
	Types       map[string]string `yaml:"types,omitempty"`
}

// Descriptor: проверенное неизменяемое описание сущности.
type Descriptor struct {
	table   string
	wide    []string
	general []string
	class   map[string]Class
	types   map[string]ColumnType
}

// New проверяет spec и строит Descriptor. Проверка выполняется один раз, при регистрации.
func New(s Spec) (*Descriptor, error) {
	table := strings.TrimSpace(s.Table)
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("%w: table name %q is not snake_case", ErrInvalidDescriptor, s.Table)
	}
	if len(s.WideInteger)+len(s.General) == 0 {
		return nil, fmt.Errorf("%w: %s: no columns declared", ErrInvalidDescriptor, table)
	}

	d := &Descriptor{
		table:   table,
		wide:    append([]string(nil), s.WideInteger...),
		general: append([]string(nil), s.General...),
		class:   make(map[string]Class, len(s.WideInteger)+len(s.General)),
		types:   make(map[string]ColumnType, len(s.WideInteger)+len(s.General)),
	}
	add := func(col string, c Class) error {
		if !identRe.MatchString(col) {
			return fmt.Errorf("%w: %s.%s: column name is not snake_case", ErrInvalidDescriptor, table, col)
		}
		if prev, dup := d.class[col]; dup {
			return fmt.Errorf("%w: %s.%s: declared twice (%s, %s)", ErrInvalidDescriptor, table, col, prev, c)
		}
		d.class[col] = c
		if c == WideInteger {
			d.types[col] = TypeBigint
		} else {
			d.types[col] = TypeString
		}
		return nil
	}
	for _, col := range d.wide {
		if err := add(col, WideInteger); err != nil {
			return nil, err
		}
	}
	for _, col := range d.general {
		if err := add(col, General); err != nil {
			return nil, err
		}
	}

	for col, raw := range s.Types {
		if _, ok := d.class[col]; !ok {
			return nil, fmt.Errorf("%w: %s.%s: type given for undeclared column", ErrInvalidDescriptor, table, col)
		}
		t := ColumnType(strings.ToLower(strings.TrimSpace(raw)))
		if _, ok := knownTypes[t]; !ok {
			return nil, fmt.Errorf("%w: %s.%s: unknown type %q", ErrInvalidDescriptor, table, col, raw)
		}
		d.types[col] = t
	}
	return d, nil
}

// MustNew: как New, но паникует. Для описаний, зашитых в код.
func MustNew(s Spec) *Descriptor {
	d, err := New(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Table возвращает имя таблицы.
func (d *Descriptor) Table() string { return d.table }

// WideInteger возвращает колонки wide-integer в порядке объявления.
func (d *Descriptor) WideInteger() []string { return append([]string(nil), d.wide...) }

// General возвращает обычные колонки в порядке объявления.
func (d *Descriptor) General() []string { return append([]string(nil), d.general...) }

// Columns: сначала wide-integer, затем general.
func (d *Descriptor) Columns() []string {
	out := make([]string, 0, len(d.wide)+len(d.general))
	out = append(out, d.wide...)
	return append(out, d.general...)
}

// Classify ищет поле по snake_case-форме; camelCase допускается.
func (d *Descriptor) Classify(field string) Class {
	return d.class[naming.ToSnake(field)]
}

// IsWide: сокращение для Classify(field) == WideInteger.
func (d *Descriptor) IsWide(field string) bool { return d.Classify(field) == WideInteger }

// Registered сообщает, объявлено ли поле в каком-либо наборе.
func (d *Descriptor) Registered(field string) bool { return d.Classify(field) != Unregistered }

// HasGeneral проверяет наличие обычной колонки (deleted, updated_at и т.д.).
func (d *Descriptor) HasGeneral(col string) bool { return d.class[col] == General }

// Paranoid: у сущности есть колонка deleted, значит действует мягкое удаление.
func (d *Descriptor) Paranoid() bool { return d.HasGeneral("deleted") }

// Type возвращает абстрактный тип колонки.
func (d *Descriptor) Type(col string) ColumnType { return d.types[col] }

// Spec восстанавливает исходное описание (для meta-API и тестов).
func (d *Descriptor) Spec() Spec {
	types := make(map[string]string, len(d.types))
	for col, t := range d.types {
		types[col] = string(t)
	}
	return Spec{
		Table:       d.table,
		WideInteger: d.WideInteger(),
		General:     d.General(),
		Types:       types,
	}
}
