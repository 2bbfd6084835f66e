package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownEntity возвращается при обращении к незарегистрированной сущности.
var ErrUnknownEntity = errors.New("entity: unknown entity")

// Factory строит типизированную запись из map полей в camelCase.
type Factory func(fields map[string]any) any

// Entry: описание сущности и её фабрика записей (может быть nil).
type Entry struct {
	Descriptor *Descriptor
	Factory    Factory
}

// Registry хранит сущности по имени таблицы.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register добавляет сущность; повторная регистрация той же таблицы считается ошибкой.
func (r *Registry) Register(d *Descriptor, f Factory) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[d.Table()]; dup {
		return fmt.Errorf("entity: %s already registered", d.Table())
	}
	r.entries[d.Table()] = Entry{Descriptor: d, Factory: f}
	return nil
}

// MustRegister: Register с паникой; для встроенных сущностей.
func (r *Registry) MustRegister(d *Descriptor, f Factory) {
	if err := r.Register(d, f); err != nil {
		panic(err)
	}
}

// Lookup ищет сущность по имени таблицы без учёта регистра.
func (r *Registry) Lookup(kind string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(strings.TrimSpace(kind))]
	return e, ok
}

// Descriptor возвращает описание сущности или ErrUnknownEntity.
func (r *Registry) Descriptor(kind string) (*Descriptor, error) {
	e, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, kind)
	}
	return e.Descriptor, nil
}

// Create прогоняет поля через фабрику сущности.
// Для сущностей без фабрики (загруженных из YAML) возвращается сама map.
func (r *Registry) Create(kind string, fields map[string]any) (any, error) {
	e, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, kind)
	}
	if e.Factory == nil {
		return fields, nil
	}
	return e.Factory(fields), nil
}

// Kinds: имена зарегистрированных таблиц, по алфавиту.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Descriptors: все описания в порядке Kinds.
func (r *Registry) Descriptors() []*Descriptor {
	kinds := r.Kinds()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, r.entries[k].Descriptor)
	}
	return out
}
