package api

import (
	"strings"

	"github.com/go-openapi/inflect"

	"modelkit/internal/entity"
	"modelkit/internal/naming"
)

// NormalizeEntityName находит сущность по имени из URL: "user", "users", "User",
// "enterpriseOptions" -> enterprise_option.
func (s *Storage) NormalizeEntityName(raw string) (entity.Entry, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return entity.Entry{}, false
	}
	// 1) как есть (регистр не важен)
	if e, ok := s.Registry.Lookup(name); ok {
		return e, true
	}
	// 2) camelCase -> snake_case
	snake := naming.ToSnake(name)
	if e, ok := s.Registry.Lookup(snake); ok {
		return e, true
	}
	// 3) множественное число -> единственное
	if e, ok := s.Registry.Lookup(inflect.Singularize(snake)); ok {
		return e, true
	}
	return entity.Entry{}, false
}
