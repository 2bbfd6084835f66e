package model

import "modelkit/internal/entity"

// Builtin возвращает реестр со встроенными сущностями и их фабриками.
func Builtin() *entity.Registry {
	r := entity.NewRegistry()
	r.MustRegister(EnterpriseEntity, func(f map[string]any) any { return NewEnterprise(f) })
	r.MustRegister(OptionEntity, func(f map[string]any) any { return NewOption(f) })
	r.MustRegister(UserEntity, func(f map[string]any) any { return NewUser(f) })
	return r
}
