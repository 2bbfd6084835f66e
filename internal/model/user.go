package model

import (
	"time"

	"modelkit/internal/entity"
)

// UserEntity: таблица user.
var UserEntity = entity.MustNew(entity.Spec{
	Table:       "user",
	WideInteger: []string{"uid", "enterprise_uid", "created_by", "updated_by", "deleted_by"},
	General: []string{
		"name", "type", "email", "mobile", "password", "password_updated_at",
		"authority", "enabled", "created_at", "updated_at", "deleted", "deleted_at",
	},
	Types: map[string]string{
		"password_updated_at": "datetime",
		"enabled":             "bool",
		"created_at":          "datetime",
		"updated_at":          "datetime",
		"deleted":             "bool",
		"deleted_at":          "datetime",
	},
})

type User struct {
	UID               *string    `json:"uid"`
	Name              *string    `json:"name"`
	Type              *string    `json:"type"`
	Email             *string    `json:"email"`
	Mobile            *string    `json:"mobile"`
	EnterpriseUID     *string    `json:"enterpriseUid"`
	Password          *string    `json:"-"`
	PasswordUpdatedAt *time.Time `json:"passwordUpdatedAt"`
	Authority         *string    `json:"authority"`
	Enabled           bool       `json:"enabled"`
	CreatedAt         time.Time  `json:"createdAt"`
	CreatedBy         *string    `json:"createdBy"`
	UpdatedAt         *time.Time `json:"updatedAt"`
	UpdatedBy         *string    `json:"updatedBy"`
	Deleted           int        `json:"deleted"`
	DeletedAt         *time.Time `json:"deletedAt"`
	DeletedBy         *string    `json:"deletedBy"`
}

// NewUser строит запись из полей в camelCase; отсутствующие поля получают значения по умолчанию.
func NewUser(fields map[string]any) *User {
	return &User{
		UID:               strPtr(fields, "uid"),
		Name:              strPtr(fields, "name"),
		Type:              strPtr(fields, "type"),
		Email:             strPtr(fields, "email"),
		Mobile:            strPtr(fields, "mobile"),
		EnterpriseUID:     strPtr(fields, "enterpriseUid"),
		Password:          strPtr(fields, "password"),
		PasswordUpdatedAt: timePtr(fields, "passwordUpdatedAt"),
		Authority:         strPtr(fields, "authority"),
		Enabled:           boolOr(fields, "enabled", true),
		CreatedAt:         timeOr(fields, "createdAt", time.Now()),
		CreatedBy:         strPtr(fields, "createdBy"),
		UpdatedAt:         timePtr(fields, "updatedAt"),
		UpdatedBy:         strPtr(fields, "updatedBy"),
		Deleted:           intOr(fields, "deleted", 0),
		DeletedAt:         timePtr(fields, "deletedAt"),
		DeletedBy:         strPtr(fields, "deletedBy"),
	}
}
