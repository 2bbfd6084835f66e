package model

import (
	"time"

	"modelkit/internal/entity"
)

// EnterpriseEntity: таблица enterprise.
var EnterpriseEntity = entity.MustNew(entity.Spec{
	Table:       "enterprise",
	WideInteger: []string{"uid", "created_by", "updated_by", "deleted_by"},
	General: []string{
		"code", "name", "identity_id", "enterprise_type", "timezone", "address",
		"plan", "settings", "created_at", "updated_at", "deleted", "deleted_at",
	},
	Types: map[string]string{
		"address":    "text",
		"settings":   "json",
		"created_at": "datetime",
		"updated_at": "datetime",
		"deleted":    "bool",
		"deleted_at": "datetime",
	},
})

const defaultEnterpriseTimezone = "+0800"

type Enterprise struct {
	UID            *string    `json:"uid"`
	Code           *string    `json:"code"`
	Name           *string    `json:"name"`
	IdentityID     string     `json:"identityId"`
	EnterpriseType *string    `json:"enterpriseType"`
	Timezone       string     `json:"timezone"`
	Address        *string    `json:"address"`
	Plan           *string    `json:"plan"`
	Settings       *string    `json:"settings"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedBy      *string    `json:"createdBy"`
	UpdatedAt      *time.Time `json:"updatedAt"`
	UpdatedBy      *string    `json:"updatedBy"`
	Deleted        int        `json:"deleted"`
	DeletedAt      *time.Time `json:"deletedAt"`
	DeletedBy      *string    `json:"deletedBy"`
}

func NewEnterprise(fields map[string]any) *Enterprise {
	return &Enterprise{
		UID:            strPtr(fields, "uid"),
		Code:           strPtr(fields, "code"),
		Name:           strPtr(fields, "name"),
		IdentityID:     strOr(fields, "identityId", ""),
		EnterpriseType: strPtr(fields, "enterpriseType"),
		Timezone:       strOr(fields, "timezone", defaultEnterpriseTimezone),
		Address:        strPtr(fields, "address"),
		Plan:           strPtr(fields, "plan"),
		Settings:       strPtr(fields, "settings"),
		CreatedAt:      timeOr(fields, "createdAt", time.Now()),
		CreatedBy:      strPtr(fields, "createdBy"),
		UpdatedAt:      timePtr(fields, "updatedAt"),
		UpdatedBy:      strPtr(fields, "updatedBy"),
		Deleted:        intOr(fields, "deleted", 0),
		DeletedAt:      timePtr(fields, "deletedAt"),
		DeletedBy:      strPtr(fields, "deletedBy"),
	}
}
