package model

import (
	"time"

	"modelkit/internal/entity"
)

// OptionEntity: справочник значений (отделы, категории и т.п.), таблица option.
var OptionEntity = entity.MustNew(entity.Spec{
	Table:       "option",
	WideInteger: []string{"uid", "enterprise_uid", "created_by", "updated_by", "deleted_by"},
	General: []string{
		"name", "category", "memo", "created_at", "updated_at", "deleted", "deleted_at", "apply_to",
	},
	Types: map[string]string{
		"memo":       "text",
		"created_at": "datetime",
		"updated_at": "datetime",
		"deleted":    "bool",
		"deleted_at": "datetime",
	},
})

type Option struct {
	UID           *string    `json:"uid"`
	EnterpriseUID *string    `json:"enterpriseUid"`
	Name          *string    `json:"name"`
	Category      *string    `json:"category"`
	Memo          *string    `json:"memo"`
	CreatedBy     *string    `json:"createdBy"`
	UpdatedBy     *string    `json:"updatedBy"`
	DeletedBy     *string    `json:"deletedBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	Deleted       int        `json:"deleted"`
	DeletedAt     *time.Time `json:"deletedAt"`
	ApplyTo       *string    `json:"applyTo"`
}

func NewOption(fields map[string]any) *Option {
	return &Option{
		UID:           strPtr(fields, "uid"),
		EnterpriseUID: strPtr(fields, "enterpriseUid"),
		Name:          strPtr(fields, "name"),
		Category:      strPtr(fields, "category"),
		Memo:          strPtr(fields, "memo"),
		CreatedBy:     strPtr(fields, "createdBy"),
		UpdatedBy:     strPtr(fields, "updatedBy"),
		DeletedBy:     strPtr(fields, "deletedBy"),
		CreatedAt:     timeOr(fields, "createdAt", time.Now()),
		UpdatedAt:     timePtr(fields, "updatedAt"),
		Deleted:       intOr(fields, "deleted", 0),
		DeletedAt:     timePtr(fields, "deletedAt"),
		ApplyTo:       strPtr(fields, "applyTo"),
	}
}
