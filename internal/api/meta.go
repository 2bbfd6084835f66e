package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"modelkit/internal/entity"
	"modelkit/internal/naming"
)

// ===== META HANDLERS =====

type metaEntityListItem struct {
	Entity   string `json:"entity"`
	Paranoid bool   `json:"paranoid"`
	Columns  int    `json:"columns"`
	Model    bool   `json:"model"` // есть типизированная фабрика записей
}

func MetaListHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		kinds := storage.Registry.Kinds()
		out := make([]metaEntityListItem, 0, len(kinds))
		for _, k := range kinds {
			e, _ := storage.Registry.Lookup(k)
			out = append(out, metaEntityListItem{
				Entity:   k,
				Paranoid: e.Descriptor.Paranoid(),
				Columns:  len(e.Descriptor.Columns()),
				Model:    e.Factory != nil,
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

type metaField struct {
	Name   string `json:"name"`   // camelCase, как в запросах
	Column string `json:"column"` // snake_case
	Class  string `json:"class"`  // wide_integer | general
	Type   string `json:"type"`
}

type metaEntity struct {
	Entity   string         `json:"entity"`
	Paranoid bool           `json:"paranoid"`
	Fields   []metaField    `json:"fields"`
	Issues   []entity.Issue `json:"issues,omitempty"`
}

func MetaEntityHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := storage.NormalizeEntityName(c.Param("entity"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"errors": []FieldError{ferr(ErrNotFound, "entity", "Entity not found")}})
			return
		}
		d := e.Descriptor

		fields := make([]metaField, 0, len(d.Columns()))
		for _, col := range d.Columns() {
			fields = append(fields, metaField{
				Name:   naming.ToCamel(col),
				Column: col,
				Class:  d.Classify(col).String(),
				Type:   string(d.Type(col)),
			})
		}

		var issues []entity.Issue
		for _, is := range storage.Registry.Lint() {
			if is.Entity == d.Table() {
				issues = append(issues, is)
			}
		}

		c.JSON(http.StatusOK, metaEntity{
			Entity:   d.Table(),
			Paranoid: d.Paranoid(),
			Fields:   fields,
			Issues:   issues,
		})
	}
}
