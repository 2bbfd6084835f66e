package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"modelkit/internal/entity"
	"modelkit/internal/store"
)

// BlockingIssues: замечания линтера, при которых миграция не выполняется.
func (s *Storage) BlockingIssues() []entity.Issue {
	var out []entity.Issue
	for _, is := range s.Registry.Lint() {
		if is.Blocking {
			out = append(out, is)
		}
	}
	return out
}

// Migrate создаёт недостающие таблицы и индексы для всех сущностей реестра.
func (s *Storage) Migrate(ctx context.Context) (statements, applied int, err error) {
	if issues := s.BlockingIssues(); len(issues) > 0 {
		return 0, 0, fmt.Errorf("schema has %d blocking issues", len(issues))
	}
	ddl, err := store.GenerateDDL(s.DB.Dialect(), s.Registry.Descriptors())
	if err != nil {
		return 0, 0, err
	}
	applied, err = s.DB.ApplyDDL(ctx, ddl)
	return len(ddl), applied, err
}

type migrateReq struct {
	DryRun bool `json:"dryRun"`
}

// POST /api/admin/migrate
func AdminMigrateHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req migrateReq
		if c.Request.ContentLength > 0 {
			if err := decodeJSON(c.Request.Body, &req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
				return
			}
		}

		if issues := storage.BlockingIssues(); len(issues) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "schema has blocking issues",
				"issues": issues,
				"hint":   "fix entity descriptors and retry",
			})
			return
		}

		if req.DryRun {
			ddl, err := store.GenerateDDL(storage.DB.Dialect(), storage.Registry.Descriptors())
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "DDL generation failed", "details": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"ok": true, "dryRun": true, "ddl": ddl})
			return
		}

		statements, applied, err := storage.Migrate(c.Request.Context())
		if err != nil {
			storage.Log.Error("migrate failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "migrate failed", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"entities":   len(storage.Registry.Kinds()),
			"statements": statements,
			"applied":    applied,
		})
	}
}
