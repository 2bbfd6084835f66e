package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"modelkit/internal/model"
	"modelkit/internal/query"
	"modelkit/internal/store"
)

func (s *Storage) modelFor(c *gin.Context) (*model.Model, bool) {
	m, ok := s.Model(c.Param("entity"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"errors": []FieldError{ferr(ErrNotFound, "entity", "Entity not found")}})
		return nil, false
	}
	return m, true
}

func (s *Storage) fail(c *gin.Context, err error) {
	status, errs := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error("request failed", "request_id", c.GetString(requestIDKey), "err", err)
	}
	c.JSON(status, gin.H{"errors": errs})
}

// GET /api/:entity
func FindHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := storage.modelFor(c)
		if !ok {
			return
		}
		fp, errs := storage.parseFindParams(m.Descriptor(), c.Request.URL.Query())
		if len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		if fp.Model {
			recs, err := m.FindModels(c.Request.Context(), fp.Cond, fp.Projection)
			if err != nil {
				storage.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, recs)
			return
		}
		rows, err := m.Find(c.Request.Context(), fp.Cond, fp.Projection)
		if err != nil {
			storage.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// GET /api/:entity/one
func FindOneHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := storage.modelFor(c)
		if !ok {
			return
		}
		fp, errs := storage.parseFindParams(m.Descriptor(), c.Request.URL.Query())
		if len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		var (
			rec any
			err error
		)
		if fp.Model {
			rec, err = m.FindOneModel(c.Request.Context(), fp.Cond, fp.Projection)
		} else {
			var row map[string]any
			row, err = m.FindOne(c.Request.Context(), fp.Cond, fp.Projection)
			if row != nil {
				rec = row
			}
		}
		if err != nil {
			storage.fail(c, err)
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"errors": []FieldError{ferr(ErrNotFound, "", "Record not found")}})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

type createResponse struct {
	model.Result
	UIDs []string `json:"uids,omitempty"`
}

// POST /api/:entity: объект вставляется одной записью, массив пакетом.
func CreateHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := storage.modelFor(c)
		if !ok {
			return
		}
		d := m.Descriptor()

		var body any
		if err := decodeJSON(c.Request.Body, &body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		var objs []map[string]any
		switch v := body.(type) {
		case map[string]any:
			objs = []map[string]any{v}
		case []any:
			for _, it := range v {
				obj, ok := it.(map[string]any)
				if !ok {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Array items must be objects"})
					return
				}
				objs = append(objs, obj)
			}
		}
		if len(objs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Expected an object or a non-empty array"})
			return
		}

		rows := make([]query.Fields, 0, len(objs))
		var uids []string
		for _, obj := range objs {
			fields, errs := normalizeFields(d, obj, true, false)
			if len(errs) > 0 {
				c.JSON(statusForErrors(errs), gin.H{"errors": errs})
				return
			}
			// uid не передан: берём у базы, если диалект умеет
			if d.IsWide("uid") && obj["uid"] == nil {
				uid, err := m.GenerateUID(c.Request.Context())
				switch {
				case err == nil:
					fields = append(query.Fields{{Name: "uid", Value: uid}}, fields...)
					uids = append(uids, uid)
				case !errors.Is(err, store.ErrUnsupported):
					storage.fail(c, err)
					return
				}
			}
			rows = append(rows, fields)
		}

		var (
			res model.Result
			err error
		)
		if _, isArray := body.([]any); isArray {
			res, err = m.InsertBatch(c.Request.Context(), rows)
		} else {
			res, err = m.Insert(c.Request.Context(), rows[0])
		}
		if err != nil {
			storage.fail(c, err)
			return
		}
		if !res.Success {
			c.JSON(http.StatusInternalServerError, res)
			return
		}
		c.JSON(http.StatusCreated, createResponse{Result: res, UIDs: uids})
	}
}

type updateReq struct {
	Data      map[string]any `json:"data"`
	Condition map[string]any `json:"condition"`
	UpdatedBy any            `json:"updatedBy"`
}

// PATCH /api/:entity
func UpdateHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := storage.modelFor(c)
		if !ok {
			return
		}
		d := m.Descriptor()

		var req updateReq
		if err := decodeJSON(c.Request.Body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		data, errs := normalizeFields(d, req.Data, true, false)
		cond, ce := normalizeFields(d, req.Condition, false, true)
		errs = append(errs, ce...)
		by, err := actorID(req.UpdatedBy)
		if err != nil {
			errs = append(errs, ferr(ErrTypeMismatch, "updatedBy", "updatedBy "+err.Error()))
		}
		if len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		res, err := m.Update(c.Request.Context(), data, cond, by)
		writeResult(storage, c, res, err)
	}
}

type markDeletedReq struct {
	Condition map[string]any `json:"condition"`
	DeletedBy any            `json:"deletedBy"`
}

// POST /api/:entity/_mark_deleted
func MarkDeletedHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := storage.modelFor(c)
		if !ok {
			return
		}
		var req markDeletedReq
		if err := decodeJSON(c.Request.Body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		cond, errs := normalizeFields(m.Descriptor(), req.Condition, false, true)
		by, err := actorID(req.DeletedBy)
		if err != nil {
			errs = append(errs, ferr(ErrTypeMismatch, "deletedBy", "deletedBy "+err.Error()))
		}
		if len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		res, err := m.MarkDeleted(c.Request.Context(), cond, by)
		writeResult(storage, c, res, err)
	}
}

// DELETE /api/:entity?<условия>
func DeleteHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := storage.modelFor(c)
		if !ok {
			return
		}
		cond, errs := conditionsFromQuery(m.Descriptor(), c.Request.URL.Query())
		if len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}
		res, err := m.Delete(c.Request.Context(), cond)
		writeResult(storage, c, res, err)
	}
}

// POST /api/_uid
func UIDHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := storage.DB.GenerateUID(c.Request.Context(), storage.DB.SQL())
		if errors.Is(err, store.ErrUnsupported) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			storage.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"uid": uid})
	}
}

func writeResult(storage *Storage, c *gin.Context, res model.Result, err error) {
	if err != nil {
		storage.fail(c, err)
		return
	}
	if !res.Success {
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// actorID: updatedBy/deletedBy это id пользователя (wide-integer) или null.
func actorID(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := toIntString(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}
