package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelkit/internal/model"
	"modelkit/internal/query"
	"modelkit/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	mock    sqlmock.Sqlmock
	storage *Storage
	router  *gin.Engine
	logs    *bytes.Buffer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	logs := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(logs, nil))
	db := store.OpenDB(raw, query.MySQL, store.WithLogger(log))
	s := NewStorage(model.Builtin(), db)
	return &apiFixture{mock: mock, storage: s, router: NewRouter(s), logs: logs}
}

func (f *apiFixture) do(method, target string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func q(s string) string { return regexp.QuoteMeta(s) }

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorsBody struct {
	Errors []FieldError `json:"errors"`
}

func TestNormalizeEntityName(t *testing.T) {
	f := newAPIFixture(t)
	for raw, want := range map[string]string{
		"user":          "user",
		"Users":         "user",
		"enterprises":   "enterprise",
		"options":       "option",
		"  Enterprise ": "enterprise",
	} {
		e, ok := f.storage.NormalizeEntityName(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, e.Descriptor.Table(), raw)
	}
	_, ok := f.storage.NormalizeEntityName("ghost")
	assert.False(t, ok)
	_, ok = f.storage.NormalizeEntityName("")
	assert.False(t, ok)
}

func TestMetaList(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)

	items := decode[[]metaEntityListItem](t, w)
	require.Len(t, items, 3)
	assert.Equal(t, "enterprise", items[0].Entity)
	assert.True(t, items[0].Paranoid)
	assert.True(t, items[0].Model)
}

func TestMetaEntity(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/meta/enterprises", nil)
	require.Equal(t, http.StatusOK, w.Code)

	me := decode[metaEntity](t, w)
	assert.Equal(t, "enterprise", me.Entity)
	var uid, settings metaField
	for _, fl := range me.Fields {
		switch fl.Column {
		case "uid":
			uid = fl
		case "settings":
			settings = fl
		}
	}
	assert.Equal(t, "wide_integer", uid.Class)
	assert.Equal(t, "json", settings.Type)

	w = f.do(http.MethodGet, "/api/meta/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFindWithGrammar(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("SELECT CAST(enterprise.uid AS CHAR) AS uid, enterprise.name FROM enterprise "+
		"WHERE 1=1 AND enterprise.plan = ? AND enterprise.name LIKE ? "+
		"AND enterprise.code IN (?, ?) AND enterprise.deleted = 0 "+
		"ORDER BY enterprise.name DESC LIMIT 10 OFFSET 5")).
		WithArgs("pro", "%ac%", "A1", "B2").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}).
			AddRow([]byte("99790745107431484"), "acme"))

	w := f.do(http.MethodGet,
		"/api/enterprises?fields=uid,name&plan=pro&like.name=ac&in.code=A1,B2&_sort=-name&_limit=10&_offset=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rows := decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "99790745107431484", rows[0]["uid"])
	assert.Equal(t, "acme", rows[0]["name"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFindOrGroupAndParanoidOff(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("WHERE 1=1 AND (enterprise.plan = ? OR enterprise.plan = ?) LIMIT 50")).
		WithArgs("free", "pro").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}))

	w := f.do(http.MethodGet, "/api/enterprise?plan=free&plan=pro&paranoid=false", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFindLimitBounds(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("AND enterprise.deleted = 0 LIMIT 50") + "$").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}))
	f.mock.ExpectQuery(q("AND enterprise.deleted = 0 LIMIT 50 OFFSET 5") + "$").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}))
	f.mock.ExpectQuery(q("AND enterprise.deleted = 0 LIMIT 50") + "$").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}))

	// ноль и значения сверх maxLimit не снимают ограничение
	w := f.do(http.MethodGet, "/api/enterprises?fields=uid&_limit=0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(http.MethodGet, "/api/enterprises?fields=uid&_limit=0&_offset=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(http.MethodGet, "/api/enterprises?fields=uid&_limit=5000", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFindWithInclude(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("enterprise.name AS enterprise_name FROM user " +
		"LEFT JOIN enterprise ON user.enterprise_uid = enterprise.uid")).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name", "enterprise_name"}).
			AddRow([]byte("5"), "ann", "acme"))

	w := f.do(http.MethodGet, "/api/users?fields=uid,name&include=enterprise(name)&enterpriseUid=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rows := decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "acme", rows[0]["enterpriseName"])
}

func TestFindValidation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/enterprise?color=red", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorsBody](t, w)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, ErrUnknownField, body.Errors[0].Code)
	assert.Equal(t, "color", body.Errors[0].Field)

	w = f.do(http.MethodGet, "/api/enterprise?uid=abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decode[errorsBody](t, w)
	assert.Equal(t, ErrTypeMismatch, body.Errors[0].Code)

	w = f.do(http.MethodGet, "/api/enterprise?include=ghost(name)", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/enterprise?include=enterprise", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decode[errorsBody](t, w)
	assert.Equal(t, ErrInvalidQuery, body.Errors[0].Code)

	w = f.do(http.MethodGet, "/api/ghosts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFindModels(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("FROM enterprise WHERE 1=1 AND CAST(enterprise.uid AS CHAR) = ?")).
		WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "timezone"}).AddRow([]byte("5"), nil))

	w := f.do(http.MethodGet, "/api/enterprise?fields=uid,timezone&uid=5&model=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	recs := decode[[]map[string]any](t, w)
	require.Len(t, recs, 1)
	assert.Equal(t, "+0800", recs[0]["timezone"])
}

func TestFindExecError(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("FROM enterprise")).WillReturnError(errors.New("table missing"))

	w := f.do(http.MethodGet, "/api/enterprise", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[errorsBody](t, w)
	assert.Equal(t, "exec_failed", body.Errors[0].Code)
	assert.Contains(t, f.logs.String(), "request failed")
}

func TestFindOne(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("AND enterprise.deleted = 0 LIMIT 1")).WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}).AddRow([]byte("7"), "acme"))
	f.mock.ExpectQuery(q("AND enterprise.deleted = 0 LIMIT 1")).WithArgs("8").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name"}))

	w := f.do(http.MethodGet, "/api/enterprise/one?fields=uid,name&uid=7", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	row := decode[map[string]any](t, w)
	assert.Equal(t, "7", row["uid"])

	w = f.do(http.MethodGet, "/api/enterprise/one?fields=uid,name&uid=8", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode[errorsBody](t, w)
	assert.Equal(t, ErrNotFound, body.Errors[0].Code)
}

func TestCreateObjectGeneratesUID(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("SELECT CAST(UUID_SHORT() AS CHAR) AS uid")).
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow([]byte("99790745107431484")))
	f.mock.ExpectExec(q("INSERT INTO enterprise (uid,code,name,settings) VALUES (?,?,?,?)")).
		WithArgs("99790745107431484", "A1", "acme", `{"theme":"dark"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.do(http.MethodPost, "/api/enterprises",
		`{"name":"acme","code":"A1","settings":{"theme":"dark"},"color":"ignored"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := decode[createResponse](t, w)
	assert.True(t, res.Success)
	require.NotNil(t, res.Data)
	assert.Equal(t, int64(1), res.Data.AffectedRows)
	assert.Equal(t, []string{"99790745107431484"}, res.UIDs)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateArrayBatch(t *testing.T) {
	f := newAPIFixture(t)
	prep := f.mock.ExpectPrepare(q("INSERT INTO option (name,uid) VALUES (?,?)"))
	prep.ExpectExec().WithArgs("a", "1").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("b", "2").WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.do(http.MethodPost, "/api/options", `[{"uid":"1","name":"a"},{"uid":2,"name":"b"}]`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := decode[createResponse](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, int64(2), res.Data.AffectedRows)
	assert.Empty(t, res.UIDs)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/enterprise", `{"uid":"x1","name":"acme"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorsBody](t, w)
	assert.Equal(t, ErrTypeMismatch, body.Errors[0].Code)
	assert.Equal(t, "uid", body.Errors[0].Field)

	w = f.do(http.MethodPost, "/api/enterprise", `{"uid":"1","name":{"a":1}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/enterprise", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/enterprise", `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/enterprise", `{"uid":"1"} {}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateExecFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectExec(q("INSERT INTO enterprise (name,uid) VALUES (?,?)")).
		WithArgs("acme", "1").
		WillReturnError(errors.New("duplicate entry"))

	w := f.do(http.MethodPost, "/api/enterprise", `{"uid":"1","name":"acme"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	res := decode[model.Result](t, w)
	assert.False(t, res.Success)
	assert.Equal(t, "duplicate entry", res.Message)
}

func TestUpdate(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectExec(q("UPDATE enterprise SET updated_at = NOW(), name = ?, updated_by = ? "+
		"WHERE 1=1 AND CAST(enterprise.uid AS CHAR) = ? AND enterprise.deleted = 0")).
		WithArgs("renamed", "9", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.do(http.MethodPatch, "/api/enterprise",
		`{"data":{"name":"renamed"},"condition":{"uid":"1"},"updatedBy":9}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[model.Result](t, w)
	assert.True(t, res.Success)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	w = f.do(http.MethodPatch, "/api/enterprise", `{"data":{"name":"x"},"condition":{"uid":"1"},"updatedBy":"bob"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorsBody](t, w)
	assert.Equal(t, "updatedBy", body.Errors[0].Field)

	// без условия построитель отказывает
	w = f.do(http.MethodPatch, "/api/enterprise", `{"data":{"name":"x"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decode[errorsBody](t, w)
	assert.Equal(t, ErrInvalidQuery, body.Errors[0].Code)
}

func TestMarkDeleted(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectExec(q("UPDATE enterprise SET deleted = 1, deleted_at = NOW(), deleted_by = ? "+
		"WHERE 1=1 AND (CAST(enterprise.uid AS CHAR) = ? OR CAST(enterprise.uid AS CHAR) = ?) "+
		"AND enterprise.deleted = 0")).
		WithArgs("7", "1", "2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	w := f.do(http.MethodPost, "/api/enterprise/_mark_deleted", `{"condition":{"uid":["1","2"]},"deletedBy":"7"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[model.Result](t, w)
	assert.Equal(t, int64(2), res.Data.AffectedRows)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectExec(q("DELETE FROM option WHERE 1=1 AND CAST(option.enterprise_uid AS CHAR) = ? AND option.deleted = 0")).
		WithArgs("3").
		WillReturnResult(sqlmock.NewResult(0, 4))

	w := f.do(http.MethodDelete, "/api/options?enterpriseUid=3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[model.Result](t, w)
	assert.Equal(t, int64(4), res.Data.AffectedRows)

	w = f.do(http.MethodDelete, "/api/options", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUIDEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery(q("SELECT CAST(UUID_SHORT() AS CHAR) AS uid")).
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow([]byte("42")))

	w := f.do(http.MethodPost, "/api/_uid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":"42"}`, w.Body.String())
}

func TestUIDEndpointPostgres(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	s := NewStorage(model.Builtin(), store.OpenDB(raw, query.Postgres))

	w := httptest.NewRecorder()
	NewRouter(s).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/_uid", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRequestID(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/meta", nil)
	assert.Len(t, w.Header().Get(requestIDHeader), 26)

	req := httptest.NewRequest(http.MethodGet, "/api/meta", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	assert.Contains(t, f.logs.String(), "request_id=abc-123")
}

func TestAdminMigrateDryRun(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodPost, "/api/admin/migrate", `{"dryRun":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		DryRun bool              `json:"dryRun"`
		DDL    map[string]string `json:"ddl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.DryRun)
	assert.Contains(t, out.DDL, "100_enterprise")
	assert.Contains(t, out.DDL, "200_idx_option_enterprise_uid")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAdminMigrateApply(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.MatchExpectationsInOrder(false)
	for i := 0; i < countDDL(t, f); i++ {
		f.mock.ExpectExec("(?i)create").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	w := f.do(http.MethodPost, "/api/admin/migrate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Statements int `json:"statements"`
		Applied    int `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, out.Statements, out.Applied)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func countDDL(t *testing.T, f *apiFixture) int {
	t.Helper()
	ddl, err := store.GenerateDDL(f.storage.DB.Dialect(), f.storage.Registry.Descriptors())
	require.NoError(t, err)
	return len(ddl)
}

func TestStatusForError(t *testing.T) {
	status, _ := statusForError(&store.ConnError{Dialect: "mysql", Addr: "db:3306", Err: errors.New("refused")})
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, errs := statusForError(&model.ExecError{Op: "user.find", Err: errors.New("boom")})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "exec_failed", errs[0].Code)

	status, _ = statusForError(errors.New("other"))
	assert.Equal(t, http.StatusInternalServerError, status)
}
