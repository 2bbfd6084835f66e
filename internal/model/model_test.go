package model_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelkit/internal/model"
	"modelkit/internal/query"
	"modelkit/internal/store"
)

type fixture struct {
	mock sqlmock.Sqlmock
	db   *store.DB
	logs *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	logs := &bytes.Buffer{}
	db := store.OpenDB(raw, query.MySQL, store.WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	return &fixture{mock: mock, db: db, logs: logs}
}

func (f *fixture) model(t *testing.T, kind string) *model.Model {
	t.Helper()
	m, err := model.For(f.db, model.Builtin(), kind)
	require.NoError(t, err)
	return m
}

const userWithEnterprise = "SELECT CAST(user.uid AS CHAR) AS uid, user.name, " +
	"CAST(enterprise.uid AS CHAR) AS enterprise_uid, enterprise.name AS enterprise_name " +
	"FROM user LEFT JOIN enterprise ON user.enterprise_uid = enterprise.uid " +
	"WHERE 1=1 AND CAST(user.enterprise_uid AS CHAR) = ? AND user.deleted = 0"

var withEnterprise = query.Projection{
	Fields: []string{"uid", "name"},
	Joins:  []query.Join{{Entity: model.EnterpriseEntity, Fields: []string{"uid", "name"}}},
}

func TestFind(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(userWithEnterprise).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name", "enterprise_uid", "enterprise_name"}).
			AddRow([]byte("99790745107431484"), "ann", []byte("1"), "acme"))

	rows, err := f.model(t, "user").Find(context.Background(), query.F("enterpriseUid", "1"), withEnterprise)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{
		"uid": "99790745107431484", "name": "ann", "enterpriseUid": "1", "enterpriseName": "acme",
	}}, rows)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFindEmpty(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(userWithEnterprise).WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name", "enterprise_uid", "enterprise_name"}))

	rows, err := f.model(t, "user").Find(context.Background(), query.F("enterpriseUid", "1"), withEnterprise)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFindOne(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(userWithEnterprise + " LIMIT 1").WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "name", "enterprise_uid", "enterprise_name"}))

	row, err := f.model(t, "user").FindOne(context.Background(), query.F("enterpriseUid", "1"), withEnterprise)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFindExecError(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(userWithEnterprise).WithArgs("1").WillReturnError(errors.New("table missing"))

	rows, err := f.model(t, "user").Find(context.Background(), query.F("enterpriseUid", "1"), withEnterprise)
	assert.Nil(t, rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExec)
	var ee *model.ExecError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, userWithEnterprise, ee.SQL)
	assert.Equal(t, []any{"1"}, ee.Args)
	assert.Contains(t, f.logs.String(), "user.find")
}

func TestFindInvalidProjection(t *testing.T) {
	f := newFixture(t)
	_, err := f.model(t, "user").Find(context.Background(), nil, query.Projection{Fields: []string{"nickname"}})
	assert.True(t, query.IsInvalid(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFindModels(t *testing.T) {
	f := newFixture(t)
	const sel = "SELECT CAST(user.uid AS CHAR) AS uid, user.name, user.enabled FROM user WHERE 1=1 AND user.deleted = 0"
	f.mock.ExpectQuery(sel).WillReturnRows(sqlmock.NewRows([]string{"uid", "name", "enabled"}).
		AddRow([]byte("1"), "ann", int64(0)).
		AddRow([]byte("2"), "bob", nil))

	users, err := model.FindAs[*model.User](context.Background(), f.model(t, "user"), nil,
		query.Projection{Fields: []string{"uid", "name", "enabled"}})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ann", *users[0].Name)
	assert.False(t, users[0].Enabled)
	assert.True(t, users[1].Enabled)
	assert.Nil(t, users[1].EnterpriseUID)
	assert.Equal(t, 0, users[1].Deleted)
}

func TestFindOneAs(t *testing.T) {
	f := newFixture(t)
	const sel = "SELECT CAST(enterprise.uid AS CHAR) AS uid, enterprise.timezone FROM enterprise " +
		"WHERE 1=1 AND CAST(enterprise.uid AS CHAR) = ? AND enterprise.deleted = 0 LIMIT 1"
	f.mock.ExpectQuery(sel).WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "timezone"}).AddRow([]byte("5"), nil))

	e, found, err := model.FindOneAs[*model.Enterprise](context.Background(), f.model(t, "enterprise"),
		query.F("uid", "5"), query.Projection{Fields: []string{"uid", "timezone"}})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "5", *e.UID)
	assert.Equal(t, "+0800", e.Timezone)

	f.mock.ExpectQuery(sel).WithArgs("5").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "timezone"}).AddRow([]byte("5"), "+0300"))
	_, _, err = model.FindOneAs[*model.User](context.Background(), f.model(t, "enterprise"),
		query.F("uid", "5"), query.Projection{Fields: []string{"uid", "timezone"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrExec)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("INSERT INTO option (uid,enterprise_uid,name) VALUES (?,?,?)").
		WithArgs("1", "2", "sales").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := f.model(t, "option").Insert(context.Background(),
		query.F("uid", "1", "enterpriseUid", "2", "name", "sales", "color", "red"))
	require.NoError(t, err)
	assert.Equal(t, model.Result{Success: true, Data: &store.ExecSummary{AffectedRows: 1}}, res)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestInsertBatch(t *testing.T) {
	f := newFixture(t)
	prep := f.mock.ExpectPrepare("INSERT INTO option (uid,name) VALUES (?,?)")
	prep.ExpectExec().WithArgs("1", "a").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("2", "b").WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := f.model(t, "option").InsertBatch(context.Background(), []query.Fields{
		query.F("uid", "1", "name", "a"),
		query.F("name", "b", "uid", "2"),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(2), res.Data.AffectedRows)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateFailureIsResult(t *testing.T) {
	f := newFixture(t)
	const upd = "UPDATE user SET updated_at = NOW(), name = ?, updated_by = ? " +
		"WHERE 1=1 AND CAST(user.uid AS CHAR) = ? AND user.deleted = 0"
	f.mock.ExpectExec(upd).WithArgs("n", "9", "1").WillReturnError(errors.New("lock wait timeout"))

	res, err := f.model(t, "user").Update(context.Background(), query.F("name", "n"), query.F("uid", "1"), "9")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "lock wait timeout", res.Message)
	assert.Contains(t, f.logs.String(), "user.update failed")
	assert.Contains(t, f.logs.String(), "updated_by = ?")
}

func TestMarkDeletedInTransaction(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE user SET deleted = 1, deleted_at = NOW(), deleted_by = ? "+
		"WHERE 1=1 AND CAST(user.uid AS CHAR) = ? AND user.deleted = 0").
		WithArgs("7", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("DELETE FROM option WHERE 1=1 AND CAST(option.enterprise_uid AS CHAR) = ? AND option.deleted = 0").
		WithArgs("3").
		WillReturnResult(sqlmock.NewResult(0, 4))
	f.mock.ExpectCommit()

	users, options := f.model(t, "user"), f.model(t, "option")
	err := f.db.InTx(context.Background(), func(tx *sql.Tx) error {
		res, err := users.MarkDeleted(context.Background(), query.F("uid", "1"), "7", model.WithConn(tx))
		if err != nil || !res.Success {
			return errors.New("mark deleted failed")
		}
		res, err = options.Delete(context.Background(), query.F("enterpriseUid", "3"), model.WithConn(tx))
		if err != nil || !res.Success {
			return errors.New("delete failed")
		}
		assert.Equal(t, int64(4), res.Data.AffectedRows)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWriteRequiresCondition(t *testing.T) {
	f := newFixture(t)
	m := f.model(t, "user")
	_, err := m.Delete(context.Background(), nil)
	assert.True(t, query.IsInvalid(err))
	_, err = m.MarkDeleted(context.Background(), query.Fields{}, nil)
	assert.True(t, query.IsInvalid(err))
	_, err = m.Update(context.Background(), query.F("name", "x"), nil, nil)
	assert.True(t, query.IsInvalid(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConnectionFailure(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	db := store.OpenDB(raw, query.MySQL, store.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, db.Close())

	m, err := model.For(db, model.Builtin(), "user")
	require.NoError(t, err)

	_, err = m.Find(context.Background(), nil, query.Projection{})
	assert.ErrorIs(t, err, store.ErrConnect)
	_, err = m.Insert(context.Background(), query.F("uid", "1"))
	assert.ErrorIs(t, err, store.ErrConnect)
}

func TestForUnknownEntity(t *testing.T) {
	f := newFixture(t)
	_, err := model.For(f.db, model.Builtin(), "invoice")
	assert.Error(t, err)
}

func TestBuildPassthrough(t *testing.T) {
	f := newFixture(t)
	sel, err := f.model(t, "user").BuildSelect(withEnterprise)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT CAST(user.uid AS CHAR) AS uid, user.name, CAST(enterprise.uid AS CHAR) AS enterprise_uid, "+
			"enterprise.name AS enterprise_name FROM user LEFT JOIN enterprise ON user.enterprise_uid = enterprise.uid",
		sel)

	st, err := f.model(t, "user").BuildInsert(query.F("uid", "1", "name", "n"))
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO user (uid,name) VALUES (?,?)", st.SQL)
}

func TestRecordDefaults(t *testing.T) {
	before := time.Now()
	u := model.NewUser(map[string]any{"uid": "1", "nickname": "ignored"})
	assert.Equal(t, "1", *u.UID)
	assert.True(t, u.Enabled)
	assert.Equal(t, 0, u.Deleted)
	assert.Nil(t, u.EnterpriseUID)
	assert.Nil(t, u.DeletedAt)
	assert.False(t, u.CreatedAt.Before(before))

	e := model.NewEnterprise(map[string]any{"name": "acme", "deleted": "1"})
	assert.Equal(t, "", e.IdentityID)
	assert.Equal(t, "+0800", e.Timezone)
	assert.Equal(t, 1, e.Deleted)

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	o := model.NewOption(map[string]any{
		"enterpriseUid": json.Number("99790745107431484"),
		"createdAt":     "2024-05-01 10:00:00",
		"deleted":       true,
	})
	assert.Equal(t, "99790745107431484", *o.EnterpriseUID)
	assert.Equal(t, created, o.CreatedAt)
	assert.Equal(t, 1, o.Deleted)
}

func TestUserPasswordNotSerialized(t *testing.T) {
	b, err := json.Marshal(model.NewUser(map[string]any{"password": "secret"}))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
}

func TestBuiltinRegistry(t *testing.T) {
	r := model.Builtin()
	assert.Equal(t, []string{"enterprise", "option", "user"}, r.Kinds())
	assert.Empty(t, r.Lint())

	rec, err := r.Create("user", map[string]any{"name": "ann"})
	require.NoError(t, err)
	assert.IsType(t, &model.User{}, rec)
}
