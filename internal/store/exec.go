package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"modelkit/internal/query"
)

// Querier: общее у *sql.DB, *sql.Conn и *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// ExecSummary: итог изменяющего запроса.
type ExecSummary struct {
	AffectedRows int64 `json:"affectedRows"`
	InsertID     int64 `json:"insertId,omitempty"`
}

// Query выполняет SELECT и возвращает строки как map колонка -> значение.
// Нет строк: пустой (не nil) срез. []byte превращается в string.
func (db *DB) Query(ctx context.Context, q Querier, st query.Statement) ([]map[string]any, error) {
	text, err := db.dialect.Rebind(st.SQL)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := q.QueryContext(ctx, text, st.Args...)
	if err != nil {
		db.record(st, start, err, true)
		return nil, err
	}
	defer rows.Close()

	out, err := scanMaps(rows)
	db.record(st, start, err, true)
	return out, err
}

// Exec выполняет INSERT/UPDATE/DELETE.
func (db *DB) Exec(ctx context.Context, q Querier, st query.Statement) (*ExecSummary, error) {
	text, err := db.dialect.Rebind(st.SQL)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := q.ExecContext(ctx, text, st.Args...)
	db.record(st, start, err, false)
	if err != nil {
		return nil, err
	}
	return summarize(res, &ExecSummary{}), nil
}

// ExecBatch готовит запрос один раз и выполняет его для каждой строки значений.
// Первая ошибка прерывает пакет; атомарность даёт только транзакция вызывающего.
func (db *DB) ExecBatch(ctx context.Context, q Querier, b query.Batch) (*ExecSummary, error) {
	text, err := db.dialect.Rebind(b.SQL)
	if err != nil {
		return nil, err
	}
	st := query.Statement{SQL: b.SQL}
	start := time.Now()
	stmt, err := q.PrepareContext(ctx, text)
	if err != nil {
		db.record(st, start, err, false)
		return nil, err
	}
	defer stmt.Close()

	sum := &ExecSummary{}
	for i, row := range b.Rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			st.Args = row
			db.record(st, start, err, false)
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		summarize(res, sum)
	}
	db.record(st, start, nil, false)
	return sum, nil
}

// GenerateUID получает новый идентификатор от сервера (UUID_SHORT, только MySQL/MariaDB).
func (db *DB) GenerateUID(ctx context.Context, q Querier) (string, error) {
	if db.dialect != query.MySQL {
		return "", fmt.Errorf("generate uid on %s: %w", db.dialect.Name(), ErrUnsupported)
	}
	rows, err := db.Query(ctx, q, query.Statement{SQL: "SELECT CAST(UUID_SHORT() AS CHAR) AS uid"})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("generate uid: no row returned")
	}
	uid, _ := rows[0]["uid"].(string)
	return uid, nil
}

func summarize(res sql.Result, sum *ExecSummary) *ExecSummary {
	if n, err := res.RowsAffected(); err == nil {
		sum.AffectedRows += n
	}
	// pgx не поддерживает LastInsertId
	if id, err := res.LastInsertId(); err == nil && sum.InsertID == 0 {
		sum.InsertID = id
	}
	return sum
}

func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
