package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"modelkit/internal/query"
)

// коды "объект уже существует"
var (
	mysqlDuplicate = map[uint16]struct{}{
		1050: {}, // ER_TABLE_EXISTS_ERROR
		1060: {}, // ER_DUP_FIELDNAME
		1061: {}, // ER_DUP_KEYNAME
	}
	pgDuplicate = map[string]struct{}{
		"42P07": {}, // duplicate_table (и индексы)
		"42710": {}, // duplicate_object
	}
)

// ApplyDDL выполняет операторы в порядке ключей. Ожидается идемпотентный DDL;
// ошибки "уже существует" пропускаются. Возвращает число выполненных операторов.
func (db *DB) ApplyDDL(ctx context.Context, ddl map[string]string) (int, error) {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	applied := 0
	for _, k := range keys {
		text := strings.TrimSpace(ddl[k])
		if text == "" {
			continue
		}
		if _, err := db.Exec(ctx, db.sql, query.Statement{SQL: text}); err != nil {
			if isDuplicate(err) {
				db.log.Info("ddl skipped (already exists)", "key", k, "err", err)
				continue
			}
			return applied, fmt.Errorf("ddl %s apply failed: %w", k, err)
		}
		applied++
	}
	return applied, nil
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		_, ok := mysqlDuplicate[myErr.Number]
		return ok
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := pgDuplicate[pgErr.Code]
		return ok
	}
	// подстраховка по фразе (на случай других драйверов)
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "already exists") || strings.Contains(e, "duplicate key name")
}
