package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

const (
	MySQLName    = "mysql"
	PostgresName = "postgres"
)

// Dialect задаёт то, чем отличаются базы: приведение к тексту,
// стиль плейсхолдеров и квотинг идентификаторов (для DDL).
type Dialect interface {
	Name() string
	// CastText оборачивает колонку приведением к тексту.
	CastText(col string) string
	// Rebind переписывает "?" в стиль плейсхолдеров базы.
	Rebind(query string) (string, error)
	QuoteIdent(name string) string
	// QuoteString даёт строковый литерал для режима WithInlineLiterals.
	QuoteString(s string) string
	// Reserved сообщает, что имя таблицы без кавычек не разберётся.
	Reserved(name string) bool
}

var (
	MySQL    Dialect = mysqlDialect{}
	Postgres Dialect = postgresDialect{}
)

// DialectFor возвращает диалект по имени; "mariadb" это синоним mysql.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MySQLName, "mariadb":
		return MySQL, nil
	case PostgresName, "pg", "pgx":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("query: unknown dialect %q", name)
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                    { return MySQLName }
func (mysqlDialect) CastText(col string) string      { return "CAST(" + col + " AS CHAR)" }
func (mysqlDialect) Rebind(q string) (string, error) { return q, nil }
func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteString: кавычки удваиваются, обратный слеш экранируется.
func (mysqlDialect) QuoteString(s string) string {
	if strings.ContainsAny(s, `'\`) {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, "'", "''")
	}
	return "'" + s + "'"
}

func (mysqlDialect) Reserved(name string) bool { return mysqlReserved[strings.ToLower(name)] }

// CAST(... AS CHAR) в Postgres даёт char(1), поэтому TEXT.
type postgresDialect struct{}

func (postgresDialect) Name() string               { return PostgresName }
func (postgresDialect) CastText(col string) string { return "CAST(" + col + " AS TEXT)" }
func (postgresDialect) Rebind(q string) (string, error) {
	return sq.Dollar.ReplacePlaceholders(q)
}
func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString: при standard_conforming_strings обратный слеш обычный символ,
// удваиваются только кавычки.
func (postgresDialect) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (postgresDialect) Reserved(name string) bool { return postgresReserved[strings.ToLower(name)] }

// зарезервированные слова, которые встречаются как имена таблиц
var (
	mysqlReserved = map[string]bool{
		"option": true, "order": true, "group": true, "key": true, "index": true,
		"table": true, "condition": true, "range": true, "release": true, "usage": true,
		"interval": true, "change": true, "match": true, "read": true, "write": true,
	}
	postgresReserved = map[string]bool{
		"user": true, "order": true, "group": true, "table": true, "check": true,
		"column": true, "constraint": true, "default": true, "limit": true, "offset": true,
		"references": true, "window": true, "analyse": true, "analyze": true, "end": true,
	}
)
