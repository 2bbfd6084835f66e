// Package store открывает пул соединений (MySQL/MariaDB или Postgres) и выполняет
// построенные запросы: чтение строк в map, INSERT/UPDATE/DELETE, пакетную вставку,
// транзакции и генерацию DDL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"modelkit/internal/query"
)

const (
	DefaultPoolSize  = 10
	DefaultCollation = "utf8mb4_general_ci"
	DefaultTimezone  = "UTC"

	connMaxLifetime = 30 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Options: параметры подключения. DSN, если задан, перекрывает Host/Port/User/...
type Options struct {
	Dialect   string // mysql (по умолчанию) | postgres
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	PoolSize  int
	TLS       bool
	Collation string
	Timezone  string

	// SlowThreshold > 0 включает предупреждение о медленных запросах.
	SlowThreshold time.Duration
	Logger        *slog.Logger
}

func (o Options) addr() string {
	if o.Host == "" {
		return ""
	}
	port := o.Port
	if port == 0 {
		port = 3306
		if d, _ := query.DialectFor(o.Dialect); d == query.Postgres {
			port = 5432
		}
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

// MySQLConfig собирает конфигурацию драйвера go-sql-driver/mysql.
func (o Options) MySQLConfig() (*mysql.Config, error) {
	var cfg *mysql.Config
	if o.DSN != "" {
		parsed, err := mysql.ParseDSN(o.DSN)
		if err != nil {
			return nil, fmt.Errorf("store: parse mysql dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = o.addr()
		cfg.User = o.User
		cfg.Passwd = o.Password
		cfg.DBName = o.Name
		if o.TLS {
			cfg.TLSConfig = "true"
		}
	}
	cfg.ParseTime = true
	cfg.Collation = orDefault(o.Collation, DefaultCollation)

	loc, err := time.LoadLocation(orDefault(o.Timezone, DefaultTimezone))
	if err != nil {
		return nil, fmt.Errorf("store: timezone: %w", err)
	}
	cfg.Loc = loc
	return cfg, nil
}

// PostgresConfig собирает конфигурацию pgx.
func (o Options) PostgresConfig() (*pgx.ConnConfig, error) {
	dsn := o.DSN
	if dsn == "" {
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(o.User, o.Password),
			Host:   o.addr(),
			Path:   "/" + o.Name,
		}
		q := url.Values{}
		if o.TLS {
			q.Set("sslmode", "require")
		} else {
			q.Set("sslmode", "disable")
		}
		q.Set("timezone", orDefault(o.Timezone, DefaultTimezone))
		u.RawQuery = q.Encode()
		dsn = u.String()
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	return cfg, nil
}

// Open открывает пул и проверяет его ping'ом. Ошибка подключения: *ConnError.
func Open(ctx context.Context, o Options) (*DB, error) {
	dialect, err := query.DialectFor(o.Dialect)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect {
	case query.Postgres:
		cfg, err := o.PostgresConfig()
		if err != nil {
			return nil, err
		}
		db = stdlib.OpenDB(*cfg)
	default:
		cfg, err := o.MySQLConfig()
		if err != nil {
			return nil, err
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, &ConnError{Dialect: dialect.Name(), Addr: cfg.Addr, Err: err}
		}
		db = sql.OpenDB(connector)
	}

	pool := o.PoolSize
	if pool <= 0 {
		pool = DefaultPoolSize
	}
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(max(1, pool/2))

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, &ConnError{Dialect: dialect.Name(), Addr: o.addr(), Err: err}
	}

	out := OpenDB(db, dialect, WithLogger(o.Logger), WithSlowThreshold(o.SlowThreshold))
	out.log.Info("database connected", "dialect", dialect.Name(), "addr", o.addr(), "pool", pool)
	return out, nil
}

// Option настраивает DB.
type Option func(*DB)

func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.log = l
		}
	}
}

func WithSlowThreshold(d time.Duration) Option {
	return func(db *DB) { db.slow = d }
}

// DB: пул соединений с диалектом, логгером и счётчиками запросов.
type DB struct {
	sql     *sql.DB
	dialect query.Dialect
	log     *slog.Logger
	slow    time.Duration
	stats   Stats
}

// OpenDB оборачивает уже открытый *sql.DB (в тестах sqlmock).
func OpenDB(db *sql.DB, d query.Dialect, opts ...Option) *DB {
	if d == nil {
		d = query.MySQL
	}
	out := &DB{sql: db, dialect: d, log: slog.Default()}
	for _, o := range opts {
		o(out)
	}
	return out
}

func (db *DB) Dialect() query.Dialect { return db.dialect }
func (db *DB) Logger() *slog.Logger   { return db.log }
func (db *DB) SQL() *sql.DB           { return db.sql }
func (db *DB) Close() error           { return db.sql.Close() }

// Acquire берёт соединение из пула. Вернуть его (Close) обязан вызывающий.
func (db *DB) Acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := db.sql.Conn(ctx)
	if err != nil {
		return nil, &ConnError{Dialect: db.dialect.Name(), Err: err}
	}
	return conn, nil
}

// BeginTx открывает транзакцию на пуле.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.sql.BeginTx(ctx, opts)
	if err != nil {
		return nil, &ConnError{Dialect: db.dialect.Name(), Err: err}
	}
	return tx, nil
}

// InTx выполняет fn в транзакции: commit при nil, иначе rollback.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.log.Error("rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
