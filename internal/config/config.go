package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"modelkit/internal/store"
)

type Config struct {
	Port        string `json:"port"`
	EntitiesDir string `json:"entitiesDir"` // YAML-описания дополнительных сущностей
	AutoMigrate bool   `json:"autoMigrate"`
	// QuoteReserved: брать в кавычки имена таблиц, совпадающие с ключевыми словами диалекта
	QuoteReserved bool `json:"quoteReserved"`

	// База
	Dialect   string `json:"dialect"` // mysql (default) | postgres
	DSN       string `json:"dsn"`     // если задан, перекрывает host/port/...
	Host      string `json:"dbHost"`
	DBPort    int    `json:"dbPort"`
	User      string `json:"dbUser"`
	Password  string `json:"dbPassword"`
	Name      string `json:"dbName"`
	PoolSize  int    `json:"poolSize"`
	TLS       bool   `json:"tls"`
	Collation string `json:"collation"`
	Timezone  string `json:"timezone"`

	SlowQueryMS int `json:"slowQueryMs"` // 0: не следить

	// Логи
	LogLevel  string `json:"logLevel"`  // debug | info | warn | error
	LogFormat string `json:"logFormat"` // text | json
}

func def() Config {
	return Config{
		Port:        "8080",
		EntitiesDir: "",
		AutoMigrate: false,

		QuoteReserved: false,

		Dialect:   "mysql",
		Host:      "127.0.0.1",
		DBPort:    0,
		PoolSize:  store.DefaultPoolSize,
		TLS:       false,
		Collation: store.DefaultCollation,
		Timezone:  store.DefaultTimezone,

		SlowQueryMS: 200,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

func loadJSON(path string) (Config, error) {
	c := def()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	if v, ok := os.LookupEnv(k); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "1" || v == "true" || v == "yes" {
			return true
		}
		if v == "0" || v == "false" || v == "no" {
			return false
		}
	}
	return fallback
}

// Load: значения по умолчанию -> JSON (если файл существует) -> ENV -> флаги из args.
func Load(jsonPath string, args []string) (Config, error) {
	cfg := def()

	// флаг -config читаем заранее: от него зависит, какой JSON брать
	pre := flag.NewFlagSet("config", flag.ContinueOnError)
	pre.SetOutput(discard{})
	configPath := pre.String("config", jsonPath, "Path to config JSON")
	_ = pre.Parse(filterConfigFlag(args))
	jsonPath = *configPath

	// JSON (если файл существует)
	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		c2, err := loadJSON(jsonPath)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", jsonPath, err)
		}
		cfg = c2
	}

	// ENV overrides
	cfg.Port = getenv("MODELKIT_PORT", cfg.Port)
	cfg.EntitiesDir = getenv("MODELKIT_ENTITIES_DIR", cfg.EntitiesDir)
	cfg.AutoMigrate = getenvBool("MODELKIT_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.QuoteReserved = getenvBool("MODELKIT_QUOTE_RESERVED", cfg.QuoteReserved)
	cfg.SlowQueryMS = getenvInt("MODELKIT_SLOW_QUERY_MS", cfg.SlowQueryMS)
	cfg.LogLevel = getenv("MODELKIT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("MODELKIT_LOG_FORMAT", cfg.LogFormat)

	cfg.Dialect = getenv("DB_DIALECT", cfg.Dialect)
	cfg.DSN = getenv("DB_DSN", cfg.DSN)
	cfg.Host = getenv("DB_HOST", cfg.Host)
	cfg.DBPort = getenvInt("DB_PORT", cfg.DBPort)
	cfg.User = getenv("DB_USER", cfg.User)
	cfg.Password = getenv("DB_PWD", cfg.Password)
	cfg.Name = getenv("DB_NAME", cfg.Name)
	cfg.PoolSize = getenvInt("DB_POOL_SIZE", cfg.PoolSize)
	cfg.TLS = getenvBool("DB_SSL", cfg.TLS)
	cfg.Collation = getenv("DB_COLLATION", cfg.Collation)
	cfg.Timezone = getenv("DB_TIMEZONE", cfg.Timezone)

	// Flags overrides
	fs := flag.NewFlagSet("modelkit", flag.ContinueOnError)
	fs.String("config", jsonPath, "Path to config JSON")
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	fs.StringVar(&cfg.EntitiesDir, "entities", cfg.EntitiesDir, "Directory with YAML entity descriptors")
	fs.BoolVar(&cfg.AutoMigrate, "auto-migrate", cfg.AutoMigrate, "Create missing tables on start")
	fs.BoolVar(&cfg.QuoteReserved, "quote-reserved", cfg.QuoteReserved, "Quote table names that are reserved words")
	fs.StringVar(&cfg.Dialect, "dialect", cfg.Dialect, "Database dialect (mysql/postgres)")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Database DSN (overrides host/port/user/...)")
	fs.StringVar(&cfg.Host, "db-host", cfg.Host, "Database host")
	fs.IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "Database port (0 = dialect default)")
	fs.StringVar(&cfg.User, "db-user", cfg.User, "Database user")
	fs.StringVar(&cfg.Name, "db-name", cfg.Name, "Database name")
	fs.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "Connection pool size")
	fs.BoolVar(&cfg.TLS, "db-tls", cfg.TLS, "Use TLS for database connections")
	fs.IntVar(&cfg.SlowQueryMS, "slow-query-ms", cfg.SlowQueryMS, "Slow query threshold in ms (0 = off)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug/info/warn/error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text/json)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.EntitiesDir = strings.TrimSpace(cfg.EntitiesDir)
	cfg.Dialect = strings.ToLower(strings.TrimSpace(cfg.Dialect))
	return cfg, nil
}

// StoreOptions переводит конфиг в параметры подключения.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Dialect:       c.Dialect,
		DSN:           c.DSN,
		Host:          c.Host,
		Port:          c.DBPort,
		User:          c.User,
		Password:      c.Password,
		Name:          c.Name,
		PoolSize:      c.PoolSize,
		TLS:           c.TLS,
		Collation:     c.Collation,
		Timezone:      c.Timezone,
		SlowThreshold: time.Duration(c.SlowQueryMS) * time.Millisecond,
	}
}

// filterConfigFlag оставляет из args только -config/--config (с значением).
func filterConfigFlag(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		name := strings.TrimLeft(a, "-")
		switch {
		case name == "config" && i+1 < len(args):
			out = append(out, a, args[i+1])
			i++
		case strings.HasPrefix(name, "config="):
			out = append(out, a)
		}
	}
	return out
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
