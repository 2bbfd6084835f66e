package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"modelkit/internal/api"
	"modelkit/internal/config"
	"modelkit/internal/entity"
	"modelkit/internal/model"
	"modelkit/internal/query"
	"modelkit/internal/store"
)

func main() {
	// 1. Конфиг: defaults -> config.json -> ENV -> флаги
	cfg, err := config.Load("config.json", os.Args[1:])
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(2)
	}
	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Пул соединений
	opts := cfg.StoreOptions()
	opts.Logger = log
	db, err := store.Open(ctx, opts)
	if err != nil {
		var ce *store.ConnError
		if errors.As(err, &ce) {
			log.Error("database unavailable", "dialect", ce.Dialect, "addr", ce.Addr, "err", ce.Err)
		} else {
			log.Error("database open failed", "err", err)
		}
		os.Exit(1)
	}
	defer db.Close()

	// 3. Реестр: встроенные сущности + YAML-описания
	reg := model.Builtin()
	if cfg.EntitiesDir != "" {
		descs, err := entity.LoadDir(cfg.EntitiesDir)
		if err != nil {
			log.Error("entity descriptors load failed", "dir", cfg.EntitiesDir, "err", err)
			os.Exit(1)
		}
		for _, d := range descs {
			if err := reg.Register(d, nil); err != nil {
				log.Error("entity register failed", "entity", d.Table(), "err", err)
				os.Exit(1)
			}
		}
		log.Info("entity descriptors loaded", "dir", cfg.EntitiesDir, "count", len(descs))
	}
	for _, is := range reg.Lint() {
		log.Warn("entity lint", "entity", is.Entity, "column", is.Column, "code", is.Code, "msg", is.Message, "blocking", is.Blocking)
	}

	sopts := []api.Option{api.WithLogger(log)}
	if cfg.QuoteReserved {
		sopts = append(sopts, api.WithBuilderOptions(query.WithQuotedReserved()))
	}
	storage := api.NewStorage(reg, db, sopts...)

	// 4. Автомиграция
	if cfg.AutoMigrate {
		statements, applied, err := storage.Migrate(ctx)
		if err != nil {
			log.Error("auto-migrate failed", "err", err)
			os.Exit(1)
		}
		log.Info("auto-migrate done", "statements", statements, "applied", applied)
	}

	// 5. REST API
	log.Info("starting modelkit", "port", cfg.Port, "entities", len(reg.Kinds()))
	if err := api.RunServer(ctx, ":"+cfg.Port, storage); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, hopts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hopts))
}
