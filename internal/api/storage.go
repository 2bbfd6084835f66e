package api

import (
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"modelkit/internal/entity"
	"modelkit/internal/model"
	"modelkit/internal/query"
	"modelkit/internal/store"
)

// Storage хранит состояние HTTP-слоя: реестр сущностей, пул и генератор id запросов.
type Storage struct {
	Registry *entity.Registry
	DB       *store.DB
	Log      *slog.Logger

	builder []query.Option

	mu      sync.Mutex // ulid.Monotonic не потокобезопасен
	entropy io.Reader
}

// Option настраивает Storage.
type Option func(*Storage)

// WithLogger задаёт логгер (по умолчанию логгер пула).
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.Log = l
		}
	}
}

// WithBuilderOptions передаёт настройки построителю запросов каждой модели.
func WithBuilderOptions(opts ...query.Option) Option {
	return func(s *Storage) { s.builder = append(s.builder, opts...) }
}

func NewStorage(reg *entity.Registry, db *store.DB, opts ...Option) *Storage {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := &Storage{
		Registry: reg,
		DB:       db,
		Log:      db.Logger(),
		entropy:  ulid.Monotonic(src, 0),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Storage) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Model возвращает модель сущности по имени из маршрута.
func (s *Storage) Model(raw string) (*model.Model, bool) {
	e, ok := s.NormalizeEntityName(raw)
	if !ok {
		return nil, false
	}
	return model.New(s.DB, e, s.builder...), true
}
