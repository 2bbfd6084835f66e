package model

import (
	"context"
	"fmt"

	"modelkit/internal/entity"
	"modelkit/internal/naming"
	"modelkit/internal/query"
	"modelkit/internal/store"
)

// Model даёт доступ к одной сущности: построение запроса, выполнение, материализация строк.
// Каждый вызов берёт своё соединение из пула, если соединение не передано через WithConn.
type Model struct {
	entry   entity.Entry
	db      *store.DB
	builder *query.Builder
}

// New создаёт модель сущности. Диалект берётся из db; opts дополняют настройки построителя.
func New(db *store.DB, e entity.Entry, opts ...query.Option) *Model {
	all := append([]query.Option{query.WithDialect(db.Dialect())}, opts...)
	return &Model{entry: e, db: db, builder: query.New(all...)}
}

// For находит сущность в реестре и создаёт для неё модель.
func For(db *store.DB, r *entity.Registry, kind string, opts ...query.Option) (*Model, error) {
	e, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownEntity, kind)
	}
	return New(db, e, opts...), nil
}

func (m *Model) Descriptor() *entity.Descriptor { return m.entry.Descriptor }
func (m *Model) Kind() string                   { return m.entry.Descriptor.Table() }

// CallOption настраивает отдельный вызов.
type CallOption func(*call)

type call struct {
	conn store.Querier
}

// WithConn выполняет вызов на переданном соединении или транзакции.
// Такое соединение модель не закрывает.
func WithConn(q store.Querier) CallOption {
	return func(c *call) { c.conn = q }
}

// run выполняет fn на соединении вызова; соединение, взятое из пула, возвращается всегда.
func (m *Model) run(ctx context.Context, opts []CallOption, fn func(q store.Querier) error) error {
	var c call
	for _, o := range opts {
		o(&c)
	}
	if c.conn != nil {
		return fn(c.conn)
	}
	conn, err := m.db.Acquire(ctx)
	if err != nil {
		m.db.Logger().Error("acquire connection failed", "entity", m.Kind(), "err", err)
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// --- построение без выполнения ---

func (m *Model) BuildSelect(p query.Projection) (string, error) {
	return m.builder.Select(m.entry.Descriptor, p)
}

func (m *Model) BuildWhere(cond query.Fields, f query.Filters) (query.Statement, error) {
	return m.builder.Where(m.entry.Descriptor, cond, f)
}

func (m *Model) BuildQuery(cond query.Fields, p query.Projection) (query.Statement, error) {
	return m.builder.Query(m.entry.Descriptor, cond, p)
}

func (m *Model) BuildInsert(row query.Fields) (query.Statement, error) {
	return m.builder.Insert(m.entry.Descriptor, row)
}

func (m *Model) BuildInsertBatch(rows []query.Fields) (query.Batch, error) {
	return m.builder.InsertBatch(m.entry.Descriptor, rows)
}

func (m *Model) BuildUpdate(data, cond query.Fields, updatedBy any) (query.Statement, error) {
	return m.builder.Update(m.entry.Descriptor, data, cond, updatedBy)
}

// --- чтение ---

// Find возвращает строки с ключами в camelCase; без строк пустой срез.
// Ошибка выполнения логируется и возвращается как *ExecError с nil-данными.
func (m *Model) Find(ctx context.Context, cond query.Fields, p query.Projection, opts ...CallOption) ([]map[string]any, error) {
	st, err := m.builder.Query(m.entry.Descriptor, cond, p)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	err = m.run(ctx, opts, func(q store.Querier) error {
		rows, err = m.db.Query(ctx, q, st)
		return err
	})
	if err != nil {
		if store.IsConnError(err) {
			return nil, err
		}
		m.db.Logger().Error(m.Kind()+".find", "sql", st.SQL, "args", st.Args, "err", err)
		return nil, &ExecError{Op: m.Kind() + ".find", SQL: st.SQL, Args: st.Args, Err: err}
	}
	for i, r := range rows {
		rows[i] = naming.CamelKeys(r)
	}
	return rows, nil
}

// FindOne: Find с LIMIT 1; нет строки -> nil.
func (m *Model) FindOne(ctx context.Context, cond query.Fields, p query.Projection, opts ...CallOption) (map[string]any, error) {
	p.Limit = 1
	rows, err := m.Find(ctx, cond, p, opts...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FindModels: Find с прогоном строк через фабрику записей.
func (m *Model) FindModels(ctx context.Context, cond query.Fields, p query.Projection, opts ...CallOption) ([]any, error) {
	rows, err := m.Find(ctx, cond, p, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = m.Create(r)
	}
	return out, nil
}

// FindOneModel: FindOne с прогоном строки через фабрику; нет строки -> nil.
func (m *Model) FindOneModel(ctx context.Context, cond query.Fields, p query.Projection, opts ...CallOption) (any, error) {
	row, err := m.FindOne(ctx, cond, p, opts...)
	if err != nil || row == nil {
		return nil, err
	}
	return m.Create(row), nil
}

// Create строит запись фабрикой сущности; без фабрики возвращается сама map.
func (m *Model) Create(fields map[string]any) any {
	if m.entry.Factory == nil {
		return fields
	}
	return m.entry.Factory(fields)
}

// FindAs это типизированный FindModels, например FindAs[*User](ctx, users, cond, p).
func FindAs[T any](ctx context.Context, m *Model, cond query.Fields, p query.Projection, opts ...CallOption) ([]T, error) {
	recs, err := m.FindModels(ctx, cond, p, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		t, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("model: %s record is %T, not %T", m.Kind(), r, *new(T))
		}
		out = append(out, t)
	}
	return out, nil
}

// FindOneAs: типизированный FindOneModel; нет строки -> нулевое значение T и ok=false.
func FindOneAs[T any](ctx context.Context, m *Model, cond query.Fields, p query.Projection, opts ...CallOption) (T, bool, error) {
	var zero T
	rec, err := m.FindOneModel(ctx, cond, p, opts...)
	if err != nil || rec == nil {
		return zero, false, err
	}
	t, ok := rec.(T)
	if !ok {
		return zero, false, fmt.Errorf("model: %s record is %T, not %T", m.Kind(), rec, zero)
	}
	return t, true, nil
}

// --- запись ---

// exec выполняет изменяющий запрос. Ошибка построения или соединения возвращается как error,
// ошибка базы как Result{Success: false}.
func (m *Model) exec(ctx context.Context, op string, st query.Statement, opts []CallOption) (Result, error) {
	var sum *store.ExecSummary
	err := m.run(ctx, opts, func(q store.Querier) (err error) {
		sum, err = m.db.Exec(ctx, q, st)
		return err
	})
	if err != nil {
		if store.IsConnError(err) {
			return Result{}, err
		}
		m.db.Logger().Error(m.Kind()+"."+op+" failed", "sql", st.SQL, "args", st.Args, "err", err)
		return failed(err), nil
	}
	return success(sum), nil
}

func (m *Model) Insert(ctx context.Context, row query.Fields, opts ...CallOption) (Result, error) {
	st, err := m.builder.Insert(m.entry.Descriptor, row)
	if err != nil {
		return Result{}, err
	}
	return m.exec(ctx, "insert", st, opts)
}

// InsertBatch вставляет записи одним подготовленным запросом.
// Для атомарности пакета передайте транзакцию через WithConn.
func (m *Model) InsertBatch(ctx context.Context, rows []query.Fields, opts ...CallOption) (Result, error) {
	b, err := m.builder.InsertBatch(m.entry.Descriptor, rows)
	if err != nil {
		return Result{}, err
	}
	var sum *store.ExecSummary
	err = m.run(ctx, opts, func(q store.Querier) (err error) {
		sum, err = m.db.ExecBatch(ctx, q, b)
		return err
	})
	if err != nil {
		if store.IsConnError(err) {
			return Result{}, err
		}
		m.db.Logger().Error(m.Kind()+".insert_batch failed", "sql", b.SQL, "rows", len(b.Rows), "err", err)
		return failed(err), nil
	}
	return success(sum), nil
}

// Update меняет не-NULL поля data у строк, подходящих под cond; updated_at = NOW().
func (m *Model) Update(ctx context.Context, data, cond query.Fields, updatedBy any, opts ...CallOption) (Result, error) {
	st, err := m.builder.Update(m.entry.Descriptor, data, cond, updatedBy)
	if err != nil {
		return Result{}, err
	}
	return m.exec(ctx, "update", st, opts)
}

// MarkDeleted помечает строки удалёнными: deleted = 1, deleted_at = NOW(), deleted_by.
func (m *Model) MarkDeleted(ctx context.Context, cond query.Fields, deletedBy any, opts ...CallOption) (Result, error) {
	st, err := m.builder.MarkDeleted(m.entry.Descriptor, cond, deletedBy)
	if err != nil {
		return Result{}, err
	}
	return m.exec(ctx, "mark_deleted", st, opts)
}

// Delete: физическое удаление.
func (m *Model) Delete(ctx context.Context, cond query.Fields, opts ...CallOption) (Result, error) {
	st, err := m.builder.Delete(m.entry.Descriptor, cond)
	if err != nil {
		return Result{}, err
	}
	return m.exec(ctx, "delete", st, opts)
}

// GenerateUID получает новый идентификатор от сервера.
func (m *Model) GenerateUID(ctx context.Context, opts ...CallOption) (uid string, err error) {
	err = m.run(ctx, opts, func(q store.Querier) error {
		uid, err = m.db.GenerateUID(ctx, q)
		return err
	})
	return uid, err
}
