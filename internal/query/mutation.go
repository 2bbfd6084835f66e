package query

import (
	"strings"

	"modelkit/internal/entity"
	"modelkit/internal/naming"
)

// insertColumns отбирает зарегистрированные поля записи в порядке следования.
// Незарегистрированные поля молча отбрасываются.
func insertColumns(op string, d *entity.Descriptor, row Fields) ([]string, error) {
	cols := make([]string, 0, len(row))
	seen := make(map[string]struct{}, len(row))
	for _, f := range row {
		col := naming.ToSnake(f.Name)
		if !d.Registered(col) {
			continue
		}
		if _, dup := seen[col]; dup {
			return nil, invalid(op, d.Table(), f.Name, "field given twice")
		}
		seen[col] = struct{}{}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return nil, invalid(op, d.Table(), "", "no registered fields to insert")
	}
	return cols, nil
}

func insertSQL(table string, cols []string) string {
	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = "?"
	}
	return "INSERT INTO " + table + " (" + strings.Join(cols, ",") + ") VALUES (" + strings.Join(marks, ",") + ")"
}

// Insert строит INSERT одной записи.
func (b *Builder) Insert(d *entity.Descriptor, row Fields) (Statement, error) {
	cols, err := insertColumns("insert", d, row)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: insertSQL(b.tbl(d.Table()), cols), Args: InsertValues(d, row)}, nil
}

// InsertValues: значения зарегистрированных полей записи, в порядке колонок Insert.
func InsertValues(d *entity.Descriptor, row Fields) []any {
	out := make([]any, 0, len(row))
	for _, f := range row {
		if d.Registered(f.Name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// InsertBatch строит один INSERT для пакета записей. Колонки берутся из первой записи;
// у всех записей должен совпадать набор зарегистрированных полей.
func (b *Builder) InsertBatch(d *entity.Descriptor, rows []Fields) (Batch, error) {
	const op = "insert"
	if len(rows) == 0 {
		return Batch{}, invalid(op, d.Table(), "", "empty batch")
	}
	cols, err := insertColumns(op, d, rows[0])
	if err != nil {
		return Batch{}, err
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}

	out := Batch{SQL: insertSQL(b.tbl(d.Table()), cols), Rows: make([][]any, len(rows))}
	for n, row := range rows {
		vals := make([]any, len(cols))
		filled := make([]bool, len(cols))
		for _, f := range row {
			col := naming.ToSnake(f.Name)
			if !d.Registered(col) {
				continue
			}
			i, ok := index[col]
			if !ok {
				return Batch{}, invalid(op, d.Table(), f.Name, "record %d has a field the first record lacks", n)
			}
			if filled[i] {
				return Batch{}, invalid(op, d.Table(), f.Name, "record %d: field given twice", n)
			}
			vals[i] = f.Value
			filled[i] = true
		}
		for i, ok := range filled {
			if !ok {
				return Batch{}, invalid(op, d.Table(), naming.ToCamel(cols[i]), "record %d lacks a field the first record has", n)
			}
		}
		out.Rows[n] = vals
	}
	return out, nil
}

// Update строит "UPDATE <t> SET updated_at = NOW(), <c> = ? ... WHERE ...".
// Поля со значением NULL пропускаются (частичное обновление), updated_at всегда NOW().
// updatedBy, если не NULL, пишется в updated_by. Порядок значений: SET, затем WHERE.
func (b *Builder) Update(d *entity.Descriptor, data Fields, cond Fields, updatedBy any) (Statement, error) {
	const op = "update"
	if len(cond) == 0 {
		return Statement{}, invalid(op, d.Table(), "", "update without a condition")
	}

	set := make(Fields, 0, len(data)+1)
	seen := make(map[string]int, len(data)+1)
	for _, f := range data {
		if isNull(f.Value) {
			continue
		}
		col := naming.ToSnake(f.Name)
		if !d.Registered(col) || col == "updated_at" {
			continue
		}
		if _, dup := seen[col]; dup {
			return Statement{}, invalid(op, d.Table(), f.Name, "field given twice")
		}
		seen[col] = len(set)
		set = append(set, Field{Name: col, Value: f.Value})
	}
	if !isNull(updatedBy) {
		if !d.Registered("updated_by") {
			return Statement{}, invalid(op, d.Table(), "updatedBy", "entity has no updated_by column")
		}
		if i, ok := seen["updated_by"]; ok {
			set[i].Value = updatedBy
		} else {
			set = append(set, Field{Name: "updated_by", Value: updatedBy})
		}
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.tbl(d.Table()))
	sb.WriteString(" SET updated_at = NOW()")
	args := make([]any, 0, len(set)+len(cond))
	for _, f := range set {
		sb.WriteString(", ")
		sb.WriteString(f.Name)
		sb.WriteString(" = ?")
		args = append(args, f.Value)
	}

	where, err := b.where(op, d, cond, Filters{})
	if err != nil {
		return Statement{}, err
	}
	sb.WriteByte(' ')
	sb.WriteString(where.SQL)
	return Statement{SQL: sb.String(), Args: append(args, where.Args...)}, nil
}

// MarkDeleted строит мягкое удаление: deleted = 1, deleted_at = NOW() и, если задан, deleted_by.
func (b *Builder) MarkDeleted(d *entity.Descriptor, cond Fields, deletedBy any) (Statement, error) {
	const op = "mark_deleted"
	if !d.Paranoid() {
		return Statement{}, invalid(op, d.Table(), "deleted", "entity has no deleted column")
	}
	if len(cond) == 0 {
		return Statement{}, invalid(op, d.Table(), "", "mark deleted without a condition")
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.tbl(d.Table()))
	sb.WriteString(" SET deleted = 1, deleted_at = NOW()")
	var args []any
	if !isNull(deletedBy) {
		if !d.Registered("deleted_by") {
			return Statement{}, invalid(op, d.Table(), "deletedBy", "entity has no deleted_by column")
		}
		if b.inline {
			id := literalText(deletedBy)
			if !isDigits(id) {
				return Statement{}, invalid(op, d.Table(), "deletedBy", "%q is not an integer id", id)
			}
			sb.WriteString(", deleted_by = " + id)
		} else {
			sb.WriteString(", deleted_by = ?")
			args = append(args, deletedBy)
		}
	}

	where, err := b.where(op, d, cond, Filters{})
	if err != nil {
		return Statement{}, err
	}
	sb.WriteByte(' ')
	sb.WriteString(where.SQL)
	return Statement{SQL: sb.String(), Args: append(args, where.Args...)}, nil
}

// Delete строит физическое удаление "DELETE FROM <t> WHERE ...".
func (b *Builder) Delete(d *entity.Descriptor, cond Fields) (Statement, error) {
	const op = "delete"
	if len(cond) == 0 {
		return Statement{}, invalid(op, d.Table(), "", "delete without a condition")
	}
	where, err := b.where(op, d, cond, Filters{})
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DELETE FROM " + b.tbl(d.Table()) + " " + where.SQL, Args: where.Args}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
