package query

import (
	"errors"
	"fmt"
)

// ErrInvalid: общий признак ошибок построения (неверная проекция или данные).
var ErrInvalid = errors.New("query: invalid input")

// Error описывает нарушение контракта построителя и называет поле-виновника.
type Error struct {
	Op     string // select, where, insert, update, mark_deleted, delete
	Table  string
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("query: %s %s.%s: %s", e.Op, e.Table, e.Field, e.Reason)
	}
	return fmt.Sprintf("query: %s %s: %s", e.Op, e.Table, e.Reason)
}

// Is позволяет errors.Is(err, ErrInvalid).
func (e *Error) Is(target error) bool { return target == ErrInvalid }

// IsInvalid сообщает, что ошибка есть нарушение контракта построителя.
func IsInvalid(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

func invalid(op, table, field, format string, args ...any) *Error {
	return &Error{Op: op, Table: table, Field: field, Reason: fmt.Sprintf(format, args...)}
}
