package model

import (
	"errors"
	"fmt"

	"modelkit/internal/store"
)

// ErrExec: общий признак ошибки выполнения запроса в базе.
var ErrExec = errors.New("model: query execution failed")

// ExecError: ошибка выполнения вместе с текстом запроса и значениями.
type ExecError struct {
	Op   string
	SQL  string
	Args []any
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("model: %s: %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

func (e *ExecError) Is(target error) bool { return target == ErrExec }

// Result: единый ответ изменяющих операций. Ошибка выполнения в базе не
// возвращается как error: Success=false и текст ошибки в Message.
type Result struct {
	Success bool               `json:"success"`
	Data    *store.ExecSummary `json:"data,omitempty"`
	Message string             `json:"message,omitempty"`
}

func success(sum *store.ExecSummary) Result {
	return Result{Success: true, Data: sum}
}

func failed(err error) Result {
	return Result{Success: false, Message: err.Error()}
}
