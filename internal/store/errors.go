package store

import (
	"errors"
	"fmt"
)

// ErrConnect: общий признак того, что соединение с базой получить не удалось.
var ErrConnect = errors.New("store: cannot acquire connection")

// ConnError: ошибка открытия пула или получения соединения из него.
// Процесс не завершается: решение принимает вызывающий.
type ConnError struct {
	Dialect string
	Addr    string
	Err     error
}

func (e *ConnError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("store: %s connection to %s failed: %v", e.Dialect, e.Addr, e.Err)
	}
	return fmt.Sprintf("store: %s connection failed: %v", e.Dialect, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

func (e *ConnError) Is(target error) bool { return target == ErrConnect }

// ErrUnsupported: операция недоступна в текущем диалекте.
var ErrUnsupported = errors.New("store: not supported by dialect")

// IsConnError сообщает, что ошибка это отказ в соединении, а не ошибка запроса.
func IsConnError(err error) bool { return errors.Is(err, ErrConnect) }
