package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrInvalidConfig возвращается при несогласованной конфигурации.
var ErrInvalidConfig = errors.New("invalid config")

// retryIntervals определяет интервалы ожидания между попытками повторения операции.
var retryIntervals = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// RetriableError помечает ошибку как временную для RetryWithBackoff.
type RetriableError struct {
	Err error
}

func (e *RetriableError) Error() string {
	return e.Err.Error()
}

func (e *RetriableError) Unwrap() error {
	return e.Err
}

// Retriable оборачивает err в RetriableError. nil остаётся nil.
func Retriable(err error) error {
	if err == nil {
		return nil
	}
	return &RetriableError{Err: err}
}

// RetryWithBackoff выполняет функцию op с повторными попытками и растущей задержкой между ними.
//
// Если функция op возвращает ошибку, которая считается временной (retriable),
// происходит повторная попытка выполнения с увеличивающимся интервалом ожидания.
// Если все попытки исчерпаны или контекст завершён, возвращается последняя ошибка.
//
// ctx    — контекст для управления временем жизни попыток.
// logger — логгер для сообщений о повторах, может быть nil.
// op     — функция, которую требуется выполнить с повторными попытками.
//
// Возвращает nil при успехе или ошибку, если операция не удалась после всех попыток.
func RetryWithBackoff(ctx context.Context, logger *zap.Logger, op func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var lastErr error
	for i, wait := range retryIntervals {
		if err := op(); err != nil {
			if isRetriableError(err) {
				lastErr = err
				logger.Warn("retriable error, retrying",
					zap.Error(err),
					zap.Int("attempt", i+1),
					zap.Int("max_attempts", len(retryIntervals)),
					zap.Duration("wait", wait),
				)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
					continue
				}
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("operation failed after retries: %w", lastErr)
}

// isRetriableError определяет, является ли ошибка временной (retriable).
//
// err — ошибка для проверки.
//
// Возвращает true для RetriableError, сетевых таймаутов и ошибок соединения PostgreSQL
// (коды SQLSTATE, начинающиеся с "08").
func isRetriableError(err error) bool {
	var retriable *RetriableError
	if errors.As(err, &retriable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return true
		}
	}
	return false
}
