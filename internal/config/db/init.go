package db

import (
	"context"
	"fmt"

	"github.com/RoGogDBD/metrics-tracker/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// InitDB подключается к PostgreSQL с повторами и применяет миграции.
//
// ctx    — контекст подключения.
// dsn    — строка подключения.
// logger — логгер, может быть nil.
func InitDB(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var pool *pgxpool.Pool
	err := config.RetryWithBackoff(ctx, logger, func() error {
		var innerErr error
		pool, innerErr = pgxpool.New(ctx, dsn)
		if innerErr != nil {
			return innerErr
		}
		if innerErr = pool.Ping(ctx); innerErr != nil {
			pool.Close()
			return config.Retriable(innerErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db after retries: %w", err)
	}

	logger.Info("connected to PostgreSQL")

	if err := config.RetryWithBackoff(ctx, logger, func() error {
		return RunMigrations(dsn, DefaultMigrationsPath, logger)
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations after retries: %w", err)
	}

	return pool, nil
}
