package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// DefaultMigrationsPath — каталог миграций относительно рабочей директории.
const DefaultMigrationsPath = "file://./migrations"

// RunMigrations выполняет миграции базы данных PostgreSQL с помощью golang-migrate.
//
// dsn    — строка подключения к базе данных PostgreSQL.
// source — URL каталога миграций, например DefaultMigrationsPath.
// logger — логгер хода миграций.
//
// Если миграции не требуются (ErrNoChange), сообщает об этом в логах.
func RunMigrations(dsn, source string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := migrate.New(source, dsn)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	logger.Info("applying migrations", zap.String("source", source))

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to apply, database is up-to-date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
