package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RoGogDBD/metrics-tracker/internal/config"
	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const insertSnapshotRow = `
	INSERT INTO metric_snapshots (snapshot_id, sequence, source, taken_at, name, type, delta, value)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (snapshot_id, type, name) DO NOTHING
`

// PostgresObserver сохраняет каждый снимок в таблицу metric_snapshots.
type PostgresObserver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresObserver создаёт наблюдателя поверх готового пула соединений.
func NewPostgresObserver(pool *pgxpool.Pool, logger *zap.Logger) *PostgresObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresObserver{pool: pool, logger: logger}
}

// Ping проверяет соединение с базой данных.
func (p *PostgresObserver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close закрывает пул соединений.
func (p *PostgresObserver) Close() {
	p.pool.Close()
}

// snapshotRow — одна строка таблицы metric_snapshots.
//
// Для счётчика заполнен Delta, для датчика и длительности (в секундах) — Value.
type snapshotRow struct {
	Name  string
	Type  string
	Delta *int64
	Value *float64
}

// snapshotRows раскладывает снимок на строки, упорядоченные по типу и имени.
func snapshotRows(snapshot models.Snapshot) []snapshotRow {
	rows := make([]snapshotRow, 0, len(snapshot.Counters)+len(snapshot.Metrics)+len(snapshot.DurationMetrics))
	for name, v := range snapshot.Counters {
		d := v
		rows = append(rows, snapshotRow{Name: name, Type: models.Counter, Delta: &d})
	}
	for name, v := range snapshot.Metrics {
		val := v
		rows = append(rows, snapshotRow{Name: name, Type: models.Gauge, Value: &val})
	}
	for name, v := range snapshot.DurationMetrics {
		val := v.Seconds()
		rows = append(rows, snapshotRow{Name: name, Type: models.Duration, Value: &val})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Type != rows[j].Type {
			return rows[i].Type < rows[j].Type
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// buildSnapshotBatch ставит в очередь вставку каждой строки снимка.
func buildSnapshotBatch(snapshot models.Snapshot) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, row := range snapshotRows(snapshot) {
		batch.Queue(insertSnapshotRow,
			snapshot.ID, int64(snapshot.Sequence), snapshot.Source, snapshot.Timestamp,
			row.Name, row.Type, row.Delta, row.Value)
	}
	return batch
}

// OnSnapshot записывает все серии снимка одной транзакцией с повторами
// при временных ошибках соединения.
func (p *PostgresObserver) OnSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	return config.RetryWithBackoff(ctx, p.logger, func() error {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if batch := buildSnapshotBatch(snapshot); batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert snapshot %d: %w", snapshot.Sequence, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}
