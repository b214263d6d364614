package repository

import (
	"context"
	"encoding/json"
	"fmt"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey — ключ списка снимков по умолчанию.
const DefaultRedisKey = "metrics-tracker:snapshots"

// RedisObserver хранит последние снимки в списке Redis.
//
// Новые снимки добавляются в голову списка, длина ограничена maxLen.
type RedisObserver struct {
	client redis.UniversalClient
	key    string
	maxLen int64
}

// NewRedisObserver создаёт наблюдателя.
//
// client — клиент Redis.
// key    — ключ списка, пустое значение заменяется на DefaultRedisKey.
// maxLen — сколько снимков хранить, минимум 1.
func NewRedisObserver(client redis.UniversalClient, key string, maxLen int) *RedisObserver {
	if key == "" {
		key = DefaultRedisKey
	}
	if maxLen < 1 {
		maxLen = 1
	}
	return &RedisObserver{client: client, key: key, maxLen: int64(maxLen)}
}

// OnSnapshot добавляет снимок в список и обрезает его в одной транзакции.
func (r *RedisObserver) OnSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, data)
		pipe.LTrim(ctx, r.key, 0, r.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push snapshot %d: %w", snapshot.Sequence, err)
	}
	return nil
}

// Recent возвращает до n последних снимков, начиная с самого нового.
func (r *RedisObserver) Recent(ctx context.Context, n int) ([]models.Snapshot, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, r.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read snapshots: %w", err)
	}
	out := make([]models.Snapshot, 0, len(raw))
	for _, item := range raw {
		var snap models.Snapshot
		if err := json.Unmarshal([]byte(item), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Ping проверяет доступность Redis.
func (r *RedisObserver) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
