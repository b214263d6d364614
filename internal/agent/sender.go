// Package agent отправляет снимки трекера на удалённый сервер метрик.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/RoGogDBD/metrics-tracker/internal/config"
	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// UpdatesPath — путь пакетного приёма метрик на сервере.
const UpdatesPath = "/updates/"

// ErrUnexpectedStatus возвращается, когда сервер ответил не 200.
var ErrUnexpectedStatus = errors.New("unexpected status")

// MetricsSender отправляет пакет метрик.
type MetricsSender interface {
	SendBatch(ctx context.Context, metrics []models.Metrics) error
}

// RestySender отправляет метрики пакетом через resty.
//
// Тело сжимается gzip и подписывается HMAC-SHA256, если задан Key.
// Счётчики отправляются разницей с последним доставленным снимком.
type RestySender struct {
	Client *resty.Client
	Key    string
	Logger *zap.Logger

	mu   sync.Mutex
	sent map[string]int64
}

// NewRestySender создаёт отправителя для сервера baseURL.
//
// baseURL — адрес сервера, например "http://localhost:8080".
// key     — ключ подписи, может быть пустым.
func NewRestySender(baseURL, key string, logger *zap.Logger) *RestySender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second)
	return &RestySender{Client: client, Key: key, Logger: logger}
}

// OnSnapshot конвертирует снимок в пакет и отправляет его.
//
// Значения счётчиков запоминаются только после успешной доставки,
// поэтому после ошибки следующий снимок несёт всю накопленную разницу.
func (rs *RestySender) OnSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	batch := snapshot.Batch(rs.sent)
	if len(batch) == 0 {
		return nil
	}
	if err := rs.SendBatch(ctx, batch); err != nil {
		return err
	}
	rs.sent = maps.Clone(snapshot.Counters)
	return nil
}

// SendBatch отправляет metrics одним POST-запросом на UpdatesPath.
//
// Ошибки сети и ответы 5xx повторяются через config.RetryWithBackoff.
func (rs *RestySender) SendBatch(ctx context.Context, metrics []models.Metrics) error {
	body, err := json.Marshal(metrics)
	if err != nil {
		return err
	}

	compressed, err := config.GzipCompress(body)
	if err != nil {
		return fmt.Errorf("failed to gzip batch: %w", err)
	}

	return config.RetryWithBackoff(ctx, rs.Logger, func() error {
		req := rs.Client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Content-Encoding", "gzip").
			SetBody(compressed)

		if rs.Key != "" {
			req.SetHeader(config.HashHeader, config.ComputeHash(compressed, rs.Key))
		}

		resp, err := req.Post(UpdatesPath)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return config.Retriable(fmt.Errorf("failed to POST metrics batch: %w", err))
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return config.Retriable(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode()))
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
		}
		return nil
	})
}
